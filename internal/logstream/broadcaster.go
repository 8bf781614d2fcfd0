// Package logstream fans structured log output out to connected observers.
// It plugs into zerolog as an extra writer, so the same events reach the
// console and every subscribed client.
package logstream

import (
	"sync"
)

// maxBacklog bounds the ring of recent entries replayed to new subscribers.
const maxBacklog = 100

// Broadcaster is an io.Writer that buffers the most recent log lines and
// forwards each new line to all subscribers. Slow subscribers drop lines
// instead of blocking the logger.
type Broadcaster struct {
	mu          sync.Mutex
	backlog     [][]byte
	subscribers map[int]chan []byte
	nextSubID   int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int]chan []byte),
	}
}

// Write stores one complete log line and fans it out. It never fails; the
// broadcaster is a best-effort observer channel, not a durable sink.
func (b *Broadcaster) Write(p []byte) (int, error) {
	line := make([]byte, len(p))
	copy(line, p)

	b.mu.Lock()
	b.backlog = append(b.backlog, line)
	if len(b.backlog) > maxBacklog {
		b.backlog = b.backlog[len(b.backlog)-maxBacklog:]
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
	b.mu.Unlock()
	return len(p), nil
}

// Subscribe registers an observer and returns the recent backlog, the live
// channel, and an unsubscribe func that closes the channel.
func (b *Broadcaster) Subscribe() ([][]byte, <-chan []byte, func()) {
	ch := make(chan []byte, 256)

	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subscribers[id] = ch
	backlog := make([][]byte, len(b.backlog))
	copy(backlog, b.backlog)
	b.mu.Unlock()

	return backlog, ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
	}
}
