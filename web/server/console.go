package server

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// ConsoleMessage represents a console message with timestamp
type ConsoleMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "info", "warning", "error"
}

// ansi matches terminal color sequences emitted by the log formatter
var ansi = regexp.MustCompile("\x1b\\[[0-9;]*m")

// Console is a log sink that fans log lines out to connected web clients.
// Slow subscribers lose messages rather than block the logger.
type Console struct {
	mu          sync.Mutex
	subscribers map[chan ConsoleMessage]struct{}
}

// NewConsole creates a console with no subscribers
func NewConsole() *Console {
	return &Console{subscribers: make(map[chan ConsoleMessage]struct{})}
}

// Write implements io.Writer so the console can be installed as a log sink
func (c *Console) Write(p []byte) (int, error) {
	now := time.Now()
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(ansi.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		c.publish(ConsoleMessage{Message: line, Timestamp: now, Level: levelOf(line)})
	}
	return len(p), nil
}

func (c *Console) publish(msg ConsoleMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- msg:
		default:
			// Channel full, skip (don't block)
		}
	}
}

// Subscribe returns a channel of console messages and a function that
// unsubscribes and closes it
func (c *Console) Subscribe(buffer int) (<-chan ConsoleMessage, func()) {
	ch := make(chan ConsoleMessage, buffer)
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of connected listeners
func (c *Console) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

func levelOf(line string) string {
	switch {
	case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
		return "error"
	case strings.Contains(line, "[WARNING]"):
		return "warning"
	default:
		return "info"
	}
}
