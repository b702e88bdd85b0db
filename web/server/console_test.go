package server

import (
	"fmt"
	"testing"
	"time"
)

func TestConsole_BasicLogging(t *testing.T) {
	console := NewConsole()
	messages, unsubscribe := console.Subscribe(10)
	defer unsubscribe()

	// Colored output from the log formatter is stripped
	fmt.Fprintf(console, "\x1b[36m[12:00:00.000] [bvh] [INFO]\x1b[0m built tree\n")

	select {
	case msg := <-messages:
		expected := "[12:00:00.000] [bvh] [INFO] built tree"
		if msg.Message != expected {
			t.Errorf("Expected message '%s', got '%s'", expected, msg.Message)
		}
		if msg.Level != "info" {
			t.Errorf("Expected level 'info', got '%s'", msg.Level)
		}
		if time.Since(msg.Timestamp) > time.Second {
			t.Errorf("Timestamp seems too old: %v", msg.Timestamp)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for console message")
	}
}

func TestConsole_Levels(t *testing.T) {
	console := NewConsole()
	messages, unsubscribe := console.Subscribe(10)
	defer unsubscribe()

	fmt.Fprint(console, "[renderer] [WARNING] starving\n[cache] [ERROR] bad mesh\n\n")

	expected := []string{"warning", "error"}
	for i, level := range expected {
		select {
		case msg := <-messages:
			if msg.Level != level {
				t.Errorf("Message %d: expected level '%s', got '%s'", i, level, msg.Level)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for message %d", i+1)
		}
	}

	select {
	case msg := <-messages:
		t.Errorf("Blank lines should be dropped, got '%s'", msg.Message)
	default:
	}
}

func TestConsole_FullChannelDoesNotBlock(t *testing.T) {
	console := NewConsole()
	_, unsubscribe := console.Subscribe(1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			fmt.Fprintf(console, "message %d\n", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked on a full subscriber")
	}
}

func TestConsole_Unsubscribe(t *testing.T) {
	console := NewConsole()
	messages, unsubscribe := console.Subscribe(1)
	if console.Subscribers() != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", console.Subscribers())
	}

	unsubscribe()
	unsubscribe()
	if console.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", console.Subscribers())
	}
	if _, ok := <-messages; ok {
		t.Error("Channel should be closed after unsubscribe")
	}

	// Writing with no subscribers is fine
	fmt.Fprintln(console, "nobody listening")
}
