package main

import (
	"fmt"
	"io"
	"sync"

	"screenguide/internal/domain"
)

// consoleSink prints assistant events for a terminal user.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer

	lastTranscript string
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (c *consoleSink) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *consoleSink) StatusChanged(status domain.Status, reason domain.StatusReason) {
	c.printf("[%s] %s\n", status, reason)
}

func (c *consoleSink) TranscriptUpdated(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if text == c.lastTranscript {
		return
	}
	c.lastTranscript = text
	if text == "" {
		return
	}
	fmt.Fprintf(c.out, "heard: %s\n", text)
}

func (c *consoleSink) InstructionsUpdated(text string) {
	c.printf("\n>> %s\n\n", text)
}

func (c *consoleSink) NarrationReady(audio domain.Audio) {
	c.printf("narration ready (%d bytes %s)\n", len(audio.Data), audio.MIMEType)
}

func (c *consoleSink) Notify(n domain.Notification) {
	if n.Detail == "" {
		c.printf("! %s\n", n.Title)
		return
	}
	c.printf("! %s: %s\n", n.Title, n.Detail)
}
