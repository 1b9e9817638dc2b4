package mailer

import (
	"context"
	"sync"
	"time"
)

type Message struct {
	Kind string
	To   Recipient
	URL  string
}

// Capture keeps every message in memory. FailResets makes password reset
// delivery fail with the given error.
type Capture struct {
	mu         sync.Mutex
	messages   []Message
	FailResets error
}

func (c *Capture) SendWelcome(_ context.Context, to Recipient, profileURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Kind: "welcome", To: to, URL: profileURL})
	return nil
}

func (c *Capture) SendPasswordReset(_ context.Context, to Recipient, resetURL string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailResets != nil {
		return c.FailResets
	}
	c.messages = append(c.messages, Message{Kind: "reset", To: to, URL: resetURL})
	return nil
}

func (c *Capture) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// LastReset returns the most recent reset message sent to email.
func (c *Capture) LastReset(email string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Kind == "reset" && c.messages[i].To.Email == email {
			return c.messages[i], true
		}
	}
	return Message{}, false
}
