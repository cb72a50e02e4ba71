// Package email reads candidate quotation messages from a mailbox.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider searches a mailbox and fetches single messages.
type Provider interface {
	// Search returns references to messages matching q, newest first,
	// at most q.MaxResults of them.
	Search(ctx context.Context, q Query) ([]MessageRef, error)
	// Fetch returns headers and decoded bodies of one message.
	Fetch(ctx context.Context, id string) (*Message, error)
}

// Query bounds a mailbox search.
type Query struct {
	Keywords   []string
	After      time.Time
	Before     time.Time
	MaxResults int
}

// MessageRef identifies a message returned by Search.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Message is one fetched email.
type Message struct {
	ID         string
	ThreadID   string
	From       string
	To         []string
	Cc         []string
	Subject    string
	ReceivedAt time.Time
	HTML       string
	Text       string
}

// PlainText returns the text part, or the HTML part rendered to text.
func (m *Message) PlainText() string {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	return HTMLToText(m.HTML)
}

// BuildQuery renders q in Gmail search syntax, for example
// `(subject:quotation OR quotation OR subject:"rate offer" OR "rate offer") after:2024/01/01`.
// Dates are inclusive of After and exclusive of Before.
func BuildQuery(q Query) string {
	var terms []string
	for _, kw := range q.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsAny(kw, " \t") {
			kw = `"` + strings.ReplaceAll(kw, `"`, "") + `"`
		}
		terms = append(terms, "subject:"+kw, kw)
	}

	var parts []string
	if len(terms) > 0 {
		parts = append(parts, "("+strings.Join(terms, " OR ")+")")
	}
	if !q.After.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%s", q.After.Format("2006/01/02")))
	}
	if !q.Before.IsZero() {
		parts = append(parts, fmt.Sprintf("before:%s", q.Before.Format("2006/01/02")))
	}
	return strings.Join(parts, " ")
}
