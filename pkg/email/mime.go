package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"google.golang.org/api/gmail/v1"
)

// decodeMessage converts a Gmail message in "full" format.
func decodeMessage(gm *gmail.Message) (*Message, error) {
	if gm == nil || gm.Payload == nil {
		return nil, fmt.Errorf("message has no payload")
	}
	m := &Message{ID: gm.Id, ThreadID: gm.ThreadId}

	for _, h := range gm.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			m.From = decodeHeader(h.Value)
		case "to":
			m.To = append(m.To, decodeHeader(h.Value))
		case "cc":
			m.Cc = append(m.Cc, decodeHeader(h.Value))
		case "subject":
			m.Subject = decodeHeader(h.Value)
		case "date":
			if t, err := mail.ParseDate(h.Value); err == nil {
				m.ReceivedAt = t.UTC()
			}
		}
	}
	if m.ReceivedAt.IsZero() && gm.InternalDate > 0 {
		m.ReceivedAt = time.UnixMilli(gm.InternalDate).UTC()
	}

	if err := collectBodies(gm.Payload, m); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", gm.Id, err)
	}
	return m, nil
}

// collectBodies walks the MIME tree and keeps the first inline text/html and
// text/plain parts. Attachments are skipped.
func collectBodies(p *gmail.MessagePart, m *Message) error {
	if p == nil {
		return nil
	}
	mediaType, params, err := mime.ParseMediaType(p.MimeType)
	if err != nil {
		mediaType = strings.ToLower(p.MimeType)
	}
	if ct := partHeader(p, "Content-Type"); ct != "" {
		if _, ps, err := mime.ParseMediaType(ct); err == nil {
			params = ps
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		for _, child := range p.Parts {
			if err := collectBodies(child, m); err != nil {
				return err
			}
		}
		return nil
	}
	if p.Filename != "" || p.Body == nil || p.Body.Data == "" {
		return nil
	}

	switch mediaType {
	case "text/html":
		if m.HTML != "" {
			return nil
		}
		text, err := decodeBody(p.Body.Data, params["charset"])
		if err != nil {
			return err
		}
		m.HTML = text
	case "text/plain":
		if m.Text != "" {
			return nil
		}
		text, err := decodeBody(p.Body.Data, params["charset"])
		if err != nil {
			return err
		}
		m.Text = text
	}
	return nil
}

func partHeader(p *gmail.MessagePart, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeBody decodes Gmail's base64url body data and converts it to UTF-8.
func decodeBody(data, charsetLabel string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", fmt.Errorf("decode base64 body: %w", err)
	}
	if charsetLabel == "" || strings.EqualFold(charsetLabel, "utf-8") || strings.EqualFold(charsetLabel, "us-ascii") {
		return string(raw), nil
	}
	r, err := charset.NewReaderLabel(charsetLabel, bytes.NewReader(raw))
	if err != nil {
		// unknown charset: keep the bytes
		return string(raw), nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("convert %s body: %w", charsetLabel, err)
	}
	return string(out), nil
}

var headerDecoder = &mime.WordDecoder{
	CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	},
}

// decodeHeader expands RFC 2047 encoded words.
func decodeHeader(v string) string {
	out, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return out
}
