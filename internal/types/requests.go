package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Core request/response types
type ChatRequest struct {
	ID          string    `json:"id,omitempty"`
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float32  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`

	// Routing hints
	Preferences *Preferences `json:"preferences,omitempty"`

	// Metadata
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Message is a role-tagged chat message. Content is either a plain string or a
// list of multimodal parts on the wire.
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"-"`
	Parts   []ContentPart `json:"-"`
	Name    string        `json:"name,omitempty"`
}

type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "auto", "low", "high"
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name,omitempty"`
}

// UnmarshalJSON accepts string or part-list content
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Name = w.Name
	m.Content = ""
	m.Parts = nil

	trimmed := strings.TrimSpace(string(w.Content))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(w.Content, &m.Parts); err != nil {
			return fmt.Errorf("invalid content parts: %w", err)
		}
		return nil
	default:
		if err := json.Unmarshal(w.Content, &m.Content); err != nil {
			return fmt.Errorf("invalid content: %w", err)
		}
		return nil
	}
}

// MarshalJSON writes parts when present, the plain string otherwise
func (m Message) MarshalJSON() ([]byte, error) {
	var content interface{} = m.Content
	if len(m.Parts) > 0 {
		content = m.Parts
	}
	return json.Marshal(struct {
		Role    string      `json:"role"`
		Content interface{} `json:"content"`
		Name    string      `json:"name,omitempty"`
	}{m.Role, content, m.Name})
}

// Text flattens the message into plain text. Image parts are rendered as
// markdown image markup.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	if m.Content != "" {
		b.WriteString(m.Content)
	}
	for _, p := range m.Parts {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		switch p.Type {
		case "image_url":
			if p.ImageURL != nil {
				b.WriteString("![image](" + p.ImageURL.URL + ")")
			}
		default:
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
