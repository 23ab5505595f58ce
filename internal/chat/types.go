// Package chat defines the canonical provider-agnostic request model and the
// normalization passes applied before a request is dispatched upstream.
//
// Every dialect (Ollama, OpenAI, Anthropic) is parsed into a chat.Request,
// normalized, and only then serialized into the upstream wire shape.
package chat

import (
	"encoding/json"
	"fmt"
)

// Role is a message author role. Providers only accept the three below.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType tags a content part in a multi-part message.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// Part is one element of a multi-part message content.
// Exactly one of Text or ImageURL is meaningful, selected by Type.
type Part struct {
	Type     PartType
	Text     string
	ImageURL string
}

// Message is one turn of a conversation. Content is either a plain string
// (Parts == nil) or an ordered list of parts (Parts != nil, Text ignored).
type Message struct {
	Role  Role
	Text  string
	Parts []Part
}

// Request is the canonical chat-completion request.
// Model always carries a "provider:" prefix until the registry strips it.
type Request struct {
	Model    string
	Messages []Message
	Stream   bool
}

// IsMultipart reports whether the message content is a part list.
func (m Message) IsMultipart() bool {
	return m.Parts != nil
}

// FlattenText returns the textual content of the message. For multi-part
// content the non-empty text parts are joined with newlines, matching what
// strict text-only upstreams expect.
func (m Message) FlattenText() string {
	if !m.IsMultipart() {
		return m.Text
	}
	out := ""
	for _, p := range m.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// wire shapes for the OpenAI-compatible upstream format.

type wireTextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireImagePart struct {
	Type     string `json:"type"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

// MarshalJSON serializes the message in OpenAI chat format: string content
// for plain messages, a typed part array for multi-part content.
func (m Message) MarshalJSON() ([]byte, error) {
	if !m.IsMultipart() {
		return json.Marshal(struct {
			Role    Role   `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Text})
	}

	parts := make([]any, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case PartText:
			parts = append(parts, wireTextPart{Type: "text", Text: p.Text})
		case PartImageURL:
			img := wireImagePart{Type: "image_url"}
			img.ImageURL.URL = p.ImageURL
			parts = append(parts, img)
		}
	}
	return json.Marshal(struct {
		Role    Role  `json:"role"`
		Content []any `json:"content"`
	}{m.Role, parts})
}

// UnmarshalJSON accepts both string content and OpenAI-style part arrays.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Text = ""
	m.Parts = nil

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	if raw.Content[0] == '"' {
		return json.Unmarshal(raw.Content, &m.Text)
	}
	if raw.Content[0] != '[' {
		return fmt.Errorf("chat: unsupported content shape %q", string(raw.Content[0]))
	}

	var rawParts []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	if err := json.Unmarshal(raw.Content, &rawParts); err != nil {
		return err
	}
	m.Parts = make([]Part, 0, len(rawParts))
	for _, rp := range rawParts {
		switch rp.Type {
		case "text":
			m.Parts = append(m.Parts, Part{Type: PartText, Text: rp.Text})
		case "image_url":
			m.Parts = append(m.Parts, Part{Type: PartImageURL, ImageURL: rp.ImageURL.URL})
		}
	}
	return nil
}
