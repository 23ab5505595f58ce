package chat

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Delimiters of the legacy inline-image convention: some coding agents embed
// a data-URI screenshot between the raw text and their environment block.
const (
	imageMarker = "data:image"
	imageEndTag = "<environment_details>"
)

// Normalize applies the fixed-order normalization passes. mergeRoles enables
// the consecutive-same-role merge required by providers that reject adjacent
// turns with the same role.
func Normalize(messages []Message, mergeRoles bool) []Message {
	messages = SpliceImages(messages)
	messages = DropEmpty(messages)
	if mergeRoles {
		messages = MergeRuns(messages)
	}
	return messages
}

// SpliceImages rewrites user messages that carry an inline data-URI image
// into two-part content: [text before+after, image_url]. A message whose
// markers are malformed is left untouched; this pass never fails.
func SpliceImages(messages []Message) []Message {
	for i := range messages {
		m := &messages[i]
		if m.Role != RoleUser || m.IsMultipart() {
			continue
		}
		if !strings.Contains(m.Text, imageMarker) {
			continue
		}

		lead, rest, _ := strings.Cut(m.Text, imageMarker)
		image, trail, found := strings.Cut(rest, imageEndTag)
		if !found {
			log.Warn().Int("message_index", i).Msg("inline image missing end marker, leaving message unchanged")
			continue
		}

		m.Text = ""
		m.Parts = []Part{
			{Type: PartText, Text: lead + trail},
			{Type: PartImageURL, ImageURL: imageMarker + image},
		}
	}
	return messages
}

// DropEmpty removes messages with no usable content: an empty or blank
// string, or a part list with neither a non-empty text part nor an image.
// Some clients send assistant turns with empty content; strict upstreams
// reject those. Order of the remaining messages is preserved.
func DropEmpty(messages []Message) []Message {
	kept := messages[:0]
	for _, m := range messages {
		if m.IsMultipart() {
			if hasUsablePart(m.Parts) {
				kept = append(kept, m)
			}
			continue
		}
		if strings.TrimSpace(m.Text) != "" {
			kept = append(kept, m)
		}
	}
	return kept
}

func hasUsablePart(parts []Part) bool {
	for _, p := range parts {
		if p.Type == PartText && strings.TrimSpace(p.Text) != "" {
			return true
		}
		if p.Type == PartImageURL && p.ImageURL != "" {
			return true
		}
	}
	return false
}

// MergeRuns merges consecutive same-role messages for providers that reject
// adjacent turns sharing a role. Leading system messages are concatenated
// into a single system message; the remaining messages have multi-part
// content flattened to text, then runs of equal roles are joined by a blank
// line, keeping the run's role.
func MergeRuns(messages []Message) []Message {
	if len(messages) == 0 {
		return messages
	}

	var out []Message

	systemEnd := 0
	for systemEnd < len(messages) && messages[systemEnd].Role == RoleSystem {
		systemEnd++
	}
	if systemEnd > 0 {
		texts := make([]string, 0, systemEnd)
		for _, m := range messages[:systemEnd] {
			texts = append(texts, m.FlattenText())
		}
		out = append(out, Message{Role: RoleSystem, Text: strings.Join(texts, "\n\n")})
	}

	for _, m := range messages[systemEnd:] {
		text := m.FlattenText()
		if len(out) > 0 && out[len(out)-1].Role == m.Role {
			out[len(out)-1].Text += "\n\n" + text
			continue
		}
		out = append(out, Message{Role: m.Role, Text: text})
	}
	return out
}
