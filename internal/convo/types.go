// Package convo implements the Conversation Loader (spec.md §4.5):
// discovering conversation documents (combined or per-conversation),
// deduplicating by conversation-id, dropping empty/epoch records, and
// linearizing the branching map into a flat message view.
package convo

import (
	"encoding/json"

	"chatgpt-export-corpus/internal/timeparse"
)

// Timestamp accepts either the epoch-float form every recent export
// generation uses, or the ISO-8601 string form seen in some
// recovered_files documents, deferring the actual parse to
// internal/timeparse.
type Timestamp json.RawMessage

// UnmarshalJSON stores the raw bytes verbatim; interpretation happens
// in Resolve so the zero value (absent field) stays distinguishable
// from an explicit null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = append((*t)[:0], data...)
	return nil
}

// Resolve interprets the stored raw JSON as Unix seconds, reporting
// false for an absent, null or unparsable value and for a numeric
// zero epoch.
func (t Timestamp) Resolve() (int64, bool) {
	if len(t) == 0 || string(t) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(t, &f); err == nil {
		if tm, ok := timeparse.FromEpoch(&f); ok {
			return tm.Unix(), true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(t, &s); err == nil {
		if tm, ok := timeparse.FromString(s); ok {
			return tm.Unix(), true
		}
	}
	return 0, false
}

// Document is one decoded conversation record, in either its combined
// (conversations.json, a list of these) or per-conversation form.
type Document struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Title          string          `json:"title"`
	CreateTime     Timestamp       `json:"create_time"`
	UpdateTime     Timestamp       `json:"update_time"`
	CurrentNode    string          `json:"current_node"`
	Mapping        map[string]Node `json:"mapping"`

	// SourcePath records which file this document was decoded from,
	// for diagnostics only.
	SourcePath string `json:"-"`
}

// Node is one branching-map entry.
type Node struct {
	ID       string   `json:"id"`
	Parent   string   `json:"parent"`
	Children []string `json:"children"`
	Message  *Message `json:"message"`
}

// Message is a mapping node's payload.
type Message struct {
	ID         string                     `json:"id"`
	Author     Author                     `json:"author"`
	CreateTime Timestamp                  `json:"create_time"`
	UpdateTime Timestamp                  `json:"update_time"`
	Content    Content                    `json:"content"`
	Metadata   map[string]json.RawMessage `json:"metadata"`
}

// Author identifies who sent a message.
type Author struct {
	Role string `json:"role"`
}

// Content is a message's payload: either a list of parts (each either
// a plain string or an object carrying an asset_pointer/image_url) or
// a flat text/language pair (canvas, code).
type Content struct {
	ContentType string            `json:"content_type"`
	Parts       []json.RawMessage `json:"parts"`
	Text        string            `json:"text"`
	Language    string            `json:"language"`
}

// ConvID returns the document's stable identifier, preferring
// conversation_id over id, matching the export's own fallback order.
func (d Document) ConvID() string {
	if d.ConversationID != "" {
		return d.ConversationID
	}
	return d.ID
}

// MessageCount returns how many mapping nodes carry an actual message,
// used by dedup to keep the record with the largest message count.
func (d Document) MessageCount() int {
	n := 0
	for _, node := range d.Mapping {
		if node.Message != nil {
			n++
		}
	}
	return n
}
