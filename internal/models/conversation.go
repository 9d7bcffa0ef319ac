// Package models holds the record types shared across the pipeline
// stages: the media universe (MediaFile), the citations extracted from
// message content (Citation), the normalized Conversation and its
// Messages, and the code/canvas Assets pulled out of message content.
package models

import (
	"strconv"
	"time"
)

// MIMEClass is a coarse classification of a MediaFile, derived from its
// extension or magic bytes.
type MIMEClass string

const (
	MIMEImage    MIMEClass = "image"
	MIMEAudio    MIMEClass = "audio"
	MIMEDocument MIMEClass = "document"
	MIMEOther    MIMEClass = "other"
)

// MediaFile is one physical file discovered under the extraction root
// (or a recovery folder). It is immutable once created by the indexer.
type MediaFile struct {
	Path           string
	Name           string
	Size           int64
	FileID         string
	ContentHash    string
	ConversationID string
	MIME           MIMEClass
	FromRecovery   bool
}

// CitationKind tags the source scheme a Citation was extracted from.
type CitationKind string

const (
	CitationFileIDAttachment CitationKind = "file_id_attachment"
	CitationSedimentPointer  CitationKind = "sediment_pointer"
	CitationFileServicePtr   CitationKind = "file_service_pointer"
	CitationDalleAsset       CitationKind = "dalle_asset"
	CitationInlineName       CitationKind = "inline_name"
	CitationInlineUUID       CitationKind = "inline_uuid"
	CitationInlineFileID     CitationKind = "inline_file_id"
)

// Citation is one reference to media found inside a message.
type Citation struct {
	ConversationID string
	MessageID      string
	Kind           CitationKind
	Payload        string
	ExpectedSize   *int64
	GenID          string
	OriginalName   string
}

// Message is one flattened node in a conversation's linearized view.
type Message struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Content     string    `json:"content"`
	ContentType string    `json:"contentType,omitempty"`
	Language    string    `json:"language,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RawNode is the original branching-map node, kept for round-tripping.
type RawNode struct {
	ID       string       `json:"id"`
	Parent   string       `json:"parent,omitempty"`
	Children []string     `json:"children,omitempty"`
	Message  *RawMessage  `json:"message,omitempty"`
}

// RawMessage is the original message payload backing a RawNode.
type RawMessage struct {
	ID         string         `json:"id"`
	Author     string         `json:"author"`
	CreateTime *float64       `json:"create_time,omitempty"`
	UpdateTime *float64       `json:"update_time,omitempty"`
	Content    RawContent     `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RawContent is the original message content payload.
type RawContent struct {
	ContentType string `json:"content_type"`
	Parts       []any  `json:"parts,omitempty"`
	Text        string `json:"text,omitempty"`
	Language    string `json:"language,omitempty"`
}

// MediaBinding records which citation token — a file-id, a sediment
// hash, or an original filename — a resolved media file was matched
// against, so the Output Writer can key media_manifest.json by the
// token instead of the file's on-disk basename.
type MediaBinding struct {
	Token string
	Path  string
}

// Asset is a code-bearing artifact extracted from a message.
type Asset struct {
	NodeID   string
	Ordinal  int
	Kind     string // "canvas" or "code_block"
	Language string
	Payload  []byte
}

// FileName returns the on-disk name for the asset, per spec.md §3:
// canvas_{nodeId}_{n}.{lang} or code_block_{nodeId}_{n}.{lang}.
func (a Asset) FileName() string {
	lang := a.Language
	if lang == "" {
		lang = "txt"
	}
	return a.Kind + "_" + a.NodeID + "_" + strconv.Itoa(a.Ordinal) + "." + lang
}

// Conversation is the normalized, resolved representation written to
// disk by the Output Writer.
type Conversation struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Summary             string             `json:"summary"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
	CurrentNode         string             `json:"currentNode,omitempty"`
	Mapping             map[string]RawNode `json:"mapping"`
	Messages            []Message          `json:"messages,omitempty"`
	ResolvedMedia       []string           `json:"resolvedMedia,omitempty"`
	MediaBindings       []MediaBinding     `json:"-"`
	UnresolvedCitations []Citation         `json:"unresolvedCitations,omitempty"`
	Assets              []Asset            `json:"-"`

	// FolderName is assigned by the writer once the sorted worklist is
	// known; it is not part of the conversation's identity, but the
	// JSON-file ConversationStore persists it so internal/api can serve
	// /media and /assets without re-deriving it from the master index.
	FolderName string `json:"folderName,omitempty"`
}
