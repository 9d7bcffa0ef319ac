// Package reference implements the Reference Extractor (spec.md §4.3):
// for each conversation, traverse the message graph and collect every
// media citation from structured fields and free text, tagging each
// with an explicit CitationKind rather than mirroring the source's
// reflection-style duck-typed field plucking (spec.md §9).
package reference

import (
	"encoding/json"
	"path"
	"regexp"
	"sort"
	"strings"

	"chatgpt-export-corpus/internal/convo"
	"chatgpt-export-corpus/internal/idgen"
	"chatgpt-export-corpus/internal/models"
)

var (
	fileIDTokenPattern = regexp.MustCompile(`file-[A-Za-z0-9]+`)
	uuidTokenPattern    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	filenameTokenPattern = regexp.MustCompile(`(?i)[\w\-]+\.(png|jpe?g|gif|webp|bmp|pdf|mp3|wav|m4a|ogg|mp4|mov)`)
)

// dallePart mirrors the subset of a content part's shape the
// extractor cares about; both image parts and DALL-E generations are
// carried as objects with an asset_pointer, per the real export
// schema and original_source/media_reference_extractor.py.
type dallePart struct {
	AssetPointer string          `json:"asset_pointer"`
	SizeBytes    *int64          `json:"size_bytes"`
	Type         string          `json:"type"`
	ImageURL     json.RawMessage `json:"image_url"`
	Metadata     struct {
		Dalle *struct {
			GenID string `json:"gen_id"`
		} `json:"dalle"`
	} `json:"metadata"`
}

type attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     *int64 `json:"size"`
	MimeType string `json:"mimeType"`
}

// ExtractAll collects every Citation in a conversation document,
// visiting mapping nodes in node-id order (order doesn't affect
// correctness — the resolver processes citations independent of order
// — but it keeps output deterministic when citations are logged in
// verbose mode).
func ExtractAll(d convo.Document) []models.Citation {
	var out []models.Citation

	nodeIDs := make([]string, 0, len(d.Mapping))
	for id := range d.Mapping {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	for _, nodeID := range nodeIDs {
		node := d.Mapping[nodeID]
		if node.Message == nil {
			continue
		}
		msgID := node.Message.ID

		out = append(out, attachmentCitations(d.ConvID(), msgID, node.Message.Metadata)...)

		for _, raw := range node.Message.Content.Parts {
			out = append(out, partCitations(d.ConvID(), msgID, raw)...)
		}

		if node.Message.Content.ContentType == "text" || node.Message.Content.ContentType == "multimodal_text" {
			for _, raw := range node.Message.Content.Parts {
				var text string
				if err := json.Unmarshal(raw, &text); err == nil {
					out = append(out, textCitations(d.ConvID(), msgID, text)...)
				}
			}
		}
	}

	return out
}

func attachmentCitations(convID, msgID string, metadata map[string]json.RawMessage) []models.Citation {
	raw, ok := metadata["attachments"]
	if !ok {
		return nil
	}
	var attachments []attachment
	if err := json.Unmarshal(raw, &attachments); err != nil {
		return nil
	}
	var out []models.Citation
	for _, a := range attachments {
		if a.ID == "" {
			continue
		}
		out = append(out, models.Citation{
			ConversationID: convID,
			MessageID:      msgID,
			Kind:           models.CitationFileIDAttachment,
			Payload:        a.ID,
			ExpectedSize:   a.Size,
			OriginalName:   a.Name,
		})
	}
	return out
}

func partCitations(convID, msgID string, raw json.RawMessage) []models.Citation {
	// Plain string parts are handled by textCitations at the call
	// site; only object parts carry asset_pointer/image_url.
	var probe json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	trimmed := strings.TrimSpace(string(probe))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	var part dallePart
	if err := json.Unmarshal(raw, &part); err != nil {
		return nil
	}

	var out []models.Citation

	switch {
	case strings.HasPrefix(part.AssetPointer, "sediment://file_"):
		hash := strings.TrimPrefix(part.AssetPointer, "sediment://file_")
		out = append(out, models.Citation{
			ConversationID: convID,
			MessageID:      msgID,
			Kind:           models.CitationSedimentPointer,
			Payload:        hash,
			ExpectedSize:   part.SizeBytes,
		})

	case strings.HasPrefix(part.AssetPointer, "file-service://"):
		fileID := strings.TrimPrefix(part.AssetPointer, "file-service://")
		kind := models.CitationFileServicePtr
		var genID string
		if part.Metadata.Dalle != nil && part.Metadata.Dalle.GenID != "" {
			kind = models.CitationDalleAsset
			genID = part.Metadata.Dalle.GenID
		}
		out = append(out, models.Citation{
			ConversationID: convID,
			MessageID:      msgID,
			Kind:           kind,
			Payload:        fileID,
			ExpectedSize:   part.SizeBytes,
			GenID:          genID,
		})
	}

	if part.Type == "image" && len(part.ImageURL) > 0 {
		if name := imageURLBasename(part.ImageURL); name != "" {
			out = append(out, models.Citation{
				ConversationID: convID,
				MessageID:      msgID,
				Kind:           models.CitationInlineName,
				Payload:        name,
			})
		}
	}

	return out
}

func imageURLBasename(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return path.Base(strings.SplitN(s, "?", 2)[0])
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
		return path.Base(strings.SplitN(obj.URL, "?", 2)[0])
	}
	return ""
}

func textCitations(convID, msgID, text string) []models.Citation {
	var out []models.Citation

	for _, m := range fileIDTokenPattern.FindAllString(text, -1) {
		out = append(out, models.Citation{
			ConversationID: convID,
			MessageID:      msgID,
			Kind:           models.CitationInlineFileID,
			Payload:        m,
		})
	}
	for _, m := range uuidTokenPattern.FindAllString(text, -1) {
		if !idgen.IsCanonical(m) {
			continue
		}
		out = append(out, models.Citation{
			ConversationID: convID,
			MessageID:      msgID,
			Kind:           models.CitationInlineUUID,
			Payload:        strings.ToLower(m),
		})
	}
	for _, m := range filenameTokenPattern.FindAllString(text, -1) {
		out = append(out, models.Citation{
			ConversationID: convID,
			MessageID:      msgID,
			Kind:           models.CitationInlineName,
			Payload:        m,
		})
	}

	return out
}
