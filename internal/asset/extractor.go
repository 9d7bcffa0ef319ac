// Package asset implements the Asset Extractor (spec.md §4.6): pulls
// canvas artifacts and fenced code blocks out of message content,
// independent of media resolution. Assets never live under media/.
package asset

import (
	"encoding/json"
	"regexp"
	"strings"

	"chatgpt-export-corpus/internal/convo"
	"chatgpt-export-corpus/internal/models"
)

var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)\\n(.*?)```")

// ExtractAll walks every node's message content and returns one Asset
// per canvas document and per fenced code block found in a text part.
// Nodes are visited in Go map order, so the order of assets from
// different nodes is not fixed; within one node, code-block ordinals
// follow the order of the blocks in its text parts.
func ExtractAll(d convo.Document) []models.Asset {
	var out []models.Asset

	for nodeID, node := range d.Mapping {
		if node.Message == nil {
			continue
		}
		content := node.Message.Content

		if content.ContentType == "code" {
			lang := content.Language
			if lang == "" {
				lang = "txt"
			}
			out = append(out, models.Asset{
				NodeID:   nodeID,
				Ordinal:  0,
				Kind:     "canvas",
				Language: lang,
				Payload:  []byte(content.Text),
			})
			continue
		}

		if content.ContentType != "text" && content.ContentType != "multimodal_text" {
			continue
		}

		ordinal := 0
		for _, raw := range content.Parts {
			var text string
			if err := json.Unmarshal(raw, &text); err != nil {
				continue
			}
			for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
				lang := strings.TrimSpace(m[1])
				if lang == "" {
					lang = "txt"
				}
				out = append(out, models.Asset{
					NodeID:   nodeID,
					Ordinal:  ordinal,
					Kind:     "code_block",
					Language: lang,
					Payload:  []byte(m[2]),
				})
				ordinal++
			}
		}
	}

	return out
}
