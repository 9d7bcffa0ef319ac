package convo

import (
	"encoding/json"
	"strings"
	"time"

	"chatgpt-export-corpus/internal/idgen"
	"chatgpt-export-corpus/internal/models"
)

// Normalize linearizes a Document's branching map into a flat
// Messages view and copies the original mapping for round-tripping,
// producing the normalized Conversation from spec.md §3. The
// resolved-media / unresolved-citations / assets fields are left
// empty; those are filled in by internal/resolver and internal/asset.
func Normalize(d Document) models.Conversation {
	timeline := traversalPath(d)

	var (
		earliest, latest       time.Time
		hasEarliest, hasLatest bool
		firstUser, firstAsst   string
		messages               []models.Message
	)

	for _, node := range timeline {
		if node.Message == nil {
			continue
		}
		if ts, ok := node.Message.CreateTime.Resolve(); ok {
			t := time.Unix(ts, 0).UTC()
			if !hasEarliest || t.Before(earliest) {
				earliest, hasEarliest = t, true
			}
			if !hasLatest || t.After(latest) {
				latest, hasLatest = t, true
			}
		}

		text := extractText(node.Message.Content)
		role := strings.ToLower(node.Message.Author.Role)
		if text == "" && role != "user" && role != "assistant" {
			continue
		}

		switch role {
		case "user":
			if firstUser == "" {
				firstUser = text
			}
		case "assistant":
			if firstAsst == "" {
				firstAsst = text
			}
		}

		var createdAt time.Time
		if ts, ok := node.Message.CreateTime.Resolve(); ok {
			createdAt = time.Unix(ts, 0).UTC()
		}

		messages = append(messages, models.Message{
			ID:          node.ID,
			Author:      role,
			Content:     text,
			ContentType: node.Message.Content.ContentType,
			Language:    node.Message.Content.Language,
			CreatedAt:   createdAt,
		})
	}

	if !hasEarliest {
		if ts, ok := d.CreateTime.Resolve(); ok {
			earliest, hasEarliest = time.Unix(ts, 0).UTC(), true
		}
	}
	if !hasLatest {
		if ts, ok := d.UpdateTime.Resolve(); ok {
			latest, hasLatest = time.Unix(ts, 0).UTC(), true
		} else {
			latest = earliest
		}
	}

	summary := firstNonEmpty(firstUser, firstAsst)
	summary = truncate(summary, 240)
	if summary == "" {
		summary = "No summary available"
	}

	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = truncate(summary, 80)
		if title == "" {
			title = "Untitled conversation"
		}
	}

	id := d.ConvID()
	if id == "" {
		id = idgen.Deterministic(title, seedFor(d))
	}

	createdAt, updatedAt := earliest, latest
	if !hasEarliest {
		createdAt = time.Time{}
	}
	if !hasLatest {
		updatedAt = createdAt
	}

	return models.Conversation{
		ID:          id,
		Title:       title,
		Summary:     summary,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		CurrentNode: d.CurrentNode,
		Mapping:     copyMapping(d.Mapping),
		Messages:    messages,
	}
}

// traversalPath linearizes the branching map, preferring the
// current_node chain (walked from leaf to root, then reversed) and
// falling back to timestamp ordering, exactly as the original
// traversalPath/timelineByTimestamps do; a visited-set guards against
// cyclic or self-referential mappings, making the source's implicit
// recursion-limit protection explicit per spec.md §9.
func traversalPath(d Document) []Node {
	if d.CurrentNode == "" {
		return timelineByTimestamps(d)
	}

	path := make([]Node, 0, len(d.Mapping))
	seen := make(map[string]bool, len(d.Mapping))
	nodeID := d.CurrentNode

	for nodeID != "" {
		if seen[nodeID] {
			break
		}
		node, ok := d.Mapping[nodeID]
		if !ok {
			break
		}
		seen[nodeID] = true
		path = append(path, node)
		nodeID = node.Parent
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	if len(path) == 0 {
		return timelineByTimestamps(d)
	}
	return path
}

func timelineByTimestamps(d Document) []Node {
	nodes := make([]Node, 0, len(d.Mapping))
	for _, n := range d.Mapping {
		nodes = append(nodes, n)
	}
	sortNodes(nodes)
	return nodes
}

func sortNodes(nodes []Node) {
	less := func(i, j int) bool {
		ti, okI := nodeTime(nodes[i])
		tj, okJ := nodeTime(nodes[j])
		if okI && okJ {
			if ti == tj {
				return nodes[i].ID < nodes[j].ID
			}
			return ti < tj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return nodes[i].ID < nodes[j].ID
	}
	// insertion sort keeps this file free of an extra "sort" import
	// clash with the resolver's own sort usage; n is always small
	// (messages in one conversation).
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

func nodeTime(n Node) (int64, bool) {
	if n.Message == nil {
		return 0, false
	}
	return n.Message.CreateTime.Resolve()
}

func extractText(c Content) string {
	switch c.ContentType {
	case "text", "multimodal_text":
		return collectStringParts(c.Parts)
	default:
		return ""
	}
}

func collectStringParts(parts []json.RawMessage) string {
	var b strings.Builder
	for _, part := range parts {
		var s string
		if err := json.Unmarshal(part, &s); err != nil {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}
	return strings.TrimSpace(b.String())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	trimmed := strings.TrimSpace(text[:limit])
	if !strings.HasSuffix(trimmed, "...") {
		trimmed += "..."
	}
	return trimmed
}

func copyMapping(src map[string]Node) map[string]models.RawNode {
	out := make(map[string]models.RawNode, len(src))
	for k, n := range src {
		rn := models.RawNode{ID: n.ID, Parent: n.Parent, Children: n.Children}
		if n.Message != nil {
			rn.Message = &models.RawMessage{
				ID:         n.Message.ID,
				Author:     n.Message.Author.Role,
				Content: models.RawContent{
					ContentType: n.Message.Content.ContentType,
					Text:        n.Message.Content.Text,
					Language:    n.Message.Content.Language,
				},
				Metadata: decodeMetadata(n.Message.Metadata),
			}
			if ts, ok := n.Message.CreateTime.Resolve(); ok {
				f := float64(ts)
				rn.Message.CreateTime = &f
			}
			if ts, ok := n.Message.UpdateTime.Resolve(); ok {
				f := float64(ts)
				rn.Message.UpdateTime = &f
			}
		}
		out[k] = rn
	}
	return out
}

func decodeMetadata(raw map[string]json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			out[k] = val
		}
	}
	return out
}
