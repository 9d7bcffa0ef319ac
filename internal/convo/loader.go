package convo

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"chatgpt-export-corpus/internal/logging"
)

// Discover walks root and returns every .json file whose content looks
// like a conversation document or a list of them, per spec.md §4.5.
// This subsumes original_source's filename-based heuristic
// ("conversations.json" or "*conversation*.json") with a content-shape
// check, since some export generations name the file differently.
func Discover(root string, log *logging.Logger) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(d.Name())) != ".json" {
			return nil
		}
		if looksLikeConversationFile(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Debugf("discovered %d candidate conversation documents", len(out))
	}
	return out, nil
}

// looksLikeConversationFile peeks at a JSON file's shape without
// paying for a full decode: an object with a non-empty "mapping" key,
// or an array whose first element does.
func looksLikeConversationFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '{':
		var probe struct {
			Mapping map[string]json.RawMessage `json:"mapping"`
		}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return false
		}
		return len(probe.Mapping) > 0
	case '[':
		var probe []struct {
			Mapping map[string]json.RawMessage `json:"mapping"`
		}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return false
		}
		for _, p := range probe {
			if len(p.Mapping) > 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// decodeFile loads every Document found in path, handling both the
// combined-document (array) and per-conversation (single object)
// shapes, per spec.md §2 step 3.
func decodeFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var docs []Document
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, err
		}
	} else {
		var doc Document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		docs = []Document{doc}
	}
	for i := range docs {
		docs[i].SourcePath = path
	}
	return docs, nil
}

// LoadAll discovers, decodes, deduplicates and filters conversation
// documents under root, returning the survivors ready for
// linearization. Malformed individual documents are logged and
// skipped (conversation_parse_error, spec.md §7), not fatal.
func LoadAll(root string, log *logging.Logger) ([]Document, error) {
	paths, err := Discover(root, log)
	if err != nil {
		return nil, err
	}

	var all []Document
	for _, p := range paths {
		docs, err := decodeFile(p)
		if err != nil {
			if log != nil {
				log.Warnf("conversation_parse_error: %s: %v", p, err)
			}
			continue
		}
		all = append(all, docs...)
	}

	deduped := dedupByID(all)
	survivors := dropEmptyOrEpoch(deduped)

	if log != nil {
		log.Debugf("loaded %d documents, %d after dedup, %d after drop rules",
			len(all), len(deduped), len(survivors))
	}
	return survivors, nil
}

// dedupByID keeps, for each conversation-id, the record with the
// largest message count, per spec.md §4.5. A document with no
// resolvable id can't be deduped against anything, so it falls
// through untouched instead of being dropped here — Normalize mints
// it a deterministic id via idgen.Deterministic.
func dedupByID(docs []Document) []Document {
	best := make(map[string]Document, len(docs))
	order := make([]string, 0, len(docs))
	var unidentified []Document
	for _, d := range docs {
		id := d.ConvID()
		if id == "" {
			unidentified = append(unidentified, d)
			continue
		}
		cur, exists := best[id]
		if !exists {
			order = append(order, id)
			best[id] = d
			continue
		}
		if d.MessageCount() > cur.MessageCount() {
			best[id] = d
		}
	}
	out := make([]Document, 0, len(order)+len(unidentified))
	for _, id := range order {
		out = append(out, best[id])
	}
	return append(out, unidentified...)
}

// dropEmptyOrEpoch removes records with zero messages and records
// whose creation timestamp is the null/epoch sentinel, per spec.md
// §4.5.
func dropEmptyOrEpoch(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if len(d.Mapping) == 0 || d.MessageCount() == 0 {
			continue
		}
		if _, ok := d.CreateTime.Resolve(); !ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

// seedFor builds a stable seed string for idgen.Deterministic when a
// document arrives with neither id nor conversation_id.
func seedFor(d Document) string {
	if ts, ok := d.CreateTime.Resolve(); ok {
		return strconv.FormatInt(ts, 10)
	}
	return d.SourcePath
}
