// Package writer implements the Output Writer (spec.md §4.7): emits
// one directory per surviving conversation with the normalized
// record, matched media, extracted assets, and a manifest, plus a
// master index and convenience symlink folders.
package writer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"chatgpt-export-corpus/internal/docindex"
	"chatgpt-export-corpus/internal/logging"
	"chatgpt-export-corpus/internal/models"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Format selects which document flavors WriteAll emits alongside the
// canonical conversation.json, per SPEC_FULL.md §9.1's --output-format
// flag.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatBoth Format = "both"
)

func (f Format) wantsHTML() bool {
	return f == FormatHTML || f == FormatBoth
}

// IndexEntry is one row of the master index (spec.md §4.7).
type IndexEntry struct {
	ConversationID string `json:"conversationId"`
	FolderName     string `json:"folderName"`
	Title          string `json:"title"`
	MessageCount   int    `json:"messageCount"`
	HasMedia       bool   `json:"hasMedia"`
	HasAssets      bool   `json:"hasAssets"`
}

// Writer emits the output tree for a resolved corpus.
type Writer struct {
	outDir string
	format Format
	log    *logging.Logger
}

// CheckEmpty reports an error unless outDir is empty or non-existent,
// per spec.md §5's shared-resource policy. Callers that must not do
// any work (e.g. unpacking an archive) before an output_conflict is
// possible call this before starting, per spec.md §7's "Fatal at
// start" rule; New repeats the same check immediately before creating
// the directory.
func CheckEmpty(outDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("output directory %s is not empty", outDir)
	}
	return nil
}

// New returns a Writer rooted at outDir. outDir must be empty or
// non-existent, per spec.md §5's shared-resource policy. json is
// always written regardless of format, since it is the canonical
// round-trippable document spec.md §3 requires.
func New(outDir string, format Format, log *logging.Logger) (*Writer, error) {
	if format == "" {
		format = FormatJSON
	}
	if err := CheckEmpty(outDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{outDir: outDir, format: format, log: log}, nil
}

// Reopen returns a Writer rooted at an existing, non-empty outDir,
// used by rematch-media (SPEC_FULL.md §9.1) to update an already
// written output tree in place without New's empty-directory guard.
func Reopen(outDir string, format Format, log *logging.Logger) (*Writer, error) {
	if format == "" {
		format = FormatJSON
	}
	if _, err := os.Stat(outDir); err != nil {
		return nil, err
	}
	return &Writer{outDir: outDir, format: format, log: log}, nil
}

// UpdateConversation re-copies conv's resolved media into its existing
// output folder, merging the new manifest entries into whatever
// media_manifest.json is already on disk, and rewrites
// conversation.json. It never deletes media a prior run already
// copied, since rematch-media only ever adds newly recovered files to
// the resolved set.
func (w *Writer) UpdateConversation(conv models.Conversation, folderName string) (IndexEntry, error) {
	convDir := filepath.Join(w.outDir, folderName)
	if _, err := os.Stat(convDir); err != nil {
		return IndexEntry{}, err
	}
	conv.FolderName = folderName

	fresh, err := w.copyMedia(conv, convDir)
	if err != nil {
		return IndexEntry{}, err
	}

	manifest := mergeManifest(convDir, fresh)
	if len(manifest) > 0 {
		if err := writeJSONFile(filepath.Join(convDir, "media_manifest.json"), manifest); err != nil {
			return IndexEntry{}, err
		}
	}

	if err := w.writeConversationDoc(conv, convDir); err != nil {
		return IndexEntry{}, err
	}

	return IndexEntry{
		ConversationID: conv.ID,
		FolderName:     folderName,
		Title:          conv.Title,
		MessageCount:   len(conv.Messages),
		HasMedia:       len(manifest) > 0,
		HasAssets:      len(conv.Assets) > 0,
	}, nil
}

func mergeManifest(convDir string, fresh map[string]string) map[string]string {
	existing := map[string]string{}
	if data, err := os.ReadFile(filepath.Join(convDir, "media_manifest.json")); err == nil {
		_ = json.Unmarshal(data, &existing)
	}
	for k, v := range fresh {
		existing[k] = v
	}
	return existing
}

// Finalize rewrites the master index and convenience symlink folders
// from a full entry list, used both by WriteAll and by rematch-media
// once every touched conversation has been updated.
func (w *Writer) Finalize(entries []IndexEntry, stats Stats) error {
	if err := w.writeMasterIndex(entries, stats); err != nil {
		return err
	}
	return w.writeConvenienceSymlinks(entries)
}

// Stats is the subset of run-level statistics the master index and its
// rendered document report alongside each conversation's row.
type Stats struct {
	CreditedByStrategy map[string]int
	Unresolved         int
	ContentTypes       map[string]int
	CitationKinds      map[string]int
}

// WriteAll writes every conversation in the given order, assigning
// 5-digit ordinals after the worklist has already been sorted by
// conversation-id (spec.md §5's determinism rule), then writes the
// master index and convenience symlinks.
func (w *Writer) WriteAll(conversations []models.Conversation, stats Stats) ([]IndexEntry, error) {
	sorted := append([]models.Conversation(nil), conversations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	entries := make([]IndexEntry, 0, len(sorted))
	for i, conv := range sorted {
		entry, err := w.writeConversation(conv, i+1)
		if err != nil {
			return nil, fmt.Errorf("write conversation %s: %w", conv.ID, err)
		}
		entries = append(entries, entry)
	}

	if err := w.writeMasterIndex(entries, stats); err != nil {
		return nil, err
	}
	if err := w.writeConvenienceSymlinks(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (w *Writer) writeConversation(conv models.Conversation, ordinal int) (IndexEntry, error) {
	folderName := generateFolderName(conv, ordinal)
	convDir := filepath.Join(w.outDir, folderName)
	if err := os.MkdirAll(convDir, 0o755); err != nil {
		return IndexEntry{}, err
	}
	conv.FolderName = folderName

	manifest, err := w.copyMedia(conv, convDir)
	if err != nil {
		return IndexEntry{}, err
	}

	if err := w.writeAssets(conv, convDir); err != nil {
		return IndexEntry{}, err
	}

	if err := w.writeConversationDoc(conv, convDir); err != nil {
		return IndexEntry{}, err
	}

	if len(manifest) > 0 {
		if err := writeJSONFile(filepath.Join(convDir, "media_manifest.json"), manifest); err != nil {
			return IndexEntry{}, err
		}
	}

	return IndexEntry{
		ConversationID: conv.ID,
		FolderName:     folderName,
		Title:          conv.Title,
		MessageCount:   len(conv.Messages),
		HasMedia:       len(manifest) > 0,
		HasAssets:      len(conv.Assets) > 0,
	}, nil
}

// generateFolderName builds {yyyy-mm-dd}_{slugified-title}_{00001},
// mirroring original_source's ConversationOrganizer.generate_folder_name.
func generateFolderName(conv models.Conversation, ordinal int) string {
	date := "0000-00-00"
	if !conv.CreatedAt.IsZero() {
		date = conv.CreatedAt.Format("2006-01-02")
	}
	slug := slugify(conv.Title, 50)
	if slug == "" {
		slug = "untitled"
	}
	return fmt.Sprintf("%s_%s_%05d", date, slug, ordinal)
}

func slugify(title string, maxLength int) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	slug := slugPattern.ReplaceAllString(lower, "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > maxLength {
		slug = strings.TrimRight(slug[:maxLength], "_")
	}
	return slug
}

// copyMedia copies every resolved file into media/, renamed to
// {hash8}_{basename}, and returns a citation-token → on-disk-name
// manifest map keyed by the citation that bound each file (file-id,
// sediment hash, or original name), per spec.md §4.7.
func (w *Writer) copyMedia(conv models.Conversation, convDir string) (map[string]string, error) {
	if len(conv.ResolvedMedia) == 0 {
		return nil, nil
	}
	mediaDir := filepath.Join(convDir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, err
	}

	hashedByPath := make(map[string]string, len(conv.ResolvedMedia))
	for _, srcPath := range conv.ResolvedMedia {
		hashedName, err := copyHashed(srcPath, mediaDir)
		if err != nil {
			if w.log != nil {
				w.log.Warnf("media copy failed for %s: %v", srcPath, err)
			}
			continue
		}
		hashedByPath[srcPath] = hashedName
	}

	manifest := make(map[string]string, len(hashedByPath))
	for _, b := range conv.MediaBindings {
		if hashedName, ok := hashedByPath[b.Path]; ok {
			manifest[b.Token] = hashedName
		}
	}
	return manifest, nil
}

func copyHashed(srcPath, mediaDir string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	hasher := sha256.New()
	tmp, err := os.CreateTemp(mediaDir, ".tmp-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	hash8 := hex.EncodeToString(hasher.Sum(nil))[:8]
	hashedName := hash8 + "_" + filepath.Base(srcPath)
	dstPath := filepath.Join(mediaDir, hashedName)
	if err := os.Rename(tmpPath, dstPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return hashedName, nil
}

func (w *Writer) writeAssets(conv models.Conversation, convDir string) error {
	if len(conv.Assets) == 0 {
		return nil
	}
	assetsDir := filepath.Join(convDir, "assets")
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return err
	}
	for _, a := range conv.Assets {
		path := filepath.Join(assetsDir, a.FileName())
		if err := os.WriteFile(path, a.Payload, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeConversationDoc(conv models.Conversation, convDir string) error {
	if err := writeJSONFile(filepath.Join(convDir, "conversation.json"), conv); err != nil {
		return err
	}
	if !w.format.wantsHTML() {
		return nil
	}

	views := make([]docindex.MessageView, len(conv.Messages))
	for i, m := range conv.Messages {
		views[i] = docindex.MessageView{Author: m.Author, Content: m.Content}
	}
	_, html, err := docindex.RenderConversation(conv.Title, conv.Summary, views)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(convDir, "conversation.html"), html, 0o644)
}

func (w *Writer) writeMasterIndex(entries []IndexEntry, stats Stats) error {
	if err := writeJSONFile(filepath.Join(w.outDir, "index.json"), struct {
		Conversations      []IndexEntry   `json:"conversations"`
		Unresolved         int            `json:"unresolvedCitations"`
		CreditedByStrategy map[string]int `json:"creditedByStrategy,omitempty"`
		CitationKinds      map[string]int `json:"citationKinds,omitempty"`
		ContentTypes       map[string]int `json:"contentTypes,omitempty"`
	}{entries, stats.Unresolved, stats.CreditedByStrategy, stats.CitationKinds, stats.ContentTypes}); err != nil {
		return err
	}
	if !w.format.wantsHTML() {
		return nil
	}

	rows := make([]docindex.IndexRow, len(entries))
	for i, e := range entries {
		rows[i] = docindex.IndexRow{
			Title:        e.Title,
			FolderName:   e.FolderName,
			MessageCount: e.MessageCount,
			HasMedia:     e.HasMedia,
			HasAssets:    e.HasAssets,
		}
	}
	_, html, err := docindex.RenderIndex(rows, stats.CreditedByStrategy, stats.Unresolved, docindex.SchemaSummary{
		ContentTypes:  stats.ContentTypes,
		CitationKinds: stats.CitationKinds,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.outDir, "index.html"), html, 0o644)
}

// writeConvenienceSymlinks creates _with_media/ and _with_assets/
// folders containing a symlink per qualifying conversation, falling
// back to a text pointer file when the platform doesn't support
// symlinks (spec.md §9.1), mirroring original_source's
// _create_convenience_symlinks.
func (w *Writer) writeConvenienceSymlinks(entries []IndexEntry) error {
	mediaDir := filepath.Join(w.outDir, "_with_media")
	assetsDir := filepath.Join(w.outDir, "_with_assets")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return err
	}

	mediaCount, assetsCount := 0, 0
	for _, entry := range entries {
		if entry.HasMedia {
			if err := w.linkOrPointer(mediaDir, entry.FolderName); err != nil {
				return err
			}
			mediaCount++
		}
		if entry.HasAssets {
			if err := w.linkOrPointer(assetsDir, entry.FolderName); err != nil {
				return err
			}
			assetsCount++
		}
	}
	if w.log != nil {
		w.log.Debugf("wrote %d media symlinks, %d asset symlinks", mediaCount, assetsCount)
	}
	return nil
}

func (w *Writer) linkOrPointer(linkDir, folderName string) error {
	linkPath := filepath.Join(linkDir, folderName)
	target := filepath.Join("..", folderName)
	if err := os.Symlink(target, linkPath); err == nil {
		return nil
	}
	// Symlinks unsupported on this platform/filesystem: fall back to a
	// plain text file carrying the relative target.
	return os.WriteFile(linkPath+".txt", []byte(target+"\n"), 0o644)
}

func writeJSONFile(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
