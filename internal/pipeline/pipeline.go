// Package pipeline orchestrates the full run described by spec.md §2
// and §5: extract the archive, build the MediaIndex, discover and
// normalize conversations, then run the Reference Extractor, Media
// Resolver and Asset Extractor per conversation before handing the
// survivors to the Output Writer. It owns the sorted worklist and the
// per-conversation worker pool the concurrency model requires.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"chatgpt-export-corpus/internal/archivex"
	"chatgpt-export-corpus/internal/asset"
	"chatgpt-export-corpus/internal/convo"
	"chatgpt-export-corpus/internal/logging"
	"chatgpt-export-corpus/internal/mediaindex"
	"chatgpt-export-corpus/internal/models"
	"chatgpt-export-corpus/internal/pipelineerr"
	"chatgpt-export-corpus/internal/reference"
	"chatgpt-export-corpus/internal/resolver"
	"chatgpt-export-corpus/internal/store"
	"chatgpt-export-corpus/internal/writer"
)

// workDirSuffix names a directory kept as a sibling of the output
// directory (never inside it, so it never trips writer.New's
// empty-output-directory guard), holding the extracted archive tree
// and the index cache database. Unlike spec.md §5's original "removed
// on normal termination" rule for a scratch working directory, this
// one is deliberately retained after a successful run: rematch-media's
// contract ("re-run resolution over an existing extraction without
// re-unpacking") has nothing to resolve against once the extraction is
// gone. This is a documented deviation, see DESIGN.md.
const workDirSuffix = ".chatx-work"

// Options configures a full pipeline run.
type Options struct {
	ArchivePath string
	OutputDir   string
	RecoveryDir string
	DataPath    string
	Workers     int
	Format      writer.Format
	Log         *logging.Logger
}

// Summary reports what a run produced, used by cmd/chatimport to print
// its summary and verbose statistics (the exit code comes from the
// returned error, not from Summary).
type Summary struct {
	Entries    []writer.IndexEntry
	Stats      writer.Stats
	SkippedNested []string
}

// Run executes the full pipeline: extract, index, load, resolve,
// write. The output directory must be empty or non-existent, per
// spec.md §5's shared-resource policy (enforced by writer.New).
func Run(opts Options) (Summary, error) {
	if err := writer.CheckEmpty(opts.OutputDir); err != nil {
		return Summary{}, pipelineerr.New(pipelineerr.OutputConflict, opts.OutputDir, err)
	}

	workDir := WorkDir(opts.OutputDir)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Summary{}, pipelineerr.New(pipelineerr.OutputConflict, opts.OutputDir, err)
	}

	extraction, err := archivex.Extract(opts.ArchivePath, workDir, opts.Log)
	if err != nil {
		return Summary{}, err
	}
	for _, skipped := range extraction.Skipped {
		if opts.Log != nil {
			opts.Log.Warnf("nested_archive_skipped: %s", skipped)
		}
	}

	idx, err := mediaindex.Build(extraction.Root, opts.RecoveryDir, opts.Workers, opts.Log)
	if err != nil {
		return Summary{}, err
	}

	cache, err := store.NewIndexCache(filepath.Join(workDir, "index.sqlite"))
	if err != nil {
		return Summary{}, err
	}
	defer cache.Close()

	docs, err := convo.LoadAll(extraction.Root, opts.Log)
	if err != nil {
		return Summary{}, err
	}

	conversations, citationsByConv, stats := processDocuments(docs, idx, opts.Workers, opts.Log)
	_ = citationsByConv // retained for future diagnostics/rematch replay, not needed by the happy path

	if err := cache.Save(context.Background(), idx, stats.CreditedByStrategy); err != nil {
		return Summary{}, err
	}

	w, err := writer.New(opts.OutputDir, opts.Format, opts.Log)
	if err != nil {
		return Summary{}, pipelineerr.New(pipelineerr.OutputConflict, opts.OutputDir, err)
	}
	entries, err := w.WriteAll(conversations, stats)
	if err != nil {
		return Summary{}, err
	}
	applyFolderNames(conversations, entries)

	if err := replaceConversationStore(opts.DataPath, conversations); err != nil {
		return Summary{}, err
	}

	return Summary{Entries: entries, Stats: stats, SkippedNested: extraction.Skipped}, nil
}

// applyFolderNames copies each entry's writer-assigned folder name
// back onto the matching conversation by id, since WriteAll only sets
// FolderName on its own internal, sorted copy. Without this the
// ConversationStore internal/api reads never learns where a
// conversation's media/assets live on disk.
func applyFolderNames(conversations []models.Conversation, entries []writer.IndexEntry) {
	folderByID := make(map[string]string, len(entries))
	for _, e := range entries {
		folderByID[e.ConversationID] = e.FolderName
	}
	for i := range conversations {
		conversations[i].FolderName = folderByID[conversations[i].ID]
	}
}

// replaceConversationStore persists the resolved corpus to the
// JSON-file store internal/api reads, so cmd/browse serves the results
// of the most recent run without re-reading the output tree. A blank
// dataPath means the caller doesn't want the API-facing store updated
// (e.g. a scoped test), which is a no-op rather than an error.
func replaceConversationStore(dataPath string, conversations []models.Conversation) error {
	if dataPath == "" {
		return nil
	}
	convStore, err := store.NewConversationStore(dataPath)
	if err != nil {
		return fmt.Errorf("open conversation store %s: %w", dataPath, err)
	}
	return convStore.ReplaceAll(conversations)
}

// processDocuments runs the Reference Extractor, Media Resolver and
// Asset Extractor over every document, sorting the worklist by
// conversation-id first so output is deterministic regardless of
// worker count (spec.md §5), then dispatching to a bounded worker
// pool since each conversation is independent once idx is frozen.
func processDocuments(docs []convo.Document, idx *mediaindex.Index, workers int, log *logging.Logger) ([]models.Conversation, map[string][]models.Citation, writer.Stats) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ConvID() < docs[j].ConvID() })

	allCitations := make([][]models.Citation, len(docs))
	for i, d := range docs {
		allCitations[i] = reference.ExtractAll(d)
	}

	var flatCitations []models.Citation
	for _, cs := range allCitations {
		flatCitations = append(flatCitations, cs...)
	}

	res := resolver.New(idx, log)
	res.PrepareSizeGenID(flatCitations)

	if workers < 1 {
		workers = 1
	}

	conversations := make([]models.Conversation, len(docs))
	citationsByConv := make(map[string][]models.Citation, len(docs))
	var mu sync.Mutex

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				conv := buildConversation(docs[i], allCitations[i], res, log)
				conversations[i] = conv
				mu.Lock()
				citationsByConv[conv.ID] = allCitations[i]
				mu.Unlock()
			}
		}()
	}
	for i := range docs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	byKind, byStrategy, unresolvedTotal := res.Stats.Snapshot()

	stats := writer.Stats{
		CreditedByStrategy: make(map[string]int, len(byStrategy)),
		Unresolved:         unresolvedTotal,
		ContentTypes:       contentTypeTally(docs),
		CitationKinds:      make(map[string]int, len(byKind)),
	}
	for k, v := range byStrategy {
		stats.CreditedByStrategy[k.String()] = v
	}
	for k, v := range byKind {
		stats.CitationKinds[string(k)] = v
	}

	return conversations, citationsByConv, stats
}

func buildConversation(d convo.Document, citations []models.Citation, res *resolver.Resolver, log *logging.Logger) models.Conversation {
	conv := convo.Normalize(d)

	result := res.ResolveConversation(conv.ID, citations)
	conv.ResolvedMedia = result.ResolvedMedia
	conv.MediaBindings = result.MediaBindings
	conv.UnresolvedCitations = result.Unresolved
	conv.Assets = asset.ExtractAll(d)

	if log != nil && len(result.Unresolved) > 0 {
		log.Debugf("conversation %s: %d unresolved citations", conv.ID, len(result.Unresolved))
	}
	return conv
}

func contentTypeTally(docs []convo.Document) map[string]int {
	out := map[string]int{}
	for _, d := range docs {
		for _, node := range d.Mapping {
			if node.Message == nil {
				continue
			}
			ct := node.Message.Content.ContentType
			if ct == "" {
				continue
			}
			out[ct]++
		}
	}
	return out
}

// ExtractionRoot returns the directory a prior Run unpacked the
// archive into, for callers (rematch-media) that need to re-read the
// original conversation documents without re-unpacking.
func ExtractionRoot(outDir string) string {
	return filepath.Join(WorkDir(outDir), "extracted")
}

// WorkDir returns the retained working directory for outDir, a sibling
// directory (not a subdirectory, so it can't make outDir look
// non-empty) holding the extraction tree and the index cache database.
func WorkDir(outDir string) string {
	clean := filepath.Clean(outDir)
	return clean + workDirSuffix
}

// RematchOptions configures a rematch-media run: re-extract nothing,
// reuse the cached index of the retained extraction tree (walking the
// tree only when the cache is empty), take a fresh look at recoveryDir
// in case files landed there since the original run, and rebind
// citations against the rebuilt MediaIndex, per spec.md §6's
// `rematch-media <OUT>` contract.
type RematchOptions struct {
	OutputDir   string
	RecoveryDir string
	DataPath    string
	Workers     int
	Format      writer.Format
	Log         *logging.Logger
}

// Rematch re-runs the Media Resolver over an existing output tree
// without re-unpacking the original archive, per SPEC_FULL.md §9.1.
// Conversations present in the retained extraction tree but not yet
// known to the output tree's master index are skipped with a warning:
// rematch-media only refreshes conversations the original run already
// wrote a folder for.
func Rematch(opts RematchOptions) (Summary, error) {
	extractionRoot := ExtractionRoot(opts.OutputDir)
	if _, err := os.Stat(extractionRoot); err != nil {
		return Summary{}, fmt.Errorf("no retained extraction found for %s (run the default pipeline first): %w", opts.OutputDir, err)
	}

	cache, err := store.NewIndexCache(filepath.Join(WorkDir(opts.OutputDir), "index.sqlite"))
	if err != nil {
		return Summary{}, err
	}
	defer cache.Close()

	priorCredits, err := cache.LoadStrategyCredits(context.Background())
	if err != nil {
		return Summary{}, err
	}

	idx, err := loadOrBuildIndex(cache, extractionRoot, opts.RecoveryDir, opts.Workers, opts.Log)
	if err != nil {
		return Summary{}, err
	}

	docs, err := convo.LoadAll(extractionRoot, opts.Log)
	if err != nil {
		return Summary{}, err
	}

	conversations, _, stats := processDocuments(docs, idx, opts.Workers, opts.Log)

	if opts.Log != nil {
		for strategy, count := range stats.CreditedByStrategy {
			if delta := count - priorCredits[strategy]; delta != 0 {
				opts.Log.Debugf("rematch-media: %s credited %d more resolutions (was %d, now %d)", strategy, delta, priorCredits[strategy], count)
			}
		}
	}

	if err := cache.Save(context.Background(), idx, stats.CreditedByStrategy); err != nil {
		return Summary{}, err
	}

	existing, err := loadExistingEntries(opts.OutputDir)
	if err != nil {
		return Summary{}, err
	}
	folderByID := make(map[string]string, len(existing))
	for _, e := range existing {
		folderByID[e.ConversationID] = e.FolderName
	}

	w, err := writer.Reopen(opts.OutputDir, opts.Format, opts.Log)
	if err != nil {
		return Summary{}, err
	}

	updated := make(map[string]writer.IndexEntry, len(conversations))
	for _, conv := range conversations {
		folderName, known := folderByID[conv.ID]
		if !known {
			if opts.Log != nil {
				opts.Log.Warnf("rematch-media: conversation %s has no existing output folder, skipping", conv.ID)
			}
			continue
		}
		entry, err := w.UpdateConversation(conv, folderName)
		if err != nil {
			return Summary{}, err
		}
		updated[conv.ID] = entry
	}

	merged := make([]writer.IndexEntry, len(existing))
	for i, e := range existing {
		if fresh, ok := updated[e.ConversationID]; ok {
			merged[i] = fresh
		} else {
			merged[i] = e
		}
	}

	if err := w.Finalize(merged, stats); err != nil {
		return Summary{}, err
	}
	applyFolderNames(conversations, merged)

	if err := replaceConversationStore(opts.DataPath, conversations); err != nil {
		return Summary{}, err
	}

	return Summary{Entries: merged, Stats: stats}, nil
}

// loadOrBuildIndex reloads a MediaIndex from cache instead of
// re-walking the (typically large and unchanged) extraction tree,
// per SPEC_FULL.md §9.1. The retained root-tree files come straight
// from the cache; recoveryDir is always freshly rescanned, since
// picking up files that landed there since the last run is the entire
// point of rematch-media. A cache with nothing saved yet (no prior Run
// or Rematch) falls back to a full mediaindex.Build walk.
func loadOrBuildIndex(cache *store.IndexCache, extractionRoot, recoveryDir string, workers int, log *logging.Logger) (*mediaindex.Index, error) {
	cached, err := cache.LoadFiles(context.Background())
	if err != nil {
		return nil, err
	}
	if len(cached) == 0 {
		if log != nil {
			log.Debugf("index cache empty, walking extraction tree at %s", extractionRoot)
		}
		return mediaindex.Build(extractionRoot, recoveryDir, workers, log)
	}

	rootFiles := make([]models.MediaFile, 0, len(cached))
	for _, f := range cached {
		if !f.FromRecovery {
			rootFiles = append(rootFiles, f)
		}
	}

	recoveryFiles, err := mediaindex.ScanRecovery(recoveryDir, workers, log)
	if err != nil {
		return nil, err
	}

	if log != nil {
		log.Debugf("reused cached index (%d root files) plus %d freshly scanned recovery files", len(rootFiles), len(recoveryFiles))
	}
	return mediaindex.NewForTest(append(rootFiles, recoveryFiles...))
}

func loadExistingEntries(outDir string) ([]writer.IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(outDir, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("read existing master index: %w", err)
	}
	var body struct {
		Conversations []writer.IndexEntry `json:"conversations"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("parse existing master index: %w", err)
	}
	return body.Conversations, nil
}
