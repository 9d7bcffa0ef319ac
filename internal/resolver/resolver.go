// Package resolver implements the Media Resolver (spec.md §4.4): seven
// ordered strategies binding citations to MediaFiles. ResolveConversation
// applies them as a fixed sequence of calls, one per strategy; the
// order is not configurable at run time.
package resolver

import (
	"sort"
	"strings"

	"chatgpt-export-corpus/internal/logging"
	"chatgpt-export-corpus/internal/mediaindex"
	"chatgpt-export-corpus/internal/models"
)

// Resolver binds citations to files using a frozen, read-only
// MediaIndex, shared without locking across per-conversation workers
// (spec.md §5) once PrepareSizeGenID has finished its single-threaded
// pass.
type Resolver struct {
	idx   *mediaindex.Index
	log   *logging.Logger
	Stats *Stats
}

// New builds a Resolver over idx.
func New(idx *mediaindex.Index, log *logging.Logger) *Resolver {
	return &Resolver{idx: idx, log: log, Stats: NewStats()}
}

// Result is one conversation's resolution outcome.
type Result struct {
	ResolvedMedia []string
	MediaBindings []models.MediaBinding
	Unresolved    []models.Citation
}

// PrepareSizeGenID runs strategy 5's cooperative first pass over every
// citation in the whole archive (not just one conversation), because
// the (size, gen_id) binding is a global fact about the MediaIndex,
// not a per-conversation one. It must run once, single-threaded,
// before any call to ResolveConversation, per spec.md §4.4.
//
// When a size maps to exactly one file, that citation's gen_id binds
// to it directly. When a size collides across multiple files, the
// colliding citations (grouped by that size) are paired with the
// candidate files by sorting both lists deterministically (gen_id
// lexicographically, file path lexicographically) and zipping them —
// this is what makes end-to-end scenario 3 in spec.md §8 (two DALL-E
// parts, same size, distinct gen-ids, two candidate files) resolve
// each part to a different file instead of aliasing both to the same
// one, satisfying the no-aliasing invariant in spec.md §8.
func (r *Resolver) PrepareSizeGenID(allCitations []models.Citation) {
	bySize := make(map[int64]map[string]bool) // size -> set of distinct gen_ids seen
	for _, c := range allCitations {
		if !eligibleForSizeGenID(c) {
			continue
		}
		size := *c.ExpectedSize
		if bySize[size] == nil {
			bySize[size] = make(map[string]bool)
		}
		bySize[size][c.GenID] = true
	}

	for size, genIDSet := range bySize {
		candidates := r.idx.FilesBySize(size)
		if len(candidates) == 1 {
			for genID := range genIDSet {
				r.idx.BindSizeGenID(size, genID)
			}
			continue
		}
		if len(candidates) < 2 || len(genIDSet) < 2 {
			continue
		}

		sortedCandidates := append([]models.MediaFile(nil), candidates...)
		sort.Slice(sortedCandidates, func(i, j int) bool { return sortedCandidates[i].Path < sortedCandidates[j].Path })

		genIDs := make([]string, 0, len(genIDSet))
		for g := range genIDSet {
			genIDs = append(genIDs, g)
		}
		sort.Strings(genIDs)

		n := len(genIDs)
		if len(sortedCandidates) < n {
			n = len(sortedCandidates)
		}
		for i := 0; i < n; i++ {
			r.idx.BindSizeGenIDExact(size, genIDs[i], sortedCandidates[i])
		}
	}
}

func eligibleForSizeGenID(c models.Citation) bool {
	if c.Kind != models.CitationFileServicePtr && c.Kind != models.CitationDalleAsset {
		return false
	}
	return c.ExpectedSize != nil && c.GenID != ""
}

// ResolveConversation applies the seven strategies, in order, to every
// citation belonging to one conversation. It is safe to call
// concurrently for different conversations once PrepareSizeGenID has
// run, since the shared MediaIndex is read-only from this point on.
func (r *Resolver) ResolveConversation(convID string, citations []models.Citation) Result {
	resolvedPaths := make(map[string]bool)
	var bindings []models.MediaBinding
	var unresolved []models.Citation

	guardTriggered, dirFiles := r.conversationDirGuard(convID, citations)
	if guardTriggered {
		for _, f := range dirFiles {
			resolvedPaths[f.Path] = true
			// No single citation owns a whole-directory attachment, so
			// the file's own name is the closest thing to a token.
			bindings = append(bindings, models.MediaBinding{Token: f.Name, Path: f.Path})
		}
	}

	for _, c := range citations {
		r.Stats.observe(c.Kind)

		if file, ok := r.strategyHash(c); ok {
			resolvedPaths[file.Path] = true
			bindings = append(bindings, models.MediaBinding{Token: citationToken(c), Path: file.Path})
			r.Stats.credit(StrategyHash)
			continue
		}
		if file, ok := r.strategyFileID(c); ok {
			resolvedPaths[file.Path] = true
			bindings = append(bindings, models.MediaBinding{Token: citationToken(c), Path: file.Path})
			r.Stats.credit(StrategyFileID)
			continue
		}
		if file, ok := r.strategyNameSize(c); ok {
			resolvedPaths[file.Path] = true
			bindings = append(bindings, models.MediaBinding{Token: citationToken(c), Path: file.Path})
			r.Stats.credit(StrategyNameSize)
			continue
		}
		if guardTriggered && isConversationDirKind(c.Kind) {
			r.Stats.credit(StrategyConversationDir)
			continue
		}
		if file, ok := r.strategySizeGenID(c); ok {
			resolvedPaths[file.Path] = true
			bindings = append(bindings, models.MediaBinding{Token: citationToken(c), Path: file.Path})
			r.Stats.credit(StrategySizeGenID)
			continue
		}
		if file, ok := r.strategySizeOnly(c); ok {
			resolvedPaths[file.Path] = true
			bindings = append(bindings, models.MediaBinding{Token: citationToken(c), Path: file.Path})
			r.Stats.credit(StrategySizeOnly)
			continue
		}
		if file, ok := r.strategyInlineText(c); ok {
			resolvedPaths[file.Path] = true
			bindings = append(bindings, models.MediaBinding{Token: citationToken(c), Path: file.Path})
			r.Stats.credit(StrategyInlineText)
			continue
		}

		unresolved = append(unresolved, c)
		r.Stats.unresolved()
	}

	paths := make([]string, 0, len(resolvedPaths))
	for p := range resolvedPaths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Token != bindings[j].Token {
			return bindings[i].Token < bindings[j].Token
		}
		return bindings[i].Path < bindings[j].Path
	})

	return Result{ResolvedMedia: paths, MediaBindings: bindings, Unresolved: unresolved}
}

// citationToken picks the identifier the media manifest should key on
// for c: the payload (a file-id or sediment hash) when present,
// otherwise the original filename spec.md §4.7 names as the fallback
// token.
func citationToken(c models.Citation) string {
	if c.Payload != "" {
		return c.Payload
	}
	return c.OriginalName
}

func isConversationDirKind(k models.CitationKind) bool {
	return k == models.CitationDalleAsset || k == models.CitationFileServicePtr
}

func (r *Resolver) conversationDirGuard(convID string, citations []models.Citation) (bool, []models.MediaFile) {
	if convID == "" {
		return false, nil
	}
	files := r.idx.FilesByConversation(convID)
	if len(files) == 0 {
		return false, nil
	}
	for _, c := range citations {
		if isConversationDirKind(c.Kind) {
			return true, files
		}
	}
	return false, nil
}

// strategyHash is strategy 1.
func (r *Resolver) strategyHash(c models.Citation) (models.MediaFile, bool) {
	if c.Kind != models.CitationSedimentPointer {
		return models.MediaFile{}, false
	}
	return r.idx.FileByHash(c.Payload)
}

// strategyFileID is strategy 2. dalle_asset is included alongside the
// three kinds spec.md §4.4 names, so a DALL-E generation whose file
// happens to carry a discoverable file-id prefix isn't forced through
// the weaker size-based strategies; see DESIGN.md's Open Questions.
func (r *Resolver) strategyFileID(c models.Citation) (models.MediaFile, bool) {
	switch c.Kind {
	case models.CitationFileIDAttachment, models.CitationFileServicePtr, models.CitationInlineFileID, models.CitationDalleAsset:
		return r.idx.FileByFileID(c.Payload)
	default:
		return models.MediaFile{}, false
	}
}

// strategyNameSize is strategy 3.
func (r *Resolver) strategyNameSize(c models.Citation) (models.MediaFile, bool) {
	if c.OriginalName == "" || c.ExpectedSize == nil {
		return models.MediaFile{}, false
	}
	return r.idx.FileByNameSize(c.OriginalName, *c.ExpectedSize)
}

// strategySizeGenID is strategy 5's second pass.
func (r *Resolver) strategySizeGenID(c models.Citation) (models.MediaFile, bool) {
	if !eligibleForSizeGenID(c) {
		return models.MediaFile{}, false
	}
	return r.idx.FileBySizeGenID(*c.ExpectedSize, c.GenID)
}

// strategySizeOnly is strategy 6.
func (r *Resolver) strategySizeOnly(c models.Citation) (models.MediaFile, bool) {
	if c.ExpectedSize == nil {
		return models.MediaFile{}, false
	}
	candidates := r.idx.FilesBySize(*c.ExpectedSize)
	if len(candidates) != 1 {
		return models.MediaFile{}, false
	}
	return candidates[0], true
}

// strategyInlineText is strategy 7.
func (r *Resolver) strategyInlineText(c models.Citation) (models.MediaFile, bool) {
	if c.Kind != models.CitationInlineName && c.Kind != models.CitationInlineUUID {
		return models.MediaFile{}, false
	}
	if c.Payload == "" {
		return models.MediaFile{}, false
	}
	var match models.MediaFile
	count := 0
	for _, f := range r.idx.Files {
		if strings.Contains(f.Name, c.Payload) {
			count++
			match = f
			if count > 1 {
				break
			}
		}
	}
	if count != 1 {
		return models.MediaFile{}, false
	}
	return match, true
}
