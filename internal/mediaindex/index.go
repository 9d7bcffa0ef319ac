// Package mediaindex implements the Media Indexer and MediaIndex from
// spec.md §4.2: a single walk of the extraction tree that builds six
// parallel lookup tables over every media-like file, following the
// arena-style ownership design.md §9 of spec.md recommends — one
// vector of MediaFile owned by the Index, with every table storing
// integer positions into that vector rather than owning copies, so
// the Index is trivially shareable (read-only) across resolver
// workers.
package mediaindex

import (
	"sort"

	"chatgpt-export-corpus/internal/models"
)

type nameSizeKey struct {
	Name string
	Size int64
}

type sizeGenKey struct {
	Size  int64
	GenID string
}

// Index is the read-only aggregation built exactly once by Build, per
// spec.md §4.2. It is safe for concurrent readers once construction
// finishes; the only field mutated after Build returns is
// BySizeAndGenID, and only through BindSizeGenID and
// BindSizeGenIDExact, called from the resolver's single-threaded
// strategy-5 first pass before any
// per-conversation worker touches the index.
type Index struct {
	Files []models.MediaFile

	ByConversation map[string][]int
	ByFileID       map[string]int
	ByHash         map[string]int
	BySize         map[int64][]int
	ByNameSize     map[nameSizeKey]int
	BySizeAndGenID map[sizeGenKey]int

	Collisions int
}

// NewForTest builds an Index directly from a fixed file list, in the
// order given, bypassing Build's filesystem walk. Used by other
// packages' tests (notably internal/resolver) that need a MediaIndex
// without a real archive on disk.
func NewForTest(files []models.MediaFile) (*Index, error) {
	idx := newIndex()
	for _, f := range files {
		idx.insert(f)
	}
	return idx, nil
}

func newIndex() *Index {
	return &Index{
		ByConversation: make(map[string][]int),
		ByFileID:       make(map[string]int),
		ByHash:         make(map[string]int),
		BySize:         make(map[int64][]int),
		ByNameSize:     make(map[nameSizeKey]int),
		BySizeAndGenID: make(map[sizeGenKey]int),
	}
}

// insert adds f to the arena and every index whose key pattern it
// matches. Unique-valued indices (ByFileID, ByHash, ByNameSize) keep
// the first-encountered file on collision and count it, per spec.md
// §4.2's dedup rule. Callers must insert in priority order (in-archive
// files before recovered_files, both in a stable order) so "first
// encountered" is well defined and deterministic.
func (idx *Index) insert(f models.MediaFile) int {
	pos := len(idx.Files)
	idx.Files = append(idx.Files, f)

	idx.BySize[f.Size] = append(idx.BySize[f.Size], pos)

	nsKey := nameSizeKey{Name: f.Name, Size: f.Size}
	if _, exists := idx.ByNameSize[nsKey]; !exists {
		idx.ByNameSize[nsKey] = pos
	} else {
		idx.Collisions++
	}

	if f.FileID != "" {
		if _, exists := idx.ByFileID[f.FileID]; !exists {
			idx.ByFileID[f.FileID] = pos
		} else {
			idx.Collisions++
		}
	}

	if f.ContentHash != "" {
		if _, exists := idx.ByHash[f.ContentHash]; !exists {
			idx.ByHash[f.ContentHash] = pos
		} else {
			idx.Collisions++
		}
	}

	if f.ConversationID != "" {
		idx.ByConversation[f.ConversationID] = append(idx.ByConversation[f.ConversationID], pos)
	}

	return pos
}

// FileByFileID looks up strategy 2's index.
func (idx *Index) FileByFileID(id string) (models.MediaFile, bool) {
	pos, ok := idx.ByFileID[id]
	if !ok {
		return models.MediaFile{}, false
	}
	return idx.Files[pos], true
}

// FileByHash looks up strategy 1's index.
func (idx *Index) FileByHash(hash string) (models.MediaFile, bool) {
	pos, ok := idx.ByHash[hash]
	if !ok {
		return models.MediaFile{}, false
	}
	return idx.Files[pos], true
}

// FileByNameSize looks up strategy 3's index.
func (idx *Index) FileByNameSize(name string, size int64) (models.MediaFile, bool) {
	pos, ok := idx.ByNameSize[nameSizeKey{Name: name, Size: size}]
	if !ok {
		return models.MediaFile{}, false
	}
	return idx.Files[pos], true
}

// FilesByConversation looks up strategy 4's index, returned in
// lexicographic path order per spec.md §4.4's determinism rule.
func (idx *Index) FilesByConversation(convID string) []models.MediaFile {
	positions := idx.ByConversation[convID]
	if len(positions) == 0 {
		return nil
	}
	out := make([]models.MediaFile, len(positions))
	for i, p := range positions {
		out[i] = idx.Files[p]
	}
	sortFilesByPath(out)
	return out
}

// FilesBySize looks up strategy 6's index.
func (idx *Index) FilesBySize(size int64) []models.MediaFile {
	positions := idx.BySize[size]
	if len(positions) == 0 {
		return nil
	}
	out := make([]models.MediaFile, len(positions))
	for i, p := range positions {
		out[i] = idx.Files[p]
	}
	return out
}

// BindSizeGenID implements the cooperative first pass of strategy 5
// (spec.md §4.4): if size maps to exactly one file in BySize, and the
// (size, genID) pair isn't already bound, bind it. Returns the bound
// file and true if a binding exists after the call (either just
// created or pre-existing).
func (idx *Index) BindSizeGenID(size int64, genID string) (models.MediaFile, bool) {
	key := sizeGenKey{Size: size, GenID: genID}
	if pos, ok := idx.BySizeAndGenID[key]; ok {
		return idx.Files[pos], true
	}
	candidates := idx.BySize[size]
	if len(candidates) != 1 {
		return models.MediaFile{}, false
	}
	pos := candidates[0]
	idx.BySizeAndGenID[key] = pos
	return idx.Files[pos], true
}

// BindSizeGenIDExact force-binds (size, genID) to file, used by the
// resolver's deterministic pairwise tie-break when several candidate
// files share a size and several distinct gen-ids compete for them
// (spec.md §8 end-to-end scenario 3). Overwrites any existing binding
// for the pair.
func (idx *Index) BindSizeGenIDExact(size int64, genID string, file models.MediaFile) {
	for pos := range idx.Files {
		if idx.Files[pos].Path == file.Path {
			idx.BySizeAndGenID[sizeGenKey{Size: size, GenID: genID}] = pos
			return
		}
	}
}

// FileBySizeGenID performs strategy 5's second-pass lookup only,
// without attempting to bind — used once every citation has run
// through the first pass.
func (idx *Index) FileBySizeGenID(size int64, genID string) (models.MediaFile, bool) {
	pos, ok := idx.BySizeAndGenID[sizeGenKey{Size: size, GenID: genID}]
	if !ok {
		return models.MediaFile{}, false
	}
	return idx.Files[pos], true
}

func sortFilesByPath(files []models.MediaFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
