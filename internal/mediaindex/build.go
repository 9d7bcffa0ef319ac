package mediaindex

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"chatgpt-export-corpus/internal/logging"
	"chatgpt-export-corpus/internal/models"
)

// candidate is a discovered media file awaiting stat + extraction.
type candidate struct {
	path         string
	fromRecovery bool
}

// Build walks root (and, if it exists, recoveryDir) exactly once and
// returns the finished MediaIndex, per spec.md §4.2 and §5. workers
// controls the size of the stat/extract worker pool; 1 means
// sequential. Regardless of workers, output is identical: paths are
// collected and sorted up front, so "first encountered" during the
// single-threaded insertion pass is a function of path order alone,
// never of goroutine scheduling.
func Build(root, recoveryDir string, workers int, log *logging.Logger) (*Index, error) {
	rootPaths, err := collect(root, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(rootPaths, func(i, j int) bool { return rootPaths[i].path < rootPaths[j].path })

	var recoveryPaths []candidate
	if recoveryDir != "" {
		if _, statErr := os.Stat(recoveryDir); statErr == nil {
			recoveryPaths, err = collect(recoveryDir, true)
			if err != nil {
				return nil, err
			}
			sort.Slice(recoveryPaths, func(i, j int) bool { return recoveryPaths[i].path < recoveryPaths[j].path })
			if log != nil {
				log.Debugf("including recovery directory: %s (%d candidate files)", recoveryDir, len(recoveryPaths))
			}
		}
	}

	// In-archive files are inserted before recovery files, so recovery
	// files "never displace in-archive files on index collision" per
	// spec.md §6.
	ordered := append(rootPaths, recoveryPaths...)

	files := make([]models.MediaFile, len(ordered))
	extractAll(ordered, files, workers)

	idx := newIndex()
	for _, f := range files {
		idx.insert(f)
	}

	if log != nil {
		log.Debugf("indexed %d media files (%d collisions)", len(idx.Files), idx.Collisions)
	}

	return idx, nil
}

// ScanRecovery walks only recoveryDir, without touching the (typically
// much larger) extraction tree, so rematch-media can refresh a stale
// index cache by combining these results with the cache's retained
// root-tree files instead of re-walking everything Build would.
func ScanRecovery(recoveryDir string, workers int, log *logging.Logger) ([]models.MediaFile, error) {
	if recoveryDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(recoveryDir); err != nil {
		return nil, nil
	}

	paths, err := collect(recoveryDir, true)
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].path < paths[j].path })

	files := make([]models.MediaFile, len(paths))
	extractAll(paths, files, workers)

	if log != nil {
		log.Debugf("rescanned recovery directory: %s (%d candidate files)", recoveryDir, len(files))
	}
	return files, nil
}

// collect walks dir once, returning every regular file whose
// extension is in MediaExtensions.
func collect(dir string, fromRecovery bool) ([]candidate, error) {
	var out []candidate
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !MediaExtensions[ext] {
			return nil
		}
		out = append(out, candidate{path: path, fromRecovery: fromRecovery})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// extractAll stats and pattern-matches every candidate, optionally
// fanning the work out across a worker pool. Each candidate's result
// is written to its own slot in files, so the pool never races on
// shared state and the caller's insertion order is untouched.
func extractAll(paths []candidate, files []models.MediaFile, workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers == 1 || len(paths) < workers*4 {
		for i, c := range paths {
			files[i] = extractOne(c)
		}
		return
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				files[i] = extractOne(paths[i])
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func extractOne(c candidate) models.MediaFile {
	info, err := os.Stat(c.path)
	var size int64
	if err == nil {
		size = info.Size()
	}

	name := filepath.Base(c.path)
	ext := strings.ToLower(filepath.Ext(name))

	return models.MediaFile{
		Path:           c.path,
		Name:           name,
		Size:           size,
		FileID:         ExtractFileID(name),
		ContentHash:    ExtractContentHash(name),
		ConversationID: ExtractConversationID(c.path),
		MIME:           classifyMIME(c.path, ext),
		FromRecovery:   c.fromRecovery,
	}
}
