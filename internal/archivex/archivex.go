// Package archivex implements the Archive Extractor (spec.md §4.1):
// recursive zip unpacking with a queue of discovered nested archives
// and an OS-level tolerant fallback when Go's archive/zip rejects a
// file macOS or Windows can still open, ported from
// original_source/utils.py::unzip's zipfile-then-subprocess-fallback
// design (see DESIGN.md).
package archivex

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"chatgpt-export-corpus/internal/logging"
	"chatgpt-export-corpus/internal/pipelineerr"
)

// fallbackToolTimeout bounds a single ditto/unzip invocation, per
// spec.md §5's per-call deadline on external-process invocations: a
// hung subprocess must not hang the whole run, it promotes to
// nested_archive_skipped (or a fatal archive_malformed for the root
// archive) instead.
const fallbackToolTimeout = 2 * time.Minute

// archiveExtensions names the nested-archive extensions the queue
// scans for after each unpack, per spec.md §4.1.
var archiveExtensions = map[string]bool{
	".zip": true,
}

// Result reports what the extractor did with the root archive.
type Result struct {
	// Root is the directory the root archive was unpacked into.
	Root string
	// Skipped lists nested archive paths that failed every extractor
	// and were left untouched, per spec.md §4.1's failure semantics.
	Skipped []string
}

// Extract unpacks src into a fresh subdirectory of workDir, then walks
// the result for nested archives and unpacks each of those in place,
// repeating until the queue is empty, per spec.md §4.1's algorithm.
// A hard failure on the root archive (no entries recovered by any
// extractor) is fatal; a hard failure on a nested archive is logged
// and skipped.
func Extract(src, workDir string, log *logging.Logger) (Result, error) {
	root := filepath.Join(workDir, "extracted")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Result{}, pipelineerr.New(pipelineerr.ArchiveMalformed, src, err)
	}

	if err := unpackOne(src, root); err != nil {
		return Result{}, pipelineerr.New(pipelineerr.ArchiveMalformed, src, err)
	}
	if log != nil {
		log.Debugf("extracted root archive %s into %s", src, root)
	}

	result := Result{Root: root}
	queue := []string{root}
	visited := map[string]bool{}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		nested, err := findArchives(dir)
		if err != nil {
			return Result{}, err
		}
		for _, archivePath := range nested {
			if visited[archivePath] {
				continue
			}
			visited[archivePath] = true

			dest := archivePath + "__extracted"
			if err := unpackOne(archivePath, dest); err != nil {
				if log != nil {
					log.Warnf("nested_archive_skipped: %s: %v", archivePath, err)
				}
				result.Skipped = append(result.Skipped, archivePath)
				continue
			}
			queue = append(queue, dest)
		}
	}

	return result, nil
}

// findArchives scans dir and all of its subdirectories for files whose
// extension marks them as a nested archive; the outer queue loop then
// rescans each freshly-extracted directory the same way.
func findArchives(dir string) ([]string, error) {
	var out []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			nested, err := findArchives(full)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		if archiveExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, full)
		}
	}
	return out, nil
}

// unpackOne tries archive/zip first and, if it fails or recovers zero
// entries, falls back to a platform-tolerant unzip tool, accepting a
// partial result when at least one entry lands, per spec.md §4.1.
func unpackOne(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	n, zipErr := extractInProcess(src, dst)
	if zipErr == nil && n > 0 {
		return nil
	}

	if err := extractWithFallbackTool(src, dst); err != nil {
		if recovered, _ := hasEntries(dst); recovered {
			return nil
		}
		if zipErr != nil {
			return fmt.Errorf("zipfile: %v; fallback: %w", zipErr, err)
		}
		return err
	}
	return nil
}

// extractInProcess unpacks src with the standard library's zip
// reader, returning the number of regular-file entries written.
func extractInProcess(src, dst string) (int, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	count := 0
	for _, f := range r.File {
		if err := extractZipEntry(f, dst); err != nil {
			return count, err
		}
		if !f.FileInfo().IsDir() {
			count++
		}
	}
	return count, nil
}

// extractZipEntry writes one zip entry under dst, guarding against
// zip-slip path traversal via a cleaned, prefix-checked join.
func extractZipEntry(f *zip.File, dst string) error {
	target := filepath.Join(dst, f.Name)
	if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) && target != filepath.Clean(dst) {
		return fmt.Errorf("illegal path outside destination: %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// extractWithFallbackTool shells out to a platform unzip utility,
// mirroring original_source/utils.py::unzip's ditto-then-unzip order
// on macOS and unzip elsewhere.
func extractWithFallbackTool(src, dst string) error {
	var candidates [][]string
	if runtime.GOOS == "darwin" {
		candidates = append(candidates, []string{"ditto", "-x", "-k", src, dst})
	}
	candidates = append(candidates, []string{"unzip", "-q", "-o", src, "-d", dst})

	var lastErr error
	for _, args := range candidates {
		if _, err := exec.LookPath(args[0]); err != nil {
			lastErr = err
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), fallbackToolTimeout)
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		err := cmd.Run()
		cancel()
		if ctx.Err() == context.DeadlineExceeded {
			lastErr = fmt.Errorf("%s: timed out after %s", args[0], fallbackToolTimeout)
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no fallback extractor available")
	}
	return lastErr
}

func hasEntries(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}
