package archivex

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}

func TestExtractFlatArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "export.zip")
	writeZip(t, src, map[string]string{
		"conversations.json": `[]`,
		"media/file-ABC_doc.pdf": "pdf-bytes",
	})

	result, err := Extract(src, dir, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Skipped) != 0 {
		t.Fatalf("expected no skipped archives, got %v", result.Skipped)
	}

	data, err := os.ReadFile(filepath.Join(result.Root, "conversations.json"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(data) != `[]` {
		t.Fatalf("unexpected content: %s", data)
	}
	if _, err := os.Stat(filepath.Join(result.Root, "media", "file-ABC_doc.pdf")); err != nil {
		t.Fatalf("nested path not extracted: %v", err)
	}
}

func TestExtractDiscoversNestedArchive(t *testing.T) {
	dir := t.TempDir()
	innerPath := filepath.Join(dir, "inner.zip")
	writeZip(t, innerPath, map[string]string{"payload.txt": "hi"})
	innerBytes, err := os.ReadFile(innerPath)
	if err != nil {
		t.Fatalf("read inner zip: %v", err)
	}

	outerPath := filepath.Join(dir, "outer.zip")
	writeOuter := func() {
		f, err := os.Create(outerPath)
		if err != nil {
			t.Fatalf("create outer: %v", err)
		}
		defer f.Close()
		w := zip.NewWriter(f)
		entry, err := w.Create("nested/inner.zip")
		if err != nil {
			t.Fatalf("create nested entry: %v", err)
		}
		if _, err := entry.Write(innerBytes); err != nil {
			t.Fatalf("write nested entry: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close outer: %v", err)
		}
	}
	writeOuter()

	result, err := Extract(outerPath, dir, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	nestedExtracted := filepath.Join(result.Root, "nested", "inner.zip__extracted", "payload.txt")
	data, err := os.ReadFile(nestedExtracted)
	if err != nil {
		t.Fatalf("expected nested archive to be unpacked: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("unexpected nested content: %s", data)
	}
}

func TestExtractMalformedRootIsFatal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.zip")
	if err := os.WriteFile(src, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write broken zip: %v", err)
	}

	if _, err := Extract(src, dir, nil); err == nil {
		t.Fatalf("expected fatal error for malformed root archive")
	}
}
