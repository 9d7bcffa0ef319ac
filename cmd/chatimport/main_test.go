package main

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTestArchive(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := entry.Write(content); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
}

func minimalConversationJSON(id string) []byte {
	doc := map[string]any{
		"id":           id,
		"title":        "CLI Scenario",
		"create_time":  1700000000.0,
		"current_node": "n1",
		"mapping": map[string]any{
			"n1": map[string]any{
				"id": "n1", "parent": "", "children": []string{},
				"message": map[string]any{
					"id":          "m1",
					"author":      map[string]any{"role": "user"},
					"create_time": 1700000000.0,
					"content":     map[string]any{"content_type": "text", "parts": []string{"hello"}},
				},
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

func TestRunDefaultSucceedsAndWritesOutput(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "export.zip")
	outDir := filepath.Join(dir, "out")

	writeTestArchive(t, archivePath, map[string][]byte{
		"conversations.json": minimalConversationJSON("a1111111-1111-4111-8111-111111111111"),
	})

	code := run([]string{archivePath, "-o", outDir, "-workers", "1"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(outDir, "index.json")); err != nil {
		t.Fatalf("expected master index: %v", err)
	}
}

func TestRunDefaultRejectsMissingArchiveArg(t *testing.T) {
	code := run([]string{})
	if code != 2 {
		t.Fatalf("expected exit 2 for missing archive argument, got %d", code)
	}
}

func TestRunDefaultReportsMalformedArchiveAsExitTwo(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "garbage.zip")
	if err := os.WriteFile(archivePath, []byte("not a zip file"), 0o644); err != nil {
		t.Fatalf("write garbage archive: %v", err)
	}
	outDir := filepath.Join(dir, "out")

	code := run([]string{archivePath, "-o", outDir})
	if code != 2 {
		t.Fatalf("expected exit 2 for malformed archive, got %d", code)
	}
}

func TestRunDefaultRejectsInvalidOutputFormat(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "export.zip")
	writeTestArchive(t, archivePath, map[string][]byte{
		"conversations.json": minimalConversationJSON("b2222222-2222-4222-8222-222222222222"),
	})

	code := run([]string{archivePath, "-output-format", "xml"})
	if code != 2 {
		t.Fatalf("expected exit 2 for invalid --output-format, got %d", code)
	}
}

func TestRunRematchRequiresPriorRun(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir out: %v", err)
	}

	code := run([]string{"rematch-media", outDir})
	if code != 1 {
		t.Fatalf("expected exit 1 when no retained extraction exists, got %d", code)
	}
}

func TestRunRematchAfterDefaultSucceeds(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "export.zip")
	outDir := filepath.Join(dir, "out")

	writeTestArchive(t, archivePath, map[string][]byte{
		"conversations.json": minimalConversationJSON("c3333333-3333-4333-8333-333333333333"),
	})

	if code := run([]string{archivePath, "-o", outDir, "-workers", "1"}); code != 0 {
		t.Fatalf("expected default run to succeed, got exit %d", code)
	}

	if code := run([]string{"rematch-media", outDir, "-workers", "1"}); code != 0 {
		t.Fatalf("expected rematch to succeed, got exit %d", code)
	}
}
