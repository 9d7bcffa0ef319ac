package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chatgpt-export-corpus/internal/mediaindex"
	"chatgpt-export-corpus/internal/models"
)

func TestConversationStoreReplaceAllAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")

	s, err := NewConversationStore(path)
	if err != nil {
		t.Fatalf("NewConversationStore: %v", err)
	}
	convs := []models.Conversation{
		{ID: "a", Title: "Alpha", UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Messages: []models.Message{{ID: "m1"}}},
		{ID: "b", Title: "Beta", UpdatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	if err := s.ReplaceAll(convs); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	list := s.List()
	if len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("expected Beta first (most recently updated), got %+v", list)
	}
	if list[0].Messages != nil {
		t.Fatalf("List should sanitize message bodies")
	}

	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("Get should retain message bodies, got %+v", got)
	}

	reloaded, err := NewConversationStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.List()) != 2 {
		t.Fatalf("expected persisted store to reload 2 conversations")
	}

	if _, err := s.Get("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIndexCacheSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	cache, err := NewIndexCache(path)
	if err != nil {
		t.Fatalf("NewIndexCache: %v", err)
	}
	defer cache.Close()

	idx, err := mediaindex.NewForTest([]models.MediaFile{
		{Path: "/a/one.png", Name: "one.png", Size: 10, MIME: models.MIMEImage},
		{Path: "/a/two.png", Name: "two.png", Size: 20, MIME: models.MIMEImage, FromRecovery: true},
	})
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}

	ctx := context.Background()
	credited := map[string]int{"hash": 3, "size_only": 1}
	if err := cache.Save(ctx, idx, credited); err != nil {
		t.Fatalf("Save: %v", err)
	}

	files, err := cache.LoadFiles(ctx)
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if len(files) != 2 || files[0].Path != "/a/one.png" {
		t.Fatalf("unexpected files: %+v", files)
	}
	if !files[1].FromRecovery {
		t.Fatalf("expected FromRecovery to round-trip: %+v", files[1])
	}

	credits, err := cache.LoadStrategyCredits(ctx)
	if err != nil {
		t.Fatalf("LoadStrategyCredits: %v", err)
	}
	if credits["hash"] != 3 || credits["size_only"] != 1 {
		t.Fatalf("unexpected credits: %+v", credits)
	}
}
