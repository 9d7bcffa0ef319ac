package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatgpt-export-corpus/internal/models"
	"chatgpt-export-corpus/internal/store"
)

func setupServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	outDir := t.TempDir()
	convDir := filepath.Join(outDir, "2024-01-01_hello_00001")
	mediaDir := filepath.Join(convDir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mediaDir, "ab12cd34_pic.png"), []byte("bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	convStorePath := filepath.Join(t.TempDir(), "conversations.json")
	convStore, err := store.NewConversationStore(convStorePath)
	if err != nil {
		t.Fatalf("NewConversationStore: %v", err)
	}
	conv := models.Conversation{
		ID:         "conv-1",
		Title:      "Hello",
		UpdatedAt:  time.Now(),
		FolderName: "2024-01-01_hello_00001",
		Messages:   []models.Message{{ID: "m1", Author: "user", Content: "hi"}},
	}
	if err := convStore.ReplaceAll([]models.Conversation{conv}); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	srv := New(convStore, outDir)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, outDir
}

func TestListAndGetConversation(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/conversations/")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var listBody struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listBody.Conversations) != 1 || listBody.Conversations[0].Messages != nil {
		t.Fatalf("expected 1 sanitized conversation, got %+v", listBody.Conversations)
	}

	resp2, err := http.Get(ts.URL + "/api/conversations/conv-1/")
	if err != nil {
		t.Fatalf("GET conversation: %v", err)
	}
	defer resp2.Body.Close()
	var conv models.Conversation
	if err := json.NewDecoder(resp2.Body).Decode(&conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("expected full conversation with messages, got %+v", conv)
	}
}

func TestGetMediaServesFile(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/conversations/conv-1/media/ab12cd34_pic.png")
	if err != nil {
		t.Fatalf("GET media: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGetMediaRejectsPathTraversal(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/conversations/conv-1/media/..%2F..%2Fetc%2Fpasswd")
	if err != nil {
		t.Fatalf("GET media: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected traversal attempt to fail, got 200")
	}
}

func TestGetConversationNotFound(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/conversations/does-not-exist/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
