package docindex

import (
	"strings"
	"testing"
)

func TestRenderIndexProducesTableAndHTML(t *testing.T) {
	entries := []IndexRow{
		{Title: "Trip Planning", FolderName: "2024-01-01_trip_planning_00001", MessageCount: 12, HasMedia: true, HasAssets: false},
	}
	strategyCredits := map[string]int{"hash": 3, "file_id": 1}
	schema := SchemaSummary{
		ContentTypes:  map[string]int{"text": 20},
		CitationKinds: map[string]int{"sediment_pointer": 3},
	}

	markdown, html, err := RenderIndex(entries, strategyCredits, 2, schema)
	if err != nil {
		t.Fatalf("RenderIndex: %v", err)
	}
	if !strings.Contains(markdown, "Trip Planning") {
		t.Fatalf("markdown missing conversation title: %s", markdown)
	}
	if !strings.Contains(string(html), "<table>") {
		t.Fatalf("expected rendered HTML table, got: %s", html)
	}
}

func TestRenderIndexEscapesPipesInTable(t *testing.T) {
	entries := []IndexRow{{Title: "A | B", FolderName: "f", MessageCount: 1}}
	markdown, _, err := RenderIndex(entries, nil, 0, SchemaSummary{})
	if err != nil {
		t.Fatalf("RenderIndex: %v", err)
	}
	if !strings.Contains(markdown, `A \| B`) {
		t.Fatalf("expected escaped pipe in title, got: %s", markdown)
	}
}

func TestRenderConversation(t *testing.T) {
	messages := []MessageView{{Author: "user", Content: "hello"}, {Author: "assistant", Content: "hi there"}}
	markdown, html, err := RenderConversation("Greeting", "a short chat", messages)
	if err != nil {
		t.Fatalf("RenderConversation: %v", err)
	}
	if !strings.Contains(markdown, "Greeting") || !strings.Contains(markdown, "hello") {
		t.Fatalf("markdown missing expected content: %s", markdown)
	}
	if !strings.Contains(string(html), "<h1") {
		t.Fatalf("expected rendered heading, got: %s", html)
	}
}
