package asset

import (
	"encoding/json"
	"testing"

	"chatgpt-export-corpus/internal/convo"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestExtractCanvasAsset(t *testing.T) {
	d := convo.Document{
		Mapping: map[string]convo.Node{
			"n1": {
				ID: "n1",
				Message: &convo.Message{
					ID: "m1",
					Content: convo.Content{
						ContentType: "code",
						Language:    "python",
						Text:        "print('hi')",
					},
				},
			},
		},
	}

	assets := ExtractAll(d)
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}
	if assets[0].Kind != "canvas" || assets[0].Language != "python" {
		t.Fatalf("unexpected asset: %+v", assets[0])
	}
	if got, want := assets[0].FileName(), "canvas_n1_0.python"; got != want {
		t.Fatalf("FileName() = %q, want %q", got, want)
	}
}

func TestExtractFencedCodeBlocks(t *testing.T) {
	text := "here you go:\n```go\nfmt.Println(1)\n```\nand another:\n```\nplain\n```"
	d := convo.Document{
		Mapping: map[string]convo.Node{
			"n1": {
				ID: "n1",
				Message: &convo.Message{
					ID: "m1",
					Content: convo.Content{
						ContentType: "text",
						Parts:       []json.RawMessage{rawString(text)},
					},
				},
			},
		},
	}

	assets := ExtractAll(d)
	if len(assets) != 2 {
		t.Fatalf("expected 2 code block assets, got %d: %+v", len(assets), assets)
	}
	if assets[0].Language != "go" || assets[1].Language != "txt" {
		t.Fatalf("unexpected languages: %q %q", assets[0].Language, assets[1].Language)
	}
	if assets[0].Ordinal != 0 || assets[1].Ordinal != 1 {
		t.Fatalf("unexpected ordinals: %d %d", assets[0].Ordinal, assets[1].Ordinal)
	}
}

func TestExtractAllSkipsOtherContentTypes(t *testing.T) {
	d := convo.Document{
		Mapping: map[string]convo.Node{
			"n1": {
				ID: "n1",
				Message: &convo.Message{
					ID:      "m1",
					Content: convo.Content{ContentType: "user_editable_context"},
				},
			},
		},
	}
	if assets := ExtractAll(d); len(assets) != 0 {
		t.Fatalf("expected no assets, got %+v", assets)
	}
}
