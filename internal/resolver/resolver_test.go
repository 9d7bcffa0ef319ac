package resolver

import (
	"testing"

	"chatgpt-export-corpus/internal/mediaindex"
	"chatgpt-export-corpus/internal/models"
)

func sizePtr(v int64) *int64 { return &v }

func buildIndex(t *testing.T, files []models.MediaFile) *mediaindex.Index {
	t.Helper()
	idx, err := mediaindex.NewForTest(files)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	return idx
}

func TestStrategyHash(t *testing.T) {
	idx := buildIndex(t, []models.MediaFile{
		{Path: "/a/file_deadbeefdeadbeefdeadbeefdeadbeef-11111111-1111-1111-1111-111111111111.png", Name: "x.png", ContentHash: "deadbeefdeadbeefdeadbeefdeadbeef", Size: 10},
	})
	r := New(idx, nil)
	c := models.Citation{Kind: models.CitationSedimentPointer, Payload: "deadbeefdeadbeefdeadbeefdeadbeef"}
	res := r.ResolveConversation("conv1", []models.Citation{c})
	if len(res.ResolvedMedia) != 1 {
		t.Fatalf("expected one resolved file, got %v (unresolved=%v)", res.ResolvedMedia, res.Unresolved)
	}
}

func TestStrategyFileIDIncludesDalleAsset(t *testing.T) {
	idx := buildIndex(t, []models.MediaFile{
		{Path: "/a/file-ABC123_pic.png", Name: "file-ABC123_pic.png", FileID: "file-ABC123", Size: 20},
	})
	r := New(idx, nil)
	c := models.Citation{Kind: models.CitationDalleAsset, Payload: "file-ABC123", ExpectedSize: sizePtr(20), GenID: "gen-1"}
	res := r.ResolveConversation("conv1", []models.Citation{c})
	if len(res.ResolvedMedia) != 1 {
		t.Fatalf("expected dalle_asset to resolve via file-id, got unresolved=%v", res.Unresolved)
	}
	_, byStrategy, _ := r.Stats.Snapshot()
	if byStrategy[StrategyFileID] != 1 {
		t.Fatalf("expected credit to StrategyFileID, got %v", byStrategy)
	}
}

func TestSizeGenIDCollisionDisambiguation(t *testing.T) {
	idx := buildIndex(t, []models.MediaFile{
		{Path: "/a/a.png", Name: "a.png", Size: 100},
		{Path: "/a/b.png", Name: "b.png", Size: 100},
	})
	r := New(idx, nil)
	citations := []models.Citation{
		{ConversationID: "conv1", Kind: models.CitationDalleAsset, Payload: "gen-1-ptr", ExpectedSize: sizePtr(100), GenID: "gen-1"},
		{ConversationID: "conv1", Kind: models.CitationDalleAsset, Payload: "gen-2-ptr", ExpectedSize: sizePtr(100), GenID: "gen-2"},
	}
	r.PrepareSizeGenID(citations)

	res := r.ResolveConversation("conv1", citations)
	if len(res.Unresolved) != 0 {
		t.Fatalf("expected both citations resolved, unresolved=%v", res.Unresolved)
	}
	if len(res.ResolvedMedia) != 2 {
		t.Fatalf("expected two distinct files (no aliasing), got %v", res.ResolvedMedia)
	}
}

func TestSizeGenIDSingleCandidateBindsDirectly(t *testing.T) {
	idx := buildIndex(t, []models.MediaFile{
		{Path: "/a/only.png", Name: "only.png", Size: 50},
	})
	r := New(idx, nil)
	citations := []models.Citation{
		{ConversationID: "conv1", Kind: models.CitationFileServicePtr, Payload: "ptr", ExpectedSize: sizePtr(50), GenID: "gen-9"},
	}
	r.PrepareSizeGenID(citations)
	res := r.ResolveConversation("conv1", citations)
	if len(res.ResolvedMedia) != 1 {
		t.Fatalf("expected single-candidate size to bind, unresolved=%v", res.Unresolved)
	}
}

func TestConversationDirGuardAttachesWholeSet(t *testing.T) {
	files := []models.MediaFile{
		{Path: "/conv1/a.png", Name: "a.png", Size: 10, ConversationID: "conv1"},
		{Path: "/conv1/b.png", Name: "b.png", Size: 20, ConversationID: "conv1"},
	}
	idx := buildIndex(t, files)
	r := New(idx, nil)
	citations := []models.Citation{
		{ConversationID: "conv1", Kind: models.CitationFileServicePtr, Payload: "unmatched-ptr"},
	}
	res := r.ResolveConversation("conv1", citations)
	if len(res.ResolvedMedia) != 2 {
		t.Fatalf("expected whole conversation directory attached, got %v", res.ResolvedMedia)
	}
	if len(res.Unresolved) != 0 {
		t.Fatalf("expected citation credited via conversation_dir guard, got unresolved=%v", res.Unresolved)
	}
}

func TestStrategySizeOnlyRequiresUniqueCandidate(t *testing.T) {
	idx := buildIndex(t, []models.MediaFile{
		{Path: "/a/only.png", Name: "only.png", Size: 77},
	})
	r := New(idx, nil)
	c := models.Citation{Kind: models.CitationInlineFileID, Payload: "does-not-match", ExpectedSize: sizePtr(77)}
	res := r.ResolveConversation("conv1", []models.Citation{c})
	if len(res.ResolvedMedia) != 1 {
		t.Fatalf("expected unique size match to resolve, got %v / unresolved=%v", res.ResolvedMedia, res.Unresolved)
	}
}

func TestUnresolvedWhenNothingMatches(t *testing.T) {
	idx := buildIndex(t, nil)
	r := New(idx, nil)
	c := models.Citation{Kind: models.CitationInlineName, Payload: "ghost.png"}
	res := r.ResolveConversation("conv1", []models.Citation{c})
	if len(res.Unresolved) != 1 {
		t.Fatalf("expected citation to remain unresolved, got %v", res)
	}
	byKind, _, unresolved := r.Stats.Snapshot()
	if unresolved != 1 || byKind[models.CitationInlineName] != 1 {
		t.Fatalf("unexpected stats snapshot: %v %v", byKind, unresolved)
	}
}
