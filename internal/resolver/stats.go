package resolver

import (
	"sync"

	"chatgpt-export-corpus/internal/models"
)

// StrategyID names one of the seven ordered matching strategies from
// spec.md §4.4, used to credit resolutions in Stats. The enumeration
// does not drive dispatch: ResolveConversation calls the strategies in
// a fixed order, and rematch-media runs them in that same order.
type StrategyID int

const (
	StrategyHash StrategyID = 1 + iota
	StrategyFileID
	StrategyNameSize
	StrategyConversationDir
	StrategySizeGenID
	StrategySizeOnly
	StrategyInlineText
)

func (s StrategyID) String() string {
	switch s {
	case StrategyHash:
		return "hash"
	case StrategyFileID:
		return "file_id"
	case StrategyNameSize:
		return "name_size"
	case StrategyConversationDir:
		return "conversation_dir"
	case StrategySizeGenID:
		return "size_gen_id"
	case StrategySizeOnly:
		return "size_only"
	case StrategyInlineText:
		return "inline_text"
	default:
		return "unknown"
	}
}

// Stats accumulates global counters across every conversation
// processed by a Resolver, safe for concurrent updates from the
// per-conversation worker pool (spec.md §5).
type Stats struct {
	mu               sync.Mutex
	ObservedByKind   map[models.CitationKind]int
	CreditedByStrategy map[StrategyID]int
	Unresolved       int
}

// NewStats returns a zeroed Stats ready for concurrent use.
func NewStats() *Stats {
	return &Stats{
		ObservedByKind:     make(map[models.CitationKind]int),
		CreditedByStrategy: make(map[StrategyID]int),
	}
}

func (s *Stats) observe(kind models.CitationKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ObservedByKind[kind]++
}

func (s *Stats) credit(strategy StrategyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreditedByStrategy[strategy]++
}

func (s *Stats) unresolved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Unresolved++
}

// Snapshot returns a copy safe to read without holding the lock, used
// by the writer to serialize the master index.
func (s *Stats) Snapshot() (map[models.CitationKind]int, map[StrategyID]int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKind := make(map[models.CitationKind]int, len(s.ObservedByKind))
	for k, v := range s.ObservedByKind {
		byKind[k] = v
	}
	byStrategy := make(map[StrategyID]int, len(s.CreditedByStrategy))
	for k, v := range s.CreditedByStrategy {
		byStrategy[k] = v
	}
	return byKind, byStrategy, s.Unresolved
}
