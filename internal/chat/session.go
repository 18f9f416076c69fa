package chat

import (
	"sync"

	oa "github.com/openai/openai-go"

	"portfobot/internal/excel"
	"portfobot/internal/finance"
	"portfobot/internal/pdfs"
)

// Session is the state one chat carries across turns: the append-only
// message log, the similarity index over uploaded documents, the loaded
// workbook, and the most recently fetched price series. The cached series is
// an explicit field so the drawdown fallback order (explicit argument,
// cached series, fresh fetch) is a visible data dependency.
type Session struct {
	mu sync.Mutex

	ChatID     int64
	Messages   []oa.ChatCompletionMessageParamUnion
	Index      *pdfs.Index
	Workbook   *excel.Workbook
	LastSeries []finance.Point
}

func NewSession(chatID int64, index *pdfs.Index) *Session {
	return &Session{ChatID: chatID, Index: index}
}

// Lock serializes turns: no two turns may execute concurrently against the
// same session.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Reset drops everything but the chat identity. The index keeps its
// embedder but forgets all indexed content.
func (s *Session) Reset(index *pdfs.Index) {
	s.Messages = nil
	s.Index = index
	s.Workbook = nil
	s.LastSeries = nil
}

// lastCloses returns the cached series values, if any.
func (s *Session) lastCloses() []float64 {
	if len(s.LastSeries) == 0 {
		return nil
	}
	out := make([]float64, len(s.LastSeries))
	for i, p := range s.LastSeries {
		out[i] = p.Close
	}
	return out
}

// Sessions is the per-chat session registry.
type Sessions struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	newIndex func() *pdfs.Index
}

func NewSessions(newIndex func() *pdfs.Index) *Sessions {
	return &Sessions{sessions: map[int64]*Session{}, newIndex: newIndex}
}

// Get returns the session for a chat, creating it on first use.
func (r *Sessions) Get(chatID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	if !ok {
		s = NewSession(chatID, r.newIndex())
		r.sessions[chatID] = s
	}
	return s
}

// Reset clears a chat's session state.
func (r *Sessions) Reset(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[chatID]; ok {
		s.Lock()
		s.Reset(r.newIndex())
		s.Unlock()
	}
}
