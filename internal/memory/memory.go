// Package memory provides the per-user memory system (C11): short-term
// conversation history plus longer-lived preferences, facts, and recent
// topics extracted from the conversation as it happens.
package memory

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/knoguchi/omnirag/internal/llm"
)

// Message is one turn of conversation history.
type Message struct {
	Role      llm.Role
	Content   string
	Timestamp time.Time
}

// Record is everything omnirag remembers about a single user: their recent
// conversation, standing preferences, extracted facts, and recently
// discussed topics. Preferences/Facts/Topics persist across TTL expiry of
// the conversation ring buffer; they are only cleared by ClearUser.
type Record struct {
	Messages      []Message
	Preferences   map[string]string
	Facts         []string
	RecentTopics  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TriggerWords are the substrings that mark a user message as carrying a
// standing preference worth remembering past the conversation window
// (DESIGN.md Open Question #4). Overridable so a caller can supply a
// locale-specific list.
var TriggerWords = []string{"prefer", "like", "favorite", "always", "never"}

const maxTopics = 10
const maxFacts = 50

// Store is the in-memory, TTL-bounded memory backend. Production
// deployments wanting durability across restarts would back this with a
// key-value store; for the core library, the in-memory ring buffer mirrors
// the original session-memory design and is swappable behind this same API.
type Store struct {
	mu          sync.RWMutex
	records     map[string]*Record
	maxMessages int
	ttl         time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewStore creates a memory store that keeps at most maxMessages per user
// and expires a user's conversation (but not their preferences/facts) after
// ttl of inactivity.
func NewStore(maxMessages int, ttl time.Duration) *Store {
	s := &Store{
		records:     make(map[string]*Record),
		maxMessages: maxMessages,
		ttl:         ttl,
		stop:        make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// DefaultStore creates a store with sensible defaults: 50 messages, 30 days.
func DefaultStore() *Store {
	return NewStore(50, 30*24*time.Hour)
}

func (s *Store) recordFor(userID string) *Record {
	rec, ok := s.records[userID]
	if !ok {
		rec = &Record{
			Preferences: make(map[string]string),
			CreatedAt:   time.Now(),
		}
		s.records[userID] = rec
	}
	return rec
}

// AddUserMessage appends a user message, running the standing-preference
// heuristic extractor over it (C12's lighter-weight sibling: this detects
// durable user facts, not document entities).
func (s *Store) AddUserMessage(userID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordFor(userID)
	rec.Messages = append(rec.Messages, Message{Role: llm.RoleUser, Content: content, Timestamp: time.Now()})
	rec.UpdatedAt = time.Now()
	s.extractFacts(rec, content)
	s.trim(rec)
}

// AddAssistantMessage appends an assistant message to the history.
func (s *Store) AddAssistantMessage(userID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordFor(userID)
	rec.Messages = append(rec.Messages, Message{Role: llm.RoleAssistant, Content: content, Timestamp: time.Now()})
	rec.UpdatedAt = time.Now()
	s.trim(rec)
}

// NoteTopic records a topic as recently discussed, evicting the oldest
// topic once RecentTopics exceeds its cap.
func (s *Store) NoteTopic(userID, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordFor(userID)
	for _, t := range rec.RecentTopics {
		if t == topic {
			return
		}
	}
	rec.RecentTopics = append(rec.RecentTopics, topic)
	if len(rec.RecentTopics) > maxTopics {
		rec.RecentTopics = rec.RecentTopics[len(rec.RecentTopics)-maxTopics:]
	}
}

func (s *Store) trim(rec *Record) {
	if len(rec.Messages) > s.maxMessages {
		rec.Messages = rec.Messages[len(rec.Messages)-s.maxMessages:]
	}
}

// extractFacts applies the trigger-word heuristic: a user message
// containing a trigger word is stored verbatim as a standing fact and also
// recorded as a preference keyed "note_<n>", n being the fact count.
func (s *Store) extractFacts(rec *Record, content string) {
	lower := strings.ToLower(content)
	matched := false
	for _, w := range TriggerWords {
		if strings.Contains(lower, w) {
			matched = true
			break
		}
	}
	if !matched {
		return
	}

	rec.Facts = append(rec.Facts, content)
	if len(rec.Facts) > maxFacts {
		rec.Facts = rec.Facts[len(rec.Facts)-maxFacts:]
	}
	rec.Preferences["note_"+strconv.Itoa(len(rec.Facts))] = content
}

// GetHistory returns a copy of userID's conversation history, or nil if no
// record exists.
func (s *Store) GetHistory(userID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil
	}
	out := make([]Message, len(rec.Messages))
	copy(out, rec.Messages)
	return out
}

// GetRecentHistory returns the last n messages, or the full history if
// shorter.
func (s *Store) GetRecentHistory(userID string, n int) []Message {
	history := s.GetHistory(userID)
	if history == nil || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// GetRecord returns a copy of the full memory record for userID.
func (s *Store) GetRecord(userID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return Record{}, false
	}
	cp := *rec
	cp.Messages = append([]Message(nil), rec.Messages...)
	cp.Facts = append([]string(nil), rec.Facts...)
	cp.RecentTopics = append([]string(nil), rec.RecentTopics...)
	cp.Preferences = make(map[string]string, len(rec.Preferences))
	for k, v := range rec.Preferences {
		cp.Preferences[k] = v
	}
	return cp, true
}

// ClearUser removes all memory for userID, including preferences and facts.
func (s *Store) ClearUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
}

// Close stops the background cleanup loop. Safe to call more than once.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

// cleanup expires conversation history for inactive users. Preferences and
// facts are intentionally NOT cleared here — only ClearUser removes those.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, rec := range s.records {
		if now.Sub(rec.UpdatedAt) > s.ttl {
			rec.Messages = nil
		}
	}
}

// FormatForPrompt renders conversation history as a plain transcript
// suitable for inclusion in an LLM system or user turn.
func FormatForPrompt(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	var out string
	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			out += "User: " + m.Content + "\n"
		case llm.RoleAssistant:
			out += "Assistant: " + m.Content + "\n"
		}
	}
	return out
}
