// Package history maintains per-channel conversation logs for the chat
// engine: bounded in-memory turn sequences with structural invariants,
// serialized to durable storage through a pluggable [Backend].
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// Backend persists conversation snapshots. Implementations: [FileBackend]
// (atomic JSON file) and [PostgresBackend].
type Backend interface {
	// Load reads all stored conversations. Malformed entries are skipped,
	// not fatal; an error is returned only when storage as a whole is
	// unreadable.
	Load(ctx context.Context) (map[string][]*model.Turn, error)

	// Persist replaces durable state with the given snapshot. An empty
	// snapshot removes the storage artifact entirely.
	Persist(ctx context.Context, snapshot map[string][]*model.Turn) error
}

// Conversation is the mutable ordered turn log for one channel. A chat
// cycle mutates it only through the mutex-guarded methods below; the same
// mutex lets [Store.Snapshot] read a consistent copy while other channels'
// cycles are mid-flight.
type Conversation struct {
	ChannelID string
	Turns     []*model.Turn

	mu sync.Mutex
}

// Append adds a turn to the end of the conversation.
func (c *Conversation) Append(t *model.Turn) {
	c.mu.Lock()
	c.Turns = append(c.Turns, t)
	c.mu.Unlock()
}

// Len returns the number of turns currently held.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Turns)
}

// Mutate runs fn with exclusive access to the conversation; fn returns the
// replacement turn slice. In-place part edits also go through Mutate so
// they cannot tear a concurrent snapshot.
func (c *Conversation) Mutate(fn func(turns []*model.Turn) []*model.Turn) {
	c.mu.Lock()
	c.Turns = fn(c.Turns)
	c.mu.Unlock()
}

// Store keeps all channel conversations and mediates load/persist against
// the configured backend.
type Store struct {
	limit   int
	backend Backend

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewStore creates a Store bounded to limit turns per conversation.
func NewStore(limit int, backend Backend) *Store {
	return &Store{
		limit:         limit,
		backend:       backend,
		conversations: make(map[string]*Conversation),
	}
}

// Get returns the conversation for channelID, creating an empty one if
// absent. It never blocks on I/O.
func (s *Store) Get(channelID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[channelID]
	if !ok {
		c = &Conversation{ChannelID: channelID}
		s.conversations[channelID] = c
	}
	return c
}

// Trim applies the structural invariants to c in place: truncate to the
// configured maximum (oldest first), drop trailing turns with unanswered
// tool calls, drop leading call/result turns. Idempotent.
func (s *Store) Trim(c *Conversation) {
	c.Mutate(func(turns []*model.Turn) []*model.Turn {
		before := len(turns)
		turns = Trim(turns, s.limit)
		if len(turns) != before {
			slog.Info("trimmed chat history", "channel", c.ChannelID, "from", before, "to", len(turns))
		}
		return turns
	})
}

// Trim returns turns reduced to satisfy the history invariants:
// length ≤ limit (oldest dropped first), no trailing turn containing a
// function call, and no leading turn that is itself a call or result
// fragment. Calling Trim on its own output is a no-op.
func Trim(turns []*model.Turn, limit int) []*model.Turn {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	for len(turns) > 0 && hasFunctionCall(turns[len(turns)-1]) {
		turns = turns[:len(turns)-1]
	}
	for len(turns) > 0 && (hasFunctionCall(turns[0]) || hasFunctionResponse(turns[0])) {
		turns = turns[1:]
	}
	return turns
}

func hasFunctionCall(t *model.Turn) bool {
	for _, p := range t.Parts {
		if p.FunctionCall != nil {
			return true
		}
	}
	return false
}

func hasFunctionResponse(t *model.Turn) bool {
	for _, p := range t.Parts {
		if p.FunctionResponse != nil {
			return true
		}
	}
	return false
}

// Load reads durable storage into the store. Storage-level failures degrade
// to empty history: they are logged and never returned, so startup cannot
// fail on a corrupt context file.
func (s *Store) Load(ctx context.Context) {
	loaded, err := s.backend.Load(ctx)
	if err != nil {
		slog.Error("failed to load chat history; starting fresh", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for channelID, turns := range loaded {
		turns = Trim(turns, s.limit)
		if len(turns) == 0 {
			continue
		}
		s.conversations[channelID] = &Conversation{ChannelID: channelID, Turns: turns}
	}
	if len(loaded) > 0 {
		slog.Info("loaded chat history", "channels", len(loaded))
	}
}

// Persist writes a snapshot of all conversations to the backend. Turns
// without a single serializable part are omitted; channels left with no
// turns are dropped from the snapshot entirely.
func (s *Store) Persist(ctx context.Context) error {
	snapshot := s.Snapshot()
	if err := s.backend.Persist(ctx, snapshot); err != nil {
		return fmt.Errorf("history: persist: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the store's current contents with empty
// turns and empty conversations filtered out. Each conversation is copied
// under its own lock, so snapshots taken while another channel's chat cycle
// is running never observe a half-applied mutation, and the backend can
// serialize the result after the locks are released.
func (s *Store) Snapshot() map[string][]*model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string][]*model.Turn, len(s.conversations))
	for channelID, c := range s.conversations {
		c.mu.Lock()
		kept := make([]*model.Turn, 0, len(c.Turns))
		for _, t := range c.Turns {
			if len(t.Parts) == 0 {
				continue
			}
			cp := *t
			cp.Parts = append([]model.Part(nil), t.Parts...)
			kept = append(kept, &cp)
		}
		c.mu.Unlock()
		if len(kept) > 0 {
			snapshot[channelID] = kept
		}
	}
	return snapshot
}
