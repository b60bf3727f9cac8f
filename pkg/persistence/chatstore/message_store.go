package chatstore

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// MessageStore holds the ordered, duplicate-free message log of one conversation.
//
// The log is kept oldest-first. Messages are only ever added: MergeNewer appends at the
// newest end, MergeOlder prepends at the oldest end, and nothing is evicted while the
// store is alive. All methods are safe for concurrent use.
type MessageStore struct {
	mu    sync.RWMutex
	log   []chat.Message
	index map[string]struct{}
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		index: map[string]struct{}{},
	}
}

// Seed replaces the log wholesale. messages must be oldest-first.
// On ErrInvalidSeed the previous log is left untouched.
func (s *MessageStore) Seed(messages []chat.Message) error {
	if s == nil {
		return errors.New("message store: nil store")
	}
	index := make(map[string]struct{}, len(messages))
	for _, m := range messages {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return errors.Wrap(chat.ErrInvalidSeed, "message store: empty id")
		}
		if _, ok := index[id]; ok {
			return errors.Wrapf(chat.ErrInvalidSeed, "message store: duplicate id %q", id)
		}
		index[id] = struct{}{}
	}
	log := make([]chat.Message, len(messages))
	copy(log, messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = log
	s.index = index
	return nil
}

// MergeNewer appends every message whose id is not yet known, keeping input order.
// Already known ids are dropped silently. It returns the messages actually inserted.
func (s *MessageStore) MergeNewer(messages []chat.Message) []chat.Message {
	if s == nil || len(messages) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.unseenLocked(messages)
	s.log = append(s.log, fresh...)
	return fresh
}

// MergeOlder prepends unseen messages (oldest-first) ahead of the current log.
// Used when paging back through history.
func (s *MessageStore) MergeOlder(messages []chat.Message) []chat.Message {
	if s == nil || len(messages) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.unseenLocked(messages)
	if len(fresh) == 0 {
		return nil
	}
	log := make([]chat.Message, 0, len(fresh)+len(s.log))
	log = append(log, fresh...)
	log = append(log, s.log...)
	s.log = log
	return fresh
}

// unseenLocked filters messages down to ids not in the index and records them.
// Empty ids cannot be deduplicated and are skipped.
func (s *MessageStore) unseenLocked(messages []chat.Message) []chat.Message {
	if s.index == nil {
		s.index = map[string]struct{}{}
	}
	var fresh []chat.Message
	for _, m := range messages {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		if _, ok := s.index[id]; ok {
			continue
		}
		s.index[id] = struct{}{}
		fresh = append(fresh, m)
	}
	return fresh
}

// Snapshot returns a copy of the log, oldest-first.
func (s *MessageStore) Snapshot() []chat.Message {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, len(s.log))
	copy(out, s.log)
	return out
}

// OldestWatermark is the id of the oldest known message.
func (s *MessageStore) OldestWatermark() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) == 0 {
		return "", false
	}
	return s.log[0].ID, true
}

// NewestWatermark is the id of the newest known message, used for refresh requests.
func (s *MessageStore) NewestWatermark() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) == 0 {
		return "", false
	}
	return s.log[len(s.log)-1].ID, true
}

func (s *MessageStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

func (s *MessageStore) Contains(id string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[strings.TrimSpace(id)]
	return ok
}
