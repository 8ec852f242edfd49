package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for single-instance deployments and
// tests. The cross-process PubSub path is a no-op: with one process, local
// fanout delivery already reaches every subscriber.
type MemoryStore struct {
	mu sync.Mutex

	now         func() time.Time
	presenceTTL time.Duration
	typingTTL   time.Duration

	presence   map[string]time.Time // userID → expiry
	voiceUser  map[string]string    // userID → roomID
	voiceRooms map[string]map[string]Participant
	typing     map[string]map[string]typingSlot
}

type typingSlot struct {
	entry  TypingEntry
	expiry time.Time
}

func NewMemoryStore(presenceTTL, typingTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		now:         time.Now,
		presenceTTL: presenceTTL,
		typingTTL:   typingTTL,
		presence:    make(map[string]time.Time),
		voiceUser:   make(map[string]string),
		voiceRooms:  make(map[string]map[string]Participant),
		typing:      make(map[string]map[string]typingSlot),
	}
}

// SetClock replaces the time source. Tests use it to step TTL expiry
// without sleeping.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) SetOnline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = s.now().Add(s.presenceTTL)
	return nil
}

func (s *MemoryStore) SetOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, userID)
	return nil
}

func (s *MemoryStore) RefreshPresence(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presence[userID]; ok {
		s.presence[userID] = s.now().Add(s.presenceTTL)
	}
	return nil
}

func (s *MemoryStore) Status(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.presence[userID]
	if !ok || s.now().After(expiry) {
		delete(s.presence, userID)
		return StatusOffline, nil
	}
	return StatusOnline, nil
}

func (s *MemoryStore) JoinVoice(_ context.Context, roomID, userID string, p Participant) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.voiceUser[userID]
	s.voiceUser[userID] = roomID
	if prev != "" && prev != roomID {
		s.removeParticipantLocked(prev, userID)
	}
	if s.voiceRooms[roomID] == nil {
		s.voiceRooms[roomID] = make(map[string]Participant)
	}
	s.voiceRooms[roomID][userID] = p
	return prev, nil
}

func (s *MemoryStore) LeaveVoice(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeParticipantLocked(roomID, userID)
	delete(s.voiceUser, userID)
	return nil
}

func (s *MemoryStore) UpdateVoice(_ context.Context, roomID, userID string, p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.voiceRooms[roomID]; ok {
		if _, ok := room[userID]; ok {
			room[userID] = p
		}
	}
	return nil
}

func (s *MemoryStore) VoiceRoomOf(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceUser[userID], nil
}

func (s *MemoryStore) VoiceParticipants(_ context.Context, roomID string) (map[string]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.voiceRooms[roomID]
	out := make(map[string]Participant, len(room))
	for uid, p := range room {
		out[uid] = p
	}
	return out, nil
}

func (s *MemoryStore) removeParticipantLocked(roomID, userID string) {
	if room, ok := s.voiceRooms[roomID]; ok {
		delete(room, userID)
		if len(room) == 0 {
			delete(s.voiceRooms, roomID)
		}
	}
}

func (s *MemoryStore) SetTyping(_ context.Context, channelID, userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typing[channelID] == nil {
		s.typing[channelID] = make(map[string]typingSlot)
	}
	now := s.now()
	s.typing[channelID][userID] = typingSlot{
		entry:  TypingEntry{Username: username, TS: now.UnixMilli()},
		expiry: now.Add(s.typingTTL),
	}
	return nil
}

func (s *MemoryStore) ClearTyping(_ context.Context, channelID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slots, ok := s.typing[channelID]; ok {
		delete(slots, userID)
		if len(slots) == 0 {
			delete(s.typing, channelID)
		}
	}
	return nil
}

func (s *MemoryStore) TypingUsers(_ context.Context, channelID string) (map[string]TypingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := s.typing[channelID]
	now := s.now()
	out := make(map[string]TypingEntry, len(slots))
	for uid, slot := range slots {
		if now.After(slot.expiry) {
			delete(slots, uid)
			continue
		}
		out[uid] = slot.entry
	}
	if len(slots) == 0 {
		delete(s.typing, channelID)
	}
	return out, nil
}

func (s *MemoryStore) Publish(context.Context, string, []byte) error { return nil }

func (s *MemoryStore) Subscribe(ctx context.Context, _ string, _ func([]byte)) error {
	<-ctx.Done()
	return ctx.Err()
}
