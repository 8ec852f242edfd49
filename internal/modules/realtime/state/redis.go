package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgredis "github.com/ctc-chat/core/internal/pkg/redis"
)

// Key schema:
//
//	presence:<userID>        string "online", TTL presenceTTL
//	voice:channel:<roomID>   hash userID → participant JSON
//	voice:user:<userID>      string roomID (the single-location authority)
//	typing:<channelID>       hash userID → typing JSON, TTL typingTTL
const (
	keyPresence  = "presence:"
	keyVoiceRoom = "voice:channel:"
	keyVoiceUser = "voice:user:"
	keyTyping    = "typing:"
)

// commands is the key/value slice of the redis client the store uses;
// tests substitute a fake to exercise failure branches.
type commands interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetSet(ctx context.Context, key string, value interface{}) (string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	HSet(ctx context.Context, key, field string, value interface{}) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RedisStore implements Store and PubSub on a shared Redis instance.
type RedisStore struct {
	rc          commands
	sub         *pkgredis.Client
	presenceTTL time.Duration
	typingTTL   time.Duration
}

func NewRedisStore(rc *pkgredis.Client, presenceTTL, typingTTL time.Duration) *RedisStore {
	return &RedisStore{rc: rc, sub: rc, presenceTTL: presenceTTL, typingTTL: typingTTL}
}

func (s *RedisStore) SetOnline(ctx context.Context, userID string) error {
	return s.rc.Set(ctx, keyPresence+userID, StatusOnline, s.presenceTTL)
}

func (s *RedisStore) SetOffline(ctx context.Context, userID string) error {
	return s.rc.Del(ctx, keyPresence+userID)
}

func (s *RedisStore) RefreshPresence(ctx context.Context, userID string) error {
	return s.rc.Expire(ctx, keyPresence+userID, s.presenceTTL)
}

func (s *RedisStore) Status(ctx context.Context, userID string) (string, error) {
	val, err := s.rc.Get(ctx, keyPresence+userID)
	if err != nil {
		return "", err
	}
	if val == "" {
		return StatusOffline, nil
	}
	return val, nil
}

func (s *RedisStore) JoinVoice(ctx context.Context, roomID, userID string, p Participant) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	// The location key is the authority; swap it first so a concurrent
	// writer can never end up with two rooms both claiming the user.
	prev, err := s.rc.GetSet(ctx, keyVoiceUser+userID, roomID)
	if err != nil {
		return "", fmt.Errorf("swap voice location: %w", err)
	}
	if prev != "" && prev != roomID {
		if err := s.rc.HDel(ctx, keyVoiceRoom+prev, userID); err != nil {
			// Compensate: the location key already points at the new room
			// but nothing was written there; revert it so the user is in
			// no room rather than half in one.
			_ = s.rc.Del(ctx, keyVoiceUser+userID)
			return prev, fmt.Errorf("clear stale voice membership: %w", err)
		}
	}
	if err := s.rc.HSet(ctx, keyVoiceRoom+roomID, userID, data); err != nil {
		// Compensate: the user is in no room rather than half in one.
		_ = s.rc.Del(ctx, keyVoiceUser+userID)
		return prev, fmt.Errorf("record voice participant: %w", err)
	}
	return prev, nil
}

func (s *RedisStore) LeaveVoice(ctx context.Context, roomID, userID string) error {
	if err := s.rc.HDel(ctx, keyVoiceRoom+roomID, userID); err != nil {
		return err
	}
	return s.rc.Del(ctx, keyVoiceUser+userID)
}

func (s *RedisStore) UpdateVoice(ctx context.Context, roomID, userID string, p Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rc.HSet(ctx, keyVoiceRoom+roomID, userID, data)
}

func (s *RedisStore) VoiceRoomOf(ctx context.Context, userID string) (string, error) {
	return s.rc.Get(ctx, keyVoiceUser+userID)
}

func (s *RedisStore) VoiceParticipants(ctx context.Context, roomID string) (map[string]Participant, error) {
	raw, err := s.rc.HGetAll(ctx, keyVoiceRoom+roomID)
	if err != nil {
		return nil, err
	}
	participants := make(map[string]Participant, len(raw))
	for uid, data := range raw {
		var p Participant
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			continue
		}
		participants[uid] = p
	}
	return participants, nil
}

func (s *RedisStore) SetTyping(ctx context.Context, channelID, userID, username string) error {
	entry := TypingEntry{Username: username, TS: time.Now().UnixMilli()}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := keyTyping + channelID
	if err := s.rc.HSet(ctx, key, userID, data); err != nil {
		return err
	}
	return s.rc.Expire(ctx, key, s.typingTTL)
}

func (s *RedisStore) ClearTyping(ctx context.Context, channelID, userID string) error {
	return s.rc.HDel(ctx, keyTyping+channelID, userID)
}

func (s *RedisStore) TypingUsers(ctx context.Context, channelID string) (map[string]TypingEntry, error) {
	raw, err := s.rc.HGetAll(ctx, keyTyping+channelID)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]TypingEntry, len(raw))
	for uid, data := range raw {
		var e TypingEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			continue
		}
		entries[uid] = e
	}
	return entries, nil
}

// Publish sends a relay payload to every engine instance.
func (s *RedisStore) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.rc.Publish(ctx, topic, payload)
}

// Subscribe listens for relay payloads from other engine instances. Blocks
// until ctx is cancelled.
func (s *RedisStore) Subscribe(ctx context.Context, topic string, handler func([]byte)) error {
	pubsub := s.sub.Subscribe(ctx, topic)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}
