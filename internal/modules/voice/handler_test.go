package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ctc-chat/core/internal/middleware"
	"github.com/ctc-chat/core/internal/models"
	"github.com/ctc-chat/core/internal/modules/media"
	"github.com/ctc-chat/core/internal/modules/membership"
	"github.com/ctc-chat/core/internal/modules/realtime/state"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	channels      map[string]*membership.ChannelInfo
	members       map[string]bool // serverID+"/"+userID
	voiceChannels map[string][]string
}

func (f *fakeDirectory) Channel(_ context.Context, channelID string) (*membership.ChannelInfo, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, membership.ErrNotFound
	}
	return ch, nil
}

func (f *fakeDirectory) IsMember(_ context.Context, serverID, userID string) (bool, error) {
	return f.members[serverID+"/"+userID], nil
}

func (f *fakeDirectory) VoiceChannels(_ context.Context, serverID string) ([]string, error) {
	return f.voiceChannels[serverID], nil
}

type staticIssuer struct{ err error }

func (s staticIssuer) IssueCredential(identity, _, roomID string) (media.Credential, error) {
	if s.err != nil {
		return media.Credential{}, s.err
	}
	return media.Credential{Token: identity + "@" + roomID, URL: "wss://media.test"}, nil
}

func newTestRouter(h *Handler, userID, username string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID)
		c.Set(middleware.ContextKeyUsername, username)
	})
	h.RegisterRoutes(api)
	return r
}

func newVoiceFixture() (*fakeDirectory, *state.MemoryStore, *Handler) {
	dir := &fakeDirectory{
		channels: map[string]*membership.ChannelInfo{
			"ch-a":    {ID: "ch-a", ServerID: "s1", Type: models.ChannelVoice},
			"ch-b":    {ID: "ch-b", ServerID: "s1", Type: models.ChannelVoice},
			"ch-text": {ID: "ch-text", ServerID: "s1", Type: models.ChannelText},
		},
		members:       map[string]bool{"s1/u-alice": true},
		voiceChannels: map[string][]string{"s1": {"ch-a", "ch-b"}},
	}
	store := state.NewMemoryStore(300*time.Second, 10*time.Second)
	h := NewHandler(dir, store, staticIssuer{})
	return dir, store, h
}

func TestIssueToken(t *testing.T) {
	_, _, h := newVoiceFixture()
	r := newTestRouter(h, "u-alice", "alice")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/token",
		strings.NewReader(`{"channel_id":"ch-a"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cred media.Credential
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cred))
	assert.Equal(t, "u-alice@ch-a", cred.Token)
	assert.Equal(t, "wss://media.test", cred.URL)
}

func TestIssueTokenValidation(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		body   string
		status int
	}{
		{"missing channel_id", "u-alice", `{}`, http.StatusBadRequest},
		{"unknown channel", "u-alice", `{"channel_id":"ch-nope"}`, http.StatusNotFound},
		{"text channel", "u-alice", `{"channel_id":"ch-text"}`, http.StatusBadRequest},
		{"non-member sees not found", "u-stranger", `{"channel_id":"ch-a"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, h := newVoiceFixture()
			r := newTestRouter(h, tt.user, "someone")

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/voice/token", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestIssueTokenMediaUnavailable(t *testing.T) {
	dir, store, _ := newVoiceFixture()
	h := NewHandler(dir, store, staticIssuer{err: media.ErrDisabled})
	r := newTestRouter(h, "u-alice", "alice")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/token",
		strings.NewReader(`{"channel_id":"ch-a"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListParticipantsOmitsEmptyChannels(t *testing.T) {
	_, store, h := newVoiceFixture()
	ctx := context.Background()
	_, err := store.JoinVoice(ctx, "ch-a", "u-bob", state.Participant{Username: "bob", Muted: true})
	require.NoError(t, err)

	r := newTestRouter(h, "u-alice", "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/servers/s1/voice-participants", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var result map[string][]participant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result, 1)
	require.Len(t, result["ch-a"], 1)
	assert.Equal(t, participant{UserID: "u-bob", Username: "bob", Muted: true}, result["ch-a"][0])
	assert.NotContains(t, result, "ch-b")
}

func TestListParticipantsRequiresMembership(t *testing.T) {
	_, _, h := newVoiceFixture()
	r := newTestRouter(h, "u-stranger", "stranger")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/servers/s1/voice-participants", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}
