// Package voice exposes the HTTP half of the voice surface: media
// credential issuance and server-wide participant snapshots. The realtime
// gateway owns the event-driven half.
package voice

import (
	"context"
	"net/http"

	"github.com/ctc-chat/core/internal/middleware"
	"github.com/ctc-chat/core/internal/models"
	"github.com/ctc-chat/core/internal/modules/media"
	"github.com/ctc-chat/core/internal/modules/membership"
	"github.com/ctc-chat/core/internal/modules/realtime/state"
	"github.com/gin-gonic/gin"
)

// MembershipDirectory is the slice of the membership service these
// endpoints consult.
type MembershipDirectory interface {
	Channel(ctx context.Context, channelID string) (*membership.ChannelInfo, error)
	IsMember(ctx context.Context, serverID, userID string) (bool, error)
	VoiceChannels(ctx context.Context, serverID string) ([]string, error)
}

type Handler struct {
	members MembershipDirectory
	store   state.Store
	issuer  media.Issuer
}

func NewHandler(members MembershipDirectory, store state.Store, issuer media.Issuer) *Handler {
	return &Handler{members: members, store: store, issuer: issuer}
}

// RegisterRoutes mounts the authenticated voice endpoints.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/voice/token", h.issueToken)
	api.GET("/servers/:serverId/voice-participants", h.listParticipants)
}

type tokenRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
}

func (h *Handler) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel_id is required"})
		return
	}

	ch, err := h.members.Channel(c.Request.Context(), req.ChannelID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}
	if ch.Type != models.ChannelVoice {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Not a voice channel"})
		return
	}

	userID := middleware.CurrentUserID(c)
	isMember, err := h.members.IsMember(c.Request.Context(), ch.ServerID, userID)
	if err != nil || !isMember {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}

	cred, err := h.issuer.IssueCredential(userID, middleware.CurrentUsername(c), req.ChannelID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media service unavailable"})
		return
	}
	c.JSON(http.StatusOK, cred)
}

type participant struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Muted    bool   `json:"muted"`
	Deafened bool   `json:"deafened"`
	Video    bool   `json:"video"`
}

// listParticipants returns, per voice channel of the server, who is in it.
// Channels with nobody in them are omitted.
func (h *Handler) listParticipants(c *gin.Context) {
	serverID := c.Param("serverId")
	userID := middleware.CurrentUserID(c)

	isMember, err := h.members.IsMember(c.Request.Context(), serverID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership lookup failed"})
		return
	}
	if !isMember {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this server"})
		return
	}

	channels, err := h.members.VoiceChannels(c.Request.Context(), serverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "channel lookup failed"})
		return
	}

	result := make(map[string][]participant)
	for _, channelID := range channels {
		members, err := h.store.VoiceParticipants(c.Request.Context(), channelID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state store unavailable"})
			return
		}
		if len(members) == 0 {
			continue
		}
		list := make([]participant, 0, len(members))
		for uid, p := range members {
			list = append(list, participant{
				UserID:   uid,
				Username: p.Username,
				Muted:    p.Muted,
				Deafened: p.Deafened,
				Video:    p.Video,
			})
		}
		result[channelID] = list
	}
	c.JSON(http.StatusOK, result)
}
