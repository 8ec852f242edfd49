// Package membership is the realtime core's read-only view of the durable
// membership store: who belongs to which server, with which role, and what
// channels exist. The engine consults it and never writes through it.
package membership

import (
	"context"
	"errors"

	"github.com/ctc-chat/core/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a referenced user or channel does not exist.
var ErrNotFound = errors.New("membership: not found")

// Membership is one server a user belongs to.
type Membership struct {
	ServerID string
	Role     models.ServerRole
}

// ChannelInfo is the slice of channel state the coordinator needs to route
// voice and typing events.
type ChannelInfo struct {
	ID       string
	ServerID string
	Type     models.ChannelType
}

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// ListServerMemberships returns every server a user is a member of.
func (s *Service) ListServerMemberships(ctx context.Context, userID string) ([]Membership, error) {
	var rows []models.ServerMemberModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	memberships := make([]Membership, 0, len(rows))
	for _, r := range rows {
		memberships = append(memberships, Membership{ServerID: r.ServerID, Role: r.Role})
	}
	return memberships, nil
}

// IsMember reports whether a user belongs to a server.
func (s *Service) IsMember(ctx context.Context, serverID, userID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ServerMemberModel{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Count(&n).Error
	return n > 0, err
}

// Role returns a user's role in a server, or ErrNotFound if not a member.
func (s *Service) Role(ctx context.Context, serverID, userID string) (models.ServerRole, error) {
	var row models.ServerMemberModel
	err := s.db.WithContext(ctx).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Role, nil
}

// Channel resolves a channel id to its server and type.
func (s *Service) Channel(ctx context.Context, channelID string) (*ChannelInfo, error) {
	var row models.ChannelModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ChannelInfo{ID: row.ID, ServerID: row.ServerID, Type: row.Type}, nil
}

// VoiceChannels lists the ids of a server's voice channels.
func (s *Service) VoiceChannels(ctx context.Context, serverID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.ChannelModel{}).
		Where("server_id = ? AND type = ?", serverID, models.ChannelVoice).
		Pluck("id", &ids).Error
	return ids, err
}

// DisplayName returns a user's display name, or ErrNotFound.
func (s *Service) DisplayName(ctx context.Context, userID string) (string, error) {
	var row models.UserModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Username, nil
}
