package models

import "time"

// ServerRole is a member's role within a server.
type ServerRole string

const (
	RoleAdmin  ServerRole = "admin"
	RoleMember ServerRole = "member"
)

// ServerModel groups channels and members. "Server" in the client
// vocabulary, a guild-like grouping in practice.
type ServerModel struct {
	Base
	Name      string  `json:"name"       gorm:"size:128;not null"`
	IconURL   *string `json:"icon_url"`
	CreatedBy string  `json:"created_by" gorm:"type:char(36);index"`
}

func (ServerModel) TableName() string { return "servers" }

// ServerMemberModel links a user to a server with a role. Composite key,
// no soft delete: membership is either present or gone.
type ServerMemberModel struct {
	ServerID string     `json:"server_id" gorm:"type:char(36);primaryKey"`
	UserID   string     `json:"user_id"   gorm:"type:char(36);primaryKey;index"`
	Role     ServerRole `json:"role"      gorm:"size:16;default:'member'"`
	Nickname *string    `json:"nickname"  gorm:"size:64"`
	JoinedAt time.Time  `json:"joined_at" gorm:"autoCreateTime"`
}

func (ServerMemberModel) TableName() string { return "server_members" }
