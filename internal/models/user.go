package models

// UserStatus is the client-visible presence status. Only online/offline
// are computed server-side; idle and dnd are client-declared.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusIdle    UserStatus = "idle"
	StatusDND     UserStatus = "dnd"
	StatusOffline UserStatus = "offline"
)

// UserModel is an account. The realtime core reads it for display names
// only; credential fields are owned by the HTTP auth layer.
type UserModel struct {
	Base
	Username      string     `json:"username"        gorm:"uniqueIndex;size:64;not null"`
	FirstName     string     `json:"first_name"      gorm:"size:64"`
	PasswordHash  string     `json:"-"               gorm:"size:128;not null"`
	AvatarURL     *string    `json:"avatar_url"`
	Status        UserStatus `json:"status"          gorm:"size:16;default:'offline'"`
	IsGlobalAdmin bool       `json:"is_global_admin" gorm:"default:false"`
}

func (UserModel) TableName() string { return "users" }
