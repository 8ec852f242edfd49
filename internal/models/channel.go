package models

// ChannelType distinguishes text channels (messages, typing indicators)
// from voice channels (realtime voice rooms).
type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

// ChannelModel is a text or voice channel within a server.
type ChannelModel struct {
	Base
	ServerID string      `json:"server_id" gorm:"type:char(36);index;not null"`
	Name     string      `json:"name"      gorm:"size:128;not null"`
	Type     ChannelType `json:"type"      gorm:"size:16;default:'text'"`
	Position int         `json:"position"  gorm:"default:0"`
}

func (ChannelModel) TableName() string { return "channels" }
