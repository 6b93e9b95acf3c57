// models/actor_profile.go
package models

import "time"

// ActorProfile is the display metadata last observed for an actor.
// Written through the identity directory's upsert only.
type ActorProfile struct {
	ActorID     string    `gorm:"primaryKey;type:varchar(64);not null" json:"actor_id"`
	DisplayName string    `gorm:"type:varchar(255);not null" json:"display_name"`
	DisplayTag  string    `gorm:"type:varchar(32);not null;default:''" json:"display_tag"` // e.g. discriminator
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ActorProfile) TableName() string {
	return "actor_profiles"
}

// Handle renders "name#tag", or just the name when there is no tag.
func (p ActorProfile) Handle() string {
	return FormatHandle(p.DisplayName, p.DisplayTag)
}

func FormatHandle(name, tag string) string {
	if tag == "" || tag == "0" {
		return name
	}
	return name + "#" + tag
}
