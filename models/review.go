package models

import (
	"slices"
	"time"
)

const ReviewTable = "itb_reviews"

type Review struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID  string    `gorm:"type:uuid;index;not null" json:"deviceId"`
	UserID    string    `gorm:"type:uuid;index;not null" json:"userId"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Image     string    `gorm:"type:text" json:"image"`
	Lat       *float64  `json:"lat"`
	Lng       *float64  `json:"lng"`
	Rating    int       `gorm:"not null;default:1" json:"rating"`
	Likes     []string  `gorm:"type:text;serializer:json" json:"likes"`
	Dislikes  []string  `gorm:"type:text;serializer:json" json:"dislikes"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Device *Device `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Review) TableName() string { return ReviewTable }

// ToggleLike 已赞则取消；否则点赞并移除该用户的踩
func (r *Review) ToggleLike(userID string) {
	if slices.Contains(r.Likes, userID) {
		r.Likes = without(r.Likes, userID)
		return
	}
	r.Likes = append(r.Likes, userID)
	r.Dislikes = without(r.Dislikes, userID)
}

func (r *Review) ToggleDislike(userID string) {
	if slices.Contains(r.Dislikes, userID) {
		r.Dislikes = without(r.Dislikes, userID)
		return
	}
	r.Dislikes = append(r.Dislikes, userID)
	r.Likes = without(r.Likes, userID)
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
