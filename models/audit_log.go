package models

import "time"

// AuditLog 借用引擎每个领域事件的持久化副本
type AuditLog struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Event       string    `gorm:"size:40;index;not null" json:"event"`
	BorrowingID *string   `gorm:"type:uuid;index" json:"borrowingId,omitempty"`
	DeviceID    *string   `gorm:"type:uuid;index" json:"deviceId,omitempty"`
	UserID      *string   `gorm:"type:uuid;index" json:"userId,omitempty"`
	Message     string    `gorm:"type:text;not null" json:"message"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "itb_audit_log" }
