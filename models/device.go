// models/device.go
package models

import "time"

const DeviceTable = "itb_devices"

type DeviceStatus string

const (
	DeviceAvailable DeviceStatus = "Available"
	DeviceBorrowed  DeviceStatus = "Borrowed"
	DeviceDamaged   DeviceStatus = "Damaged"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceAvailable, DeviceBorrowed, DeviceDamaged:
		return true
	}
	return false
}

// DeviceCondition 借出前/归还后的描述
type DeviceCondition string

const (
	ConditionBefore DeviceCondition = "Before"
	ConditionAfter  DeviceCondition = "After"
)

func (c DeviceCondition) Valid() bool { return c == ConditionBefore || c == ConditionAfter }

type Device struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string          `gorm:"size:200;not null" json:"name"`
	SerialNumber string          `gorm:"size:120;uniqueIndex;not null" json:"serialNumber"`
	Category     string          `gorm:"size:120;index;not null" json:"category"`
	Status       DeviceStatus    `gorm:"size:20;index;not null;default:'Available'" json:"status"`
	Condition    DeviceCondition `gorm:"size:20;not null;default:'Before'" json:"condition"`
	PurchaseDate time.Time       `json:"purchaseDate"`
	Location     string          `gorm:"size:255" json:"location"`
	Lat          *float64        `json:"lat"`
	Lng          *float64        `json:"lng"`
	Description  string          `gorm:"type:text" json:"description"`
	Image        string          `gorm:"type:text" json:"image"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (Device) TableName() string { return DeviceTable }

func (d *Device) DisplayName() string {
	if d == nil || d.Name == "" {
		return "Unknown Device"
	}
	return d.Name
}
