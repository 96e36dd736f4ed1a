// models/borrowing.go
package models

import "time"

const BorrowingTable = "itb_borrowings"

type BorrowingStatus string

const (
	BorrowingPending  BorrowingStatus = "Pending"
	BorrowingActive   BorrowingStatus = "Active"
	BorrowingReturned BorrowingStatus = "Returned"
	BorrowingOverdue  BorrowingStatus = "Overdue"
)

// OpenBorrowingStatuses 未结束的借用：设备必须处于 Borrowed
var OpenBorrowingStatuses = []BorrowingStatus{BorrowingPending, BorrowingActive, BorrowingOverdue}

func (s BorrowingStatus) Valid() bool {
	switch s {
	case BorrowingPending, BorrowingActive, BorrowingReturned, BorrowingOverdue:
		return true
	}
	return false
}

// Open reports whether the borrowing still holds its device.
func (s BorrowingStatus) Open() bool {
	return s == BorrowingPending || s == BorrowingActive || s == BorrowingOverdue
}

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "Pending"
	PaymentPaid        PaymentStatus = "Paid"
	PaymentNotRequired PaymentStatus = "Not Required"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentPaid || s == PaymentNotRequired
}

// ReturnConditionDamaged is the conditionAfter value that marks a device damaged.
const ReturnConditionDamaged = "Damaged"

type Borrowing struct {
	ID               string          `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID         string          `gorm:"type:uuid;index;not null" json:"deviceId"`
	UserID           string          `gorm:"type:uuid;index;not null" json:"userId"`
	BorrowDate       time.Time       `gorm:"index;not null" json:"borrowDate"`
	ReturnDate       time.Time       `gorm:"index;not null" json:"returnDate"`
	ActualReturnDate *time.Time      `gorm:"index" json:"actualReturnDate"`
	Status           BorrowingStatus `gorm:"size:20;index;not null;default:'Pending'" json:"status"`
	ConditionBefore  string          `gorm:"type:text" json:"conditionBefore"`
	ConditionAfter   string          `gorm:"type:text" json:"conditionAfter"`
	Fine             float64         `gorm:"type:numeric(10,2);not null;default:0" json:"fine"`
	Notes            string          `gorm:"type:text" json:"notes"`
	PaymentStatus    PaymentStatus   `gorm:"size:20;index;not null;default:'Not Required'" json:"paymentStatus"`
	PaymentDate      *time.Time      `gorm:"index" json:"paymentDate"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`

	// 只读关联（预加载摘要），写入时一律 Omit
	Device *Device `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Borrowing) TableName() string { return BorrowingTable }

func (b *Borrowing) Damaged() bool { return b.ConditionAfter == ReturnConditionDamaged }
