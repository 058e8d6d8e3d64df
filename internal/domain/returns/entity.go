// internal/domain/returns/entity.go
package returns

import (
	"time"

	"gorm.io/gorm"
)

// ExpectedReturnStatus represents the state of an expected return
type ExpectedReturnStatus string

const (
	ExpectedReturnStatusPending   ExpectedReturnStatus = "pending"
	ExpectedReturnStatusInTransit ExpectedReturnStatus = "in_transit"
	ExpectedReturnStatusReceived  ExpectedReturnStatus = "received"
	ExpectedReturnStatusCancelled ExpectedReturnStatus = "cancelled"
)

// Return conditions
const (
	ConditionGood      = "good"
	ConditionDamaged   = "damaged"
	ConditionDefective = "defective"
)

// ExpectedReturn represents goods flagged to come back from a
// customer. Order identity is denormalized so return handling never
// needs to join back into the sales tables.
type ExpectedReturn struct {
	ID            uint                 `gorm:"primaryKey" json:"id"`
	ReturnNumber  string               `gorm:"uniqueIndex;not null;size:50" json:"return_number"`
	SalesOrderID  uint                 `gorm:"not null;index" json:"sales_order_id"`
	OrderNumber   string               `gorm:"not null;size:50;index" json:"order_number"`
	CustomerName  string               `gorm:"size:255" json:"customer_name"`
	WarehouseID   uint                 `gorm:"not null;index" json:"warehouse_id"`
	ProductID     uint                 `gorm:"not null;index" json:"product_id"`
	VariantID     *uint                `gorm:"index" json:"variant_id,omitempty"`
	Quantity      int                  `gorm:"not null" json:"quantity"`
	Reason        string               `gorm:"size:500" json:"reason"`
	Status        ExpectedReturnStatus `gorm:"not null;default:'pending';index" json:"status"`
	FlaggedBy     uint                 `json:"flagged_by"`
	ReceivedAt    *time.Time           `json:"received_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	DeletedAt     gorm.DeletedAt       `gorm:"index" json:"-"`

	// Relationships
	Receipts []Return `gorm:"foreignKey:ExpectedReturnID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"receipts,omitempty"`
}

// Return represents a received return, the physical arrival that
// closes an ExpectedReturn
type Return struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExpectedReturnID uint      `gorm:"not null;index" json:"expected_return_id"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	Condition        string    `gorm:"not null;size:50" json:"condition"` // good, damaged, defective
	Notes            string    `gorm:"size:500" json:"notes"`
	ReceivedBy       uint      `json:"received_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName overrides
func (ExpectedReturn) TableName() string { return "expected_returns" }
func (Return) TableName() string         { return "returns" }

// IsOpen reports whether the return is still awaited
func (e *ExpectedReturn) IsOpen() bool {
	return e.Status == ExpectedReturnStatusPending || e.Status == ExpectedReturnStatusInTransit
}
