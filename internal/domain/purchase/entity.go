// internal/domain/purchase/entity.go
package purchase

import (
	"time"

	"gorm.io/gorm"
)

// PurchaseStatus represents purchase order status
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusConfirmed PurchaseStatus = "confirmed"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
)

// PaymentStatus represents supplier payment status
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// Supplier represents a goods supplier
type Supplier struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Code      string         `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Name      string         `gorm:"not null;size:255" json:"name"`
	Email     string         `gorm:"size:255" json:"email"`
	Phone     string         `gorm:"size:50" json:"phone"`
	Address   string         `gorm:"size:500" json:"address"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Purchase represents a purchase order against a supplier. Confirming
// it allocates the purchased quantities into the target warehouse.
type Purchase struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	PurchaseNumber string         `gorm:"uniqueIndex;not null;size:50" json:"purchase_number"`
	SupplierID     uint           `gorm:"not null;index" json:"supplier_id"`
	WarehouseID    uint           `gorm:"not null;index" json:"warehouse_id"`
	Status         PurchaseStatus `gorm:"not null;default:'pending'" json:"status"`
	PaymentStatus  PaymentStatus  `gorm:"not null;default:'unpaid'" json:"payment_status"`
	TotalAmount    int64          `gorm:"not null" json:"total_amount"` // In cents
	Notes          string         `gorm:"type:text" json:"notes"`
	CreatedBy      uint           `gorm:"index" json:"created_by"`
	ConfirmedAt    *time.Time     `json:"confirmed_at,omitempty"`
	PaidAt         *time.Time     `json:"paid_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Supplier Supplier         `gorm:"foreignKey:SupplierID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"supplier"`
	Items    []PurchaseItem   `gorm:"foreignKey:PurchaseID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items,omitempty"`
	Receipts []PaymentReceipt `gorm:"foreignKey:PurchaseID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"receipts,omitempty"`
}

// PurchaseItem represents one purchased product line
type PurchaseItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PurchaseID uint      `gorm:"not null;index" json:"purchase_id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	VariantID  *uint     `gorm:"index" json:"variant_id,omitempty"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	UnitCost   int64     `gorm:"not null" json:"unit_cost"` // In cents
	TotalCost  int64     `gorm:"not null" json:"total_cost"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PaymentReceipt represents proof of supplier payment
type PaymentReceipt struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ReceiptNumber string    `gorm:"uniqueIndex;not null;size:50" json:"receipt_number"`
	PurchaseID    uint      `gorm:"not null;index" json:"purchase_id"`
	Amount        int64     `gorm:"not null" json:"amount"` // In cents
	Method        string    `gorm:"size:50" json:"method"`
	Notes         string    `gorm:"size:500" json:"notes"`
	CreatedBy     uint      `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName overrides
func (Supplier) TableName() string       { return "suppliers" }
func (Purchase) TableName() string       { return "purchases" }
func (PurchaseItem) TableName() string   { return "purchase_items" }
func (PaymentReceipt) TableName() string { return "payment_receipts" }

// Business methods for Purchase

// CanBeConfirmed checks if the purchase can still be confirmed
func (p *Purchase) CanBeConfirmed() bool {
	return p.Status == PurchaseStatusPending
}

// CanBeCancelled checks if the purchase can still be cancelled
func (p *Purchase) CanBeCancelled() bool {
	return p.Status == PurchaseStatusPending
}

// IsPaid checks if the supplier has been paid
func (p *Purchase) IsPaid() bool {
	return p.PaymentStatus == PaymentStatusPaid
}

// TotalQuantity sums all item quantities
func (p *Purchase) TotalQuantity() int {
	total := 0
	for _, item := range p.Items {
		total += item.Quantity
	}
	return total
}
