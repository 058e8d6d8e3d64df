// internal/domain/warehouse/entity.go
package warehouse

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Movement types
const (
	MovementTypeIn          = "in"
	MovementTypeOut         = "out"
	MovementTypeTransferIn  = "transfer_in"
	MovementTypeTransferOut = "transfer_out"
)

// Movement reference types
const (
	ReferenceTypePurchase   = "purchase"
	ReferenceTypeSales      = "sales"
	ReferenceTypeReturn     = "return"
	ReferenceTypeTransfer   = "transfer"
	ReferenceTypeAdjustment = "adjustment"
)

// Warehouse represents a physical stock location
type Warehouse struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Code      string         `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Name      string         `gorm:"not null;size:255" json:"name"`
	Location  string         `gorm:"size:500" json:"location"`
	Capacity  int            `gorm:"default:0" json:"capacity"` // 0 means unbounded
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	IsDefault bool           `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	StockLines []StockLine `gorm:"foreignKey:WarehouseID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"stock_lines,omitempty"`
}

// StockLine holds the counters for one (warehouse, product, variant)
// combination. VariantID is nil for products stocked without variants.
type StockLine struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	WarehouseID      uint           `gorm:"not null;uniqueIndex:idx_stock_line,priority:1" json:"warehouse_id"`
	ProductID        uint           `gorm:"not null;uniqueIndex:idx_stock_line,priority:2;index" json:"product_id"`
	VariantID        *uint          `gorm:"uniqueIndex:idx_stock_line,priority:3" json:"variant_id,omitempty"`
	Quantity         int            `gorm:"not null;default:0" json:"quantity"`
	ReservedQuantity int            `gorm:"not null;default:0" json:"reserved_quantity"`
	DeliveredQuantity int           `gorm:"not null;default:0" json:"delivered_quantity"`
	ExpectedReturns  int            `gorm:"not null;default:0" json:"expected_returns"`
	ReturnedQuantity int            `gorm:"not null;default:0" json:"returned_quantity"`
	Tags             string         `gorm:"size:500" json:"tags"` // Comma-separated tags
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// StockMovement is one append-only audit record per stock mutation.
// Rows are never updated or deleted once written.
type StockMovement struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	WarehouseID      uint      `gorm:"not null;index" json:"warehouse_id"`
	ProductID        uint      `gorm:"not null;index" json:"product_id"`
	VariantID        *uint     `gorm:"index" json:"variant_id,omitempty"`
	MovementType     string    `gorm:"not null;size:20;index" json:"movement_type"` // in, out, transfer_in, transfer_out
	Quantity         int       `gorm:"not null" json:"quantity"`
	PreviousQuantity int       `gorm:"not null" json:"previous_quantity"`
	NewQuantity      int       `gorm:"not null" json:"new_quantity"`
	ReferenceType    string    `gorm:"size:20;index" json:"reference_type"` // purchase, sales, return, transfer, adjustment
	ReferenceID      uint      `gorm:"index" json:"reference_id"`
	TransferID       string    `gorm:"size:36;index" json:"transfer_id,omitempty"` // pairs the two legs of a transfer
	Notes            string    `gorm:"size:500" json:"notes"`
	CreatedBy        uint      `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName overrides
func (Warehouse) TableName() string     { return "warehouses" }
func (StockLine) TableName() string     { return "stock_lines" }
func (StockMovement) TableName() string { return "stock_movements" }

// Business methods for StockLine

// Available returns on-hand stock not held by a reservation
func (l *StockLine) Available() int {
	return l.Quantity - l.ReservedQuantity
}

// IsEmpty reports whether every counter on the line is zero
func (l *StockLine) IsEmpty() bool {
	return l.Quantity == 0 && l.ReservedQuantity == 0 && l.ExpectedReturns == 0
}

// HasTag reports whether the comma-separated tag list contains tag
func (l *StockLine) HasTag(tag string) bool {
	for _, t := range strings.Split(l.Tags, ",") {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// AddTag appends tag to the list unless it is already present
func (l *StockLine) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" || l.HasTag(tag) {
		return
	}
	if l.Tags == "" {
		l.Tags = tag
		return
	}
	l.Tags = l.Tags + "," + tag
}

// Business methods for Warehouse

// HasCapacityFor reports whether adding quantity units keeps the
// warehouse within its configured capacity. currentTotal is the sum
// of quantities across all stock lines of the warehouse.
func (w *Warehouse) HasCapacityFor(currentTotal, quantity int) bool {
	if w.Capacity <= 0 {
		return true
	}
	return currentTotal+quantity <= w.Capacity
}
