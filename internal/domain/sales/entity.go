// internal/domain/sales/entity.go
package sales

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus represents sales order status
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusDispatched     OrderStatus = "dispatched"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusExpectedReturn OrderStatus = "expected_return"
	OrderStatusReturned       OrderStatus = "returned"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// ShipmentStatus represents shipment status
type ShipmentStatus string

const (
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	ShipmentStatusCancelled ShipmentStatus = "cancelled"
)

// SalesOrder represents a customer order fulfilled from one warehouse
type SalesOrder struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	OrderNumber     string         `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	WarehouseID     uint           `gorm:"not null;index" json:"warehouse_id"`
	CustomerName    string         `gorm:"not null;size:255" json:"customer_name"`
	CustomerEmail   string         `gorm:"size:255" json:"customer_email"`
	CustomerPhone   string         `gorm:"size:50" json:"customer_phone"`
	ShippingAddress string         `gorm:"size:500" json:"shipping_address"`
	Status          OrderStatus    `gorm:"not null;default:'pending';index" json:"status"`
	TotalAmount     int64          `gorm:"not null" json:"total_amount"` // In cents
	Notes           string         `gorm:"type:text" json:"notes"`
	CreatedBy       uint           `gorm:"index" json:"created_by"`
	DispatchedAt    *time.Time     `json:"dispatched_at,omitempty"`
	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []SalesOrderItem     `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items,omitempty"`
	Shipments     []Shipment           `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"shipments,omitempty"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// SalesOrderItem represents one ordered product line
type SalesOrderItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    uint      `gorm:"not null;index" json:"order_id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	VariantID  *uint     `gorm:"index" json:"variant_id,omitempty"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	UnitPrice  int64     `gorm:"not null" json:"unit_price"` // In cents
	TotalPrice int64     `gorm:"not null" json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Shipment represents goods leaving the warehouse for an order
type Shipment struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ShipmentNumber string         `gorm:"uniqueIndex;not null;size:50" json:"shipment_number"`
	OrderID        uint           `gorm:"not null;index" json:"order_id"`
	WarehouseID    uint           `gorm:"not null;index" json:"warehouse_id"`
	Status         ShipmentStatus `gorm:"not null;default:'in_transit'" json:"status"`
	Carrier        string         `gorm:"size:100" json:"carrier"`
	TrackingNumber string         `gorm:"size:100" json:"tracking_number"`
	DispatchedAt   time.Time      `json:"dispatched_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// OrderStatusHistory records every status change of a sales order
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   uint        `gorm:"not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"not null" json:"status"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedBy uint        `gorm:"index" json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName overrides
func (SalesOrder) TableName() string         { return "sales_orders" }
func (SalesOrderItem) TableName() string     { return "sales_order_items" }
func (Shipment) TableName() string           { return "shipments" }
func (OrderStatusHistory) TableName() string { return "sales_order_status_history" }

// Business methods for SalesOrder

// CanBeCancelled checks if the order can still be cancelled
func (o *SalesOrder) CanBeCancelled() bool {
	return o.Status == OrderStatusPending ||
		o.Status == OrderStatusConfirmed ||
		o.Status == OrderStatusDispatched
}

// IsTerminal checks if the order reached a final state
func (o *SalesOrder) IsTerminal() bool {
	return o.Status == OrderStatusReturned || o.Status == OrderStatusCancelled
}

// HoldsReservation reports whether warehouse stock is currently held
// for this order
func (o *SalesOrder) HoldsReservation() bool {
	return o.Status == OrderStatusDispatched
}

// AddStatusHistory adds a new status change to history
func (o *SalesOrder) AddStatusHistory(status OrderStatus, comment string, createdBy uint) {
	history := OrderStatusHistory{
		OrderID:   o.ID,
		Status:    status,
		Comment:   comment,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	o.StatusHistory = append(o.StatusHistory, history)
}

// TotalQuantity sums all item quantities
func (o *SalesOrder) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}
