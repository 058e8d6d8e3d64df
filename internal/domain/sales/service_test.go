// internal/domain/sales/service_test.go
package sales

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/returns"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"github.com/your-org/inventory-backend/internal/domain/warehouse"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	sales     *Service
	returns   *returns.Service
	stock     *warehouse.Service
	warehouse *warehouse.Warehouse
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&warehouse.Warehouse{}, &warehouse.StockLine{}, &warehouse.StockMovement{},
		&SalesOrder{}, &SalesOrderItem{}, &Shipment{}, &OrderStatusHistory{},
		&returns.ExpectedReturn{}, &returns.Return{},
	))

	cfg := &config.Config{}
	cfg.Inventory.TxMaxRetries = 3
	cfg.Inventory.TransferLockTTL = 10 * time.Second
	cfg.Inventory.LowStockThreshold = 10

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	stock := warehouse.NewService(db, nil, cfg, log)
	rets := returns.NewService(db, stock, cfg, log)
	sales := NewService(db, stock, rets, cfg, log)
	rets.SetOrderCompleter(sales)

	wh, err := stock.CreateWarehouse(&warehouse.WarehouseCreateRequest{
		Code: "MAIN",
		Name: "Main Warehouse",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return &testEnv{sales: sales, returns: rets, stock: stock, warehouse: wh}
}

func (env *testEnv) addStock(t *testing.T, productID uint, quantity int) {
	t.Helper()
	_, err := env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID,
		ProductID:   productID,
		Quantity:    quantity,
	})
	require.NoError(t, err)
}

func (env *testEnv) createOrder(t *testing.T, items []OrderItemRequest) *SalesOrder {
	t.Helper()
	order, err := env.sales.CreateOrder(1, &CreateOrderRequest{
		WarehouseID:  env.warehouse.ID,
		CustomerName: "Jordan Blake",
		Items:        items,
	})
	require.NoError(t, err)
	return order
}

func (env *testEnv) line(t *testing.T, productID uint) *warehouse.StockLine {
	t.Helper()
	summary, err := env.stock.GetProductStock(productID, nil)
	require.NoError(t, err)
	require.Len(t, summary.Lines, 1)
	return &summary.Lines[0]
}

func TestCreateOrderChecksAggregateAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 10)

	// Two lines of 6 each request 12 in total
	_, err := env.sales.CreateOrder(1, &CreateOrderRequest{
		WarehouseID:  env.warehouse.ID,
		CustomerName: "Jordan Blake",
		Items: []OrderItemRequest{
			{ProductID: 1, Quantity: 6, UnitPrice: 100},
			{ProductID: 1, Quantity: 6, UnitPrice: 100},
		},
	})
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))

	order := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 10, UnitPrice: 100}})
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Contains(t, order.OrderNumber, "SO-")

	// Creation holds nothing
	assert.Equal(t, 0, env.line(t, 1).ReservedQuantity)
}

func TestOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 50)

	order := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 10, UnitPrice: 100}})

	_, err := env.sales.Transition(order.ID, OrderStatusConfirmed, 1, nil)
	require.NoError(t, err)

	_, err = env.sales.Transition(order.ID, OrderStatusDispatched, 1, &TransitionRequest{Carrier: "DHL"})
	require.NoError(t, err)

	line := env.line(t, 1)
	assert.Equal(t, 50, line.Quantity)
	assert.Equal(t, 10, line.ReservedQuantity)

	dispatched, err := env.sales.GetOrder(order.ID)
	require.NoError(t, err)
	require.Len(t, dispatched.Shipments, 1)
	assert.Contains(t, dispatched.Shipments[0].ShipmentNumber, "SHP-")
	assert.Equal(t, ShipmentStatusInTransit, dispatched.Shipments[0].Status)

	_, err = env.sales.Transition(order.ID, OrderStatusDelivered, 1, nil)
	require.NoError(t, err)

	line = env.line(t, 1)
	assert.Equal(t, 40, line.Quantity)
	assert.Equal(t, 0, line.ReservedQuantity)
	assert.Equal(t, 10, line.DeliveredQuantity)

	// Flag 5 units for return
	flaggedOrder, flagged, err := env.sales.FlagReturn(order.ID, 1, &FlagReturnRequest{
		Items:  []FlagReturnItem{{ProductID: 1, Quantity: 5}},
		Reason: "wrong size",
	})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusExpectedReturn, flaggedOrder.Status)
	require.Len(t, flagged, 1)
	assert.Equal(t, 5, env.line(t, 1).ExpectedReturns)

	// Receive the return damaged, the order closes as returned
	_, err = env.returns.Receive(flagged[0].ID, 1, &returns.ReceiveRequest{Condition: returns.ConditionDamaged})
	require.NoError(t, err)

	line = env.line(t, 1)
	assert.Equal(t, 45, line.Quantity)
	assert.Equal(t, 0, line.ExpectedReturns)
	assert.Equal(t, 5, line.ReturnedQuantity)
	assert.True(t, line.HasTag("returned"))
	assert.True(t, line.HasTag("damaged"))

	final, err := env.sales.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusReturned, final.Status)

	// Every status change left a history row
	statuses := make([]OrderStatus, 0, len(final.StatusHistory))
	for _, h := range final.StatusHistory {
		statuses = append(statuses, h.Status)
	}
	assert.Equal(t, []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusDispatched,
		OrderStatusDelivered, OrderStatusExpectedReturn, OrderStatusReturned,
	}, statuses)
}

func TestTransitionLegality(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 50)

	order := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 5, UnitPrice: 100}})

	// Skipping states is illegal
	_, err := env.sales.Transition(order.ID, OrderStatusDelivered, 1, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	_, err = env.sales.Transition(order.ID, OrderStatusDispatched, 1, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))

	// Same-state transition is a no-op, not an error
	same, err := env.sales.Transition(order.ID, OrderStatusPending, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, same.Status)

	// Terminal states stay terminal
	_, err = env.sales.Transition(order.ID, OrderStatusCancelled, 1, nil)
	require.NoError(t, err)
	_, err = env.sales.Transition(order.ID, OrderStatusConfirmed, 1, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))

	// Return states cannot be entered through the generic gate
	_, err = env.sales.Transition(order.ID, OrderStatusExpectedReturn, 1, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	_, err = env.sales.Transition(order.ID, OrderStatusReturned, 1, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestDispatchFailureRollsBackAllReservations(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 50)
	env.addStock(t, 2, 50)

	order := env.createOrder(t, []OrderItemRequest{
		{ProductID: 1, Quantity: 10, UnitPrice: 100},
		{ProductID: 2, Quantity: 10, UnitPrice: 100},
	})
	_, err := env.sales.Transition(order.ID, OrderStatusConfirmed, 1, nil)
	require.NoError(t, err)

	// Someone else takes product 2 before dispatch
	require.NoError(t, env.stock.ReserveStock(env.warehouse.ID, 2, nil, 45))

	_, err = env.sales.Transition(order.ID, OrderStatusDispatched, 1, nil)
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))

	// The reservation on product 1 must not survive the failed dispatch
	assert.Equal(t, 0, env.line(t, 1).ReservedQuantity)

	reloaded, err := env.sales.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, reloaded.Status)
	assert.Empty(t, reloaded.Shipments)
}

func TestCancelAfterDispatchReleasesReservations(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 50)

	order := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 10, UnitPrice: 100}})
	_, err := env.sales.Transition(order.ID, OrderStatusConfirmed, 1, nil)
	require.NoError(t, err)
	_, err = env.sales.Transition(order.ID, OrderStatusDispatched, 1, nil)
	require.NoError(t, err)

	_, err = env.sales.Transition(order.ID, OrderStatusCancelled, 1, &TransitionRequest{Comment: "customer withdrew"})
	require.NoError(t, err)

	line := env.line(t, 1)
	assert.Equal(t, 50, line.Quantity)
	assert.Equal(t, 0, line.ReservedQuantity)

	reloaded, err := env.sales.GetOrder(order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Shipments, 1)
	assert.Equal(t, ShipmentStatusCancelled, reloaded.Shipments[0].Status)
}

func deliverOrder(t *testing.T, env *testEnv, order *SalesOrder) {
	t.Helper()
	_, err := env.sales.Transition(order.ID, OrderStatusConfirmed, 1, nil)
	require.NoError(t, err)
	_, err = env.sales.Transition(order.ID, OrderStatusDispatched, 1, nil)
	require.NoError(t, err)
	_, err = env.sales.Transition(order.ID, OrderStatusDelivered, 1, nil)
	require.NoError(t, err)
}

func TestFlagReturnCapsAtDeliveredQuantity(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 50)

	order := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 10, UnitPrice: 100}})
	deliverOrder(t, env, order)

	_, _, err := env.sales.FlagReturn(order.ID, 1, &FlagReturnRequest{
		Items: []FlagReturnItem{{ProductID: 1, Quantity: 12}},
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	// An open flag blocks a second flag for the same line
	_, _, err = env.sales.FlagReturn(order.ID, 1, &FlagReturnRequest{
		Items: []FlagReturnItem{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)
	_, _, err = env.sales.FlagReturn(order.ID, 1, &FlagReturnRequest{
		Items: []FlagReturnItem{{ProductID: 1, Quantity: 2}},
	})
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))
}

func TestFlagReturnBeforeDelivery(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 50)

	order := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 10, UnitPrice: 100}})

	_, _, err := env.sales.FlagReturn(order.ID, 1, &FlagReturnRequest{
		Items: []FlagReturnItem{{ProductID: 1, Quantity: 1}},
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestOrderStaysOpenUntilAllReturnsArrive(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 50)
	env.addStock(t, 2, 50)

	order := env.createOrder(t, []OrderItemRequest{
		{ProductID: 1, Quantity: 5, UnitPrice: 100},
		{ProductID: 2, Quantity: 5, UnitPrice: 100},
	})
	deliverOrder(t, env, order)

	_, flagged, err := env.sales.FlagReturn(order.ID, 1, &FlagReturnRequest{
		Items: []FlagReturnItem{
			{ProductID: 1, Quantity: 5},
			{ProductID: 2, Quantity: 5},
		},
	})
	require.NoError(t, err)
	require.Len(t, flagged, 2)

	_, err = env.returns.Receive(flagged[0].ID, 1, &returns.ReceiveRequest{Condition: returns.ConditionGood})
	require.NoError(t, err)

	mid, err := env.sales.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusExpectedReturn, mid.Status)

	_, err = env.returns.Receive(flagged[1].ID, 1, &returns.ReceiveRequest{Condition: returns.ConditionGood})
	require.NoError(t, err)

	final, err := env.sales.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusReturned, final.Status)
}

func TestDeleteOrderGuard(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 50)

	order := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 5, UnitPrice: 100}})

	err := env.sales.DeleteOrder(order.ID)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = env.sales.Transition(order.ID, OrderStatusCancelled, 1, nil)
	require.NoError(t, err)
	assert.NoError(t, env.sales.DeleteOrder(order.ID))
}

func TestCompetingDispatchesOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, 1, 10)

	// Two orders both want all ten units.
	first := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 10, UnitPrice: 100}})
	second := env.createOrder(t, []OrderItemRequest{{ProductID: 1, Quantity: 10, UnitPrice: 100}})

	_, err := env.sales.Transition(first.ID, OrderStatusConfirmed, 1, nil)
	require.NoError(t, err)
	_, err = env.sales.Transition(second.ID, OrderStatusConfirmed, 1, nil)
	require.NoError(t, err)

	_, err = env.sales.Transition(first.ID, OrderStatusDispatched, 1, nil)
	require.NoError(t, err)

	_, err = env.sales.Transition(second.ID, OrderStatusDispatched, 1, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))

	// The winner keeps its hold, the loser holds nothing.
	line := env.line(t, 1)
	assert.Equal(t, 10, line.ReservedQuantity)
	assert.Equal(t, 0, line.Available())

	reloaded, err := env.sales.GetOrder(second.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, reloaded.Status)
	assert.Empty(t, reloaded.Shipments)
}
