// internal/domain/returns/service_test.go
package returns

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"github.com/your-org/inventory-backend/internal/domain/warehouse"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type completerSpy struct {
	calls []uint
}

func (c *completerSpy) MarkOrderReturned(orderID, userID uint) error {
	c.calls = append(c.calls, orderID)
	return nil
}

type testEnv struct {
	returns   *Service
	stock     *warehouse.Service
	warehouse *warehouse.Warehouse
	completer *completerSpy
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
		&ExpectedReturn{}, &Return{},
	))

	cfg := &config.Config{}
	cfg.Inventory.TxMaxRetries = 3
	cfg.Inventory.TransferLockTTL = 10 * time.Second
	cfg.Inventory.LowStockThreshold = 10

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	stock := warehouse.NewService(db, nil, cfg, log)
	rets := NewService(db, stock, cfg, log)
	spy := &completerSpy{}
	rets.SetOrderCompleter(spy)

	wh, err := stock.CreateWarehouse(&warehouse.WarehouseCreateRequest{
		Code: "MAIN",
		Name: "Main Warehouse",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return &testEnv{returns: rets, stock: stock, warehouse: wh, completer: spy}
}

func (env *testEnv) flag(t *testing.T, orderID, productID uint, quantity int) *ExpectedReturn {
	t.Helper()
	expected, err := env.returns.CreateExpected(&ExpectedReturnRequest{
		SalesOrderID: orderID,
		OrderNumber:  fmt.Sprintf("SO-TEST-%05d", orderID),
		CustomerName: "Casey Morgan",
		WarehouseID:  env.warehouse.ID,
		ProductID:    productID,
		Quantity:     quantity,
	})
	require.NoError(t, err)
	return expected
}

func TestCreateExpectedMarksStockLine(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 1, Quantity: 20,
	})
	require.NoError(t, err)

	expected := env.flag(t, 100, 1, 5)
	assert.Contains(t, expected.ReturnNumber, "RET-")
	assert.Equal(t, ExpectedReturnStatusPending, expected.Status)

	summary, err := env.stock.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalExpectedReturns)
}

func TestCreateExpectedRejectsDuplicateOpenFlag(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 1, Quantity: 20,
	})
	require.NoError(t, err)

	env.flag(t, 100, 1, 5)

	_, err = env.returns.CreateExpected(&ExpectedReturnRequest{
		SalesOrderID: 100,
		OrderNumber:  "SO-TEST-00100",
		WarehouseID:  env.warehouse.ID,
		ProductID:    1,
		Quantity:     2,
	})
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))

	// A different order may flag the same product
	_, err = env.returns.CreateExpected(&ExpectedReturnRequest{
		SalesOrderID: 101,
		OrderNumber:  "SO-TEST-00101",
		WarehouseID:  env.warehouse.ID,
		ProductID:    1,
		Quantity:     2,
	})
	assert.NoError(t, err)
}

func TestReceiveClosesReturnOnce(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 1, Quantity: 20,
	})
	require.NoError(t, err)

	expected := env.flag(t, 100, 1, 5)

	receipt, err := env.returns.Receive(expected.ID, 1, &ReceiveRequest{Condition: ConditionDamaged})
	require.NoError(t, err)
	assert.Equal(t, 5, receipt.Quantity)
	assert.Equal(t, ConditionDamaged, receipt.Condition)

	summary, err := env.stock.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 25, summary.TotalQuantity)
	assert.Equal(t, 0, summary.TotalExpectedReturns)
	assert.Equal(t, 5, summary.TotalReturned)

	// Receiving again must not move stock a second time
	_, err = env.returns.Receive(expected.ID, 1, &ReceiveRequest{Condition: ConditionDamaged})
	assert.True(t, errors.Is(err, shared.ErrAlreadyProcessed))

	summary, err = env.stock.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 25, summary.TotalQuantity)
}

func TestReceiveNotifiesCompleterWhenLastReturnArrives(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 1, Quantity: 20,
	})
	require.NoError(t, err)
	_, err = env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 2, Quantity: 20,
	})
	require.NoError(t, err)

	first := env.flag(t, 100, 1, 3)
	second := env.flag(t, 100, 2, 4)

	_, err = env.returns.Receive(first.ID, 1, &ReceiveRequest{Condition: ConditionGood})
	require.NoError(t, err)
	assert.Empty(t, env.completer.calls)

	_, err = env.returns.Receive(second.ID, 1, &ReceiveRequest{Condition: ConditionGood})
	require.NoError(t, err)
	assert.Equal(t, []uint{100}, env.completer.calls)
}

func TestReceiveCreatesMissingStockLine(t *testing.T) {
	env := newTestEnv(t)

	// No stock line exists for the product in this warehouse
	expected := env.flag(t, 100, 7, 2)

	_, err := env.returns.Receive(expected.ID, 1, &ReceiveRequest{Condition: ConditionGood})
	require.NoError(t, err)

	summary, err := env.stock.GetProductStock(7, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalQuantity)
	assert.Equal(t, 2, summary.TotalReturned)
}

func TestCancelExpectedReleasesCounter(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 1, Quantity: 20,
	})
	require.NoError(t, err)

	expected := env.flag(t, 100, 1, 5)

	cancelled, err := env.returns.CancelExpected(expected.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, ExpectedReturnStatusCancelled, cancelled.Status)

	summary, err := env.stock.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalExpectedReturns)

	// A cancelled return can be neither received nor cancelled again
	_, err = env.returns.Receive(expected.ID, 1, &ReceiveRequest{Condition: ConditionGood})
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	_, err = env.returns.CancelExpected(expected.ID, 1)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestGetPendingSummaryAggregatesPerProduct(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 1, Quantity: 50,
	})
	require.NoError(t, err)

	env.flag(t, 100, 1, 5)
	env.flag(t, 101, 1, 3)
	received := env.flag(t, 102, 1, 7)
	_, err = env.returns.Receive(received.ID, 1, &ReceiveRequest{Condition: ConditionGood})
	require.NoError(t, err)

	rows, err := env.returns.GetPendingSummary(env.warehouse.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(1), rows[0].ProductID)
	assert.Equal(t, 8, rows[0].TotalQuantity)
	assert.Equal(t, 2, rows[0].Flags)
}

func TestMarkInTransit(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 1, Quantity: 20,
	})
	require.NoError(t, err)

	expected := env.flag(t, 100, 1, 5)

	moved, err := env.returns.MarkInTransit(expected.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, ExpectedReturnStatusInTransit, moved.Status)

	// Marking again is a no-op.
	moved, err = env.returns.MarkInTransit(expected.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, ExpectedReturnStatusInTransit, moved.Status)

	// An in-transit return is still open: it blocks duplicate flags
	// and can be received or cancelled.
	_, err = env.returns.CreateExpected(&ExpectedReturnRequest{
		SalesOrderID: 100,
		OrderNumber:  "SO-TEST-00100",
		WarehouseID:  env.warehouse.ID,
		ProductID:    1,
		Quantity:     2,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))

	_, err = env.returns.Receive(expected.ID, 1, &ReceiveRequest{Condition: ConditionGood})
	require.NoError(t, err)

	// Received returns cannot go back in transit.
	_, err = env.returns.MarkInTransit(expected.ID, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestReceiveIntoAnotherWarehouse(t *testing.T) {
	env := newTestEnv(t)

	overflow, err := env.stock.CreateWarehouse(&warehouse.WarehouseCreateRequest{
		Code: "OVERFLOW",
		Name: "Overflow Warehouse",
	})
	require.NoError(t, err)

	_, err = env.stock.AddStock(&warehouse.AddStockRequest{
		WarehouseID: env.warehouse.ID, ProductID: 1, Quantity: 20,
	})
	require.NoError(t, err)

	expected := env.flag(t, 100, 1, 5)

	// The goods arrive at a different door than they were flagged for.
	_, err = env.returns.Receive(expected.ID, 1, &ReceiveRequest{
		Condition:   ConditionGood,
		WarehouseID: overflow.ID,
	})
	require.NoError(t, err)

	closed, err := env.returns.GetExpectedReturn(expected.ID)
	require.NoError(t, err)
	assert.Equal(t, ExpectedReturnStatusReceived, closed.Status)
	assert.Equal(t, overflow.ID, closed.WarehouseID)

	// The expectation on the original warehouse is released and the
	// units land in the override warehouse.
	levels, err := env.stock.GetStockLevels(&warehouse.StockListRequest{
		Page: 1, Limit: 10, WarehouseID: env.warehouse.ID, ProductID: 1,
	})
	require.NoError(t, err)
	require.Len(t, levels.StockLines, 1)
	assert.Equal(t, 20, levels.StockLines[0].Quantity)
	assert.Equal(t, 0, levels.StockLines[0].ExpectedReturns)

	levels, err = env.stock.GetStockLevels(&warehouse.StockListRequest{
		Page: 1, Limit: 10, WarehouseID: overflow.ID, ProductID: 1,
	})
	require.NoError(t, err)
	require.Len(t, levels.StockLines, 1)
	assert.Equal(t, 5, levels.StockLines[0].Quantity)
	assert.Equal(t, 5, levels.StockLines[0].ReturnedQuantity)
}
