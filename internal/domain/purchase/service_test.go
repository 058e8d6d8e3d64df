// internal/domain/purchase/service_test.go
package purchase

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

type testEnv struct {
	purchases *Service
	stock     *warehouse.Service
	warehouse *warehouse.Warehouse
	supplier  *Supplier
}

func newTestEnv(t *testing.T, capacity int) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&warehouse.Warehouse{}, &warehouse.StockLine{}, &warehouse.StockMovement{},
		&Supplier{}, &Purchase{}, &PurchaseItem{}, &PaymentReceipt{},
	))

	cfg := &config.Config{}
	cfg.Inventory.TxMaxRetries = 3
	cfg.Inventory.TransferLockTTL = 10 * time.Second
	cfg.Inventory.LowStockThreshold = 10

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	stock := warehouse.NewService(db, nil, cfg, log)
	purchases := NewService(db, stock, cfg, log)

	wh, err := stock.CreateWarehouse(&warehouse.WarehouseCreateRequest{
		Code:     "MAIN",
		Name:     "Main Warehouse",
		Capacity: capacity,
	})
	require.NoError(t, err)

	supplier, err := purchases.CreateSupplier(&SupplierCreateRequest{
		Code: "ACME",
		Name: "Acme Trading",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return &testEnv{
		purchases: purchases,
		stock:     stock,
		warehouse: wh,
		supplier:  supplier,
	}
}

func createTestPurchase(t *testing.T, env *testEnv, items []PurchaseItemRequest) *Purchase {
	t.Helper()
	p, err := env.purchases.CreatePurchase(1, &PurchaseCreateRequest{
		SupplierID:  env.supplier.ID,
		WarehouseID: env.warehouse.ID,
		Items:       items,
	})
	require.NoError(t, err)
	return p
}

func TestCreatePurchasePendingWithTotals(t *testing.T) {
	env := newTestEnv(t, 0)

	p := createTestPurchase(t, env, []PurchaseItemRequest{
		{ProductID: 1, Quantity: 10, UnitCost: 250},
		{ProductID: 2, Quantity: 4, UnitCost: 1000},
	})

	assert.Equal(t, PurchaseStatusPending, p.Status)
	assert.Equal(t, PaymentStatusUnpaid, p.PaymentStatus)
	assert.Equal(t, int64(10*250+4*1000), p.TotalAmount)
	assert.Contains(t, p.PurchaseNumber, "PUR-")
	assert.Len(t, p.Items, 2)

	// No stock moves before confirmation
	summary, err := env.stock.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalQuantity)
}

func TestCreatePurchaseRejectsEmptyAndNonPositive(t *testing.T) {
	env := newTestEnv(t, 0)

	_, err := env.purchases.CreatePurchase(1, &PurchaseCreateRequest{
		SupplierID:  env.supplier.ID,
		WarehouseID: env.warehouse.ID,
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = env.purchases.CreatePurchase(1, &PurchaseCreateRequest{
		SupplierID:  env.supplier.ID,
		WarehouseID: env.warehouse.ID,
		Items:       []PurchaseItemRequest{{ProductID: 1, Quantity: 0, UnitCost: 100}},
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestConfirmPurchaseAllocatesStock(t *testing.T) {
	env := newTestEnv(t, 0)

	p := createTestPurchase(t, env, []PurchaseItemRequest{
		{ProductID: 1, Quantity: 10, UnitCost: 250},
		{ProductID: 2, Quantity: 4, UnitCost: 1000},
	})

	confirmed, err := env.purchases.ConfirmPurchase(p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, PurchaseStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	summary, err := env.stock.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalQuantity)

	movements, err := env.stock.GetMovements(&warehouse.MovementListRequest{
		Page: 1, Limit: 10, ReferenceType: warehouse.ReferenceTypePurchase,
	})
	require.NoError(t, err)
	assert.Len(t, movements.Movements, 2)
	assert.Equal(t, p.ID, movements.Movements[0].ReferenceID)
}

func TestConfirmPurchaseSecondCallAlreadyProcessed(t *testing.T) {
	env := newTestEnv(t, 0)

	p := createTestPurchase(t, env, []PurchaseItemRequest{
		{ProductID: 1, Quantity: 10, UnitCost: 250},
	})

	_, err := env.purchases.ConfirmPurchase(p.ID, 1)
	require.NoError(t, err)

	_, err = env.purchases.ConfirmPurchase(p.ID, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAlreadyProcessed))

	// The second confirm must not allocate again
	summary, err := env.stock.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalQuantity)
}

func TestConfirmPurchaseAllOrNothing(t *testing.T) {
	env := newTestEnv(t, 10)

	p := createTestPurchase(t, env, []PurchaseItemRequest{
		{ProductID: 1, Quantity: 8, UnitCost: 100},
		{ProductID: 2, Quantity: 5, UnitCost: 100},
	})

	_, err := env.purchases.ConfirmPurchase(p.ID, 1)
	assert.True(t, errors.Is(err, shared.ErrCapacityExceeded))

	// The first item must not have been allocated either
	summary, err := env.stock.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalQuantity)

	reloaded, err := env.purchases.GetPurchase(p.ID)
	require.NoError(t, err)
	assert.Equal(t, PurchaseStatusPending, reloaded.Status)
}

func TestConfirmCancelledPurchase(t *testing.T) {
	env := newTestEnv(t, 0)

	p := createTestPurchase(t, env, []PurchaseItemRequest{
		{ProductID: 1, Quantity: 3, UnitCost: 100},
	})

	_, err := env.purchases.CancelPurchase(p.ID, 1)
	require.NoError(t, err)

	_, err = env.purchases.ConfirmPurchase(p.ID, 1)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestCancelConfirmedPurchase(t *testing.T) {
	env := newTestEnv(t, 0)

	p := createTestPurchase(t, env, []PurchaseItemRequest{
		{ProductID: 1, Quantity: 3, UnitCost: 100},
	})

	_, err := env.purchases.ConfirmPurchase(p.ID, 1)
	require.NoError(t, err)

	_, err = env.purchases.CancelPurchase(p.ID, 1)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestMarkPaidIssuesSingleReceipt(t *testing.T) {
	env := newTestEnv(t, 0)

	p := createTestPurchase(t, env, []PurchaseItemRequest{
		{ProductID: 1, Quantity: 3, UnitCost: 100},
	})

	first, err := env.purchases.MarkPaid(p.ID, 1, &MarkPaidRequest{Method: "bank_transfer"})
	require.NoError(t, err)
	assert.Contains(t, first.ReceiptNumber, "RCT-")
	assert.Equal(t, p.TotalAmount, first.Amount)

	second, err := env.purchases.MarkPaid(p.ID, 1, &MarkPaidRequest{Method: "bank_transfer"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	reloaded, err := env.purchases.GetPurchase(p.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsPaid())
	assert.Len(t, reloaded.Receipts, 1)
}
