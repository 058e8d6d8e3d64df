// internal/domain/warehouse/service_test.go
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	// A named in-memory database keeps the pool's connections on the
	// same store while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&Warehouse{}, &StockLine{}, &StockMovement{}))

	cfg := &config.Config{}
	cfg.Inventory.TxMaxRetries = 3
	cfg.Inventory.TransferLockTTL = 10 * time.Second
	cfg.Inventory.LowStockThreshold = 10

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return NewService(db, nil, cfg, log)
}

func createTestWarehouse(t *testing.T, s *Service, code string, capacity int) *Warehouse {
	t.Helper()
	wh, err := s.CreateWarehouse(&WarehouseCreateRequest{
		Code:     code,
		Name:     "Warehouse " + code,
		Capacity: capacity,
	})
	require.NoError(t, err)
	return wh
}

func TestCreateWarehouseDuplicateCode(t *testing.T) {
	s := newTestService(t)
	createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.CreateWarehouse(&WarehouseCreateRequest{Code: "MAIN", Name: "Duplicate"})
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))
}

func TestAddStockCreatesLineAndMovement(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	line, err := s.AddStock(&AddStockRequest{
		WarehouseID:   wh.ID,
		ProductID:     1,
		Quantity:      50,
		ReferenceType: ReferenceTypePurchase,
		ReferenceID:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, line.Quantity)
	assert.Equal(t, 50, line.Available())

	movements, err := s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, WarehouseID: wh.ID})
	require.NoError(t, err)
	require.Len(t, movements.Movements, 1)
	m := movements.Movements[0]
	assert.Equal(t, MovementTypeIn, m.MovementType)
	assert.Equal(t, 0, m.PreviousQuantity)
	assert.Equal(t, 50, m.NewQuantity)
	assert.Equal(t, ReferenceTypePurchase, m.ReferenceType)
	assert.Equal(t, uint(7), m.ReferenceID)
}

func TestAddStockCapacityExceeded(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "SMALL", 100)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 80})
	require.NoError(t, err)

	_, err = s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 2, Quantity: 30})
	assert.True(t, errors.Is(err, shared.ErrCapacityExceeded))

	// The failed add must not leave a partial line behind
	summary, err := s.GetProductStock(2, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalQuantity)
}

func TestReserveStockInsufficient(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)

	require.NoError(t, s.ReserveStock(wh.ID, 1, nil, 30))

	// Only 20 units remain unreserved
	err = s.ReserveStock(wh.ID, 1, nil, 30)
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))

	line, err := s.findLine(s.db, wh.ID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, line.Quantity)
	assert.Equal(t, 30, line.ReservedQuantity)
}

func TestReleaseReservationExceedsReserved(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)
	require.NoError(t, s.ReserveStock(wh.ID, 1, nil, 10))

	err = s.ReleaseReservation(wh.ID, 1, nil, 20)
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
	assert.Contains(t, err.Error(), "short 10")
}

func TestDeliveryLifecycle(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)
	require.NoError(t, s.ReserveStock(wh.ID, 1, nil, 10))

	require.NoError(t, s.CommitDelivery(&DeliveryRequest{
		WarehouseID: wh.ID,
		ProductID:   1,
		Quantity:    10,
		ReferenceID: 42,
	}))

	line, err := s.findLine(s.db, wh.ID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 40, line.Quantity)
	assert.Equal(t, 0, line.ReservedQuantity)
	assert.Equal(t, 10, line.DeliveredQuantity)

	movements, err := s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, MovementType: MovementTypeOut})
	require.NoError(t, err)
	require.Len(t, movements.Movements, 1)
	assert.Equal(t, ReferenceTypeSales, movements.Movements[0].ReferenceType)
	assert.Equal(t, 50, movements.Movements[0].PreviousQuantity)
	assert.Equal(t, 40, movements.Movements[0].NewQuantity)
}

func TestCommitDeliveryWithoutReservation(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)

	err = s.CommitDelivery(&DeliveryRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 10})
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
	assert.Contains(t, err.Error(), "short 10")
}

func TestReceiveReturnUpdatesCountersAndTags(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)
	require.NoError(t, s.ReserveStock(wh.ID, 1, nil, 10))
	require.NoError(t, s.CommitDelivery(&DeliveryRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 10}))
	require.NoError(t, s.MarkExpectedReturn(wh.ID, 1, nil, 5))

	line, err := s.ReceiveReturn(&ReturnReceiptRequest{
		WarehouseID: wh.ID,
		ProductID:   1,
		Quantity:    5,
		Condition:   "damaged",
	})
	require.NoError(t, err)

	assert.Equal(t, 45, line.Quantity)
	assert.Equal(t, 0, line.ExpectedReturns)
	assert.Equal(t, 5, line.ReturnedQuantity)
	assert.True(t, line.HasTag("returned"))
	assert.True(t, line.HasTag("damaged"))

	movements, err := s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, ReferenceType: ReferenceTypeReturn})
	require.NoError(t, err)
	require.Len(t, movements.Movements, 1)
	assert.Equal(t, MovementTypeIn, movements.Movements[0].MovementType)
}

func TestReceiveReturnCreatesMissingLine(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	line, err := s.ReceiveReturn(&ReturnReceiptRequest{
		WarehouseID: wh.ID,
		ProductID:   9,
		Quantity:    3,
		Condition:   "good",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, 3, line.ReturnedQuantity)
	assert.Equal(t, 0, line.ExpectedReturns)
	assert.True(t, line.HasTag("returned"))
	assert.False(t, line.HasTag("good"))
}

func TestCancelExpectedReturnClampsAtZero(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 10})
	require.NoError(t, err)
	require.NoError(t, s.MarkExpectedReturn(wh.ID, 1, nil, 2))
	require.NoError(t, s.CancelExpectedReturn(wh.ID, 1, nil, 5))

	line, err := s.findLine(s.db, wh.ID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, line.ExpectedReturns)
}

func TestTransferMovesStockAndPairsMovements(t *testing.T) {
	s := newTestService(t)
	source := createTestWarehouse(t, s, "SRC", 0)
	dest := createTestWarehouse(t, s, "DST", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: source.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)

	result, err := s.Transfer(context.Background(), &TransferRequest{
		SourceWarehouseID: source.ID,
		DestWarehouseID:   dest.ID,
		ProductID:         1,
		Quantity:          20,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.TransferID)
	assert.Equal(t, 30, result.SourceRemaining)
	assert.Equal(t, 20, result.DestQuantity)

	movements, err := s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, TransferID: result.TransferID})
	require.NoError(t, err)
	require.Len(t, movements.Movements, 2)

	types := []string{movements.Movements[0].MovementType, movements.Movements[1].MovementType}
	assert.Contains(t, types, MovementTypeTransferOut)
	assert.Contains(t, types, MovementTypeTransferIn)
}

func TestTransferCapacityFailureLeavesSourceUntouched(t *testing.T) {
	s := newTestService(t)
	source := createTestWarehouse(t, s, "SRC", 0)
	dest := createTestWarehouse(t, s, "DST", 10)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: source.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)
	_, err = s.AddStock(&AddStockRequest{WarehouseID: dest.ID, ProductID: 2, Quantity: 8})
	require.NoError(t, err)

	_, err = s.Transfer(context.Background(), &TransferRequest{
		SourceWarehouseID: source.ID,
		DestWarehouseID:   dest.ID,
		ProductID:         1,
		Quantity:          5,
	})
	assert.True(t, errors.Is(err, shared.ErrCapacityExceeded))

	line, err := s.findLine(s.db, source.ID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, line.Quantity)

	movements, err := s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, ReferenceType: ReferenceTypeTransfer})
	require.NoError(t, err)
	assert.Empty(t, movements.Movements)
}

func TestTransferDoesNotMoveReservedStock(t *testing.T) {
	s := newTestService(t)
	source := createTestWarehouse(t, s, "SRC", 0)
	dest := createTestWarehouse(t, s, "DST", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: source.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)
	require.NoError(t, s.ReserveStock(source.ID, 1, nil, 45))

	_, err = s.Transfer(context.Background(), &TransferRequest{
		SourceWarehouseID: source.ID,
		DestWarehouseID:   dest.ID,
		ProductID:         1,
		Quantity:          10,
	})
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
}

func TestTransferPrunesEmptySourceLine(t *testing.T) {
	s := newTestService(t)
	source := createTestWarehouse(t, s, "SRC", 0)
	dest := createTestWarehouse(t, s, "DST", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: source.ID, ProductID: 1, Quantity: 20})
	require.NoError(t, err)

	_, err = s.Transfer(context.Background(), &TransferRequest{
		SourceWarehouseID: source.ID,
		DestWarehouseID:   dest.ID,
		ProductID:         1,
		Quantity:          20,
	})
	require.NoError(t, err)

	_, err = s.findLine(s.db, source.ID, 1, nil)
	assert.Equal(t, gorm.ErrRecordNotFound, err)
}

func TestTransferToSameWarehouse(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.Transfer(context.Background(), &TransferRequest{
		SourceWarehouseID: wh.ID,
		DestWarehouseID:   wh.ID,
		ProductID:         1,
		Quantity:          5,
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestVariantLinesAreIndependent(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	variantID := uint(11)
	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, VariantID: &variantID, Quantity: 7})
	require.NoError(t, err)

	base, err := s.findLine(s.db, wh.ID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, base.Quantity)

	variant, err := s.findLine(s.db, wh.ID, 1, &variantID)
	require.NoError(t, err)
	assert.Equal(t, 7, variant.Quantity)

	summary, err := s.GetProductStock(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalQuantity)
}

func TestDeleteWarehouseHoldingStock(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 5})
	require.NoError(t, err)

	err = s.DeleteWarehouse(wh.ID)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	// Empty the warehouse, then deletion succeeds
	_, err = s.RemoveStock(&RemoveStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 5})
	require.NoError(t, err)
	assert.NoError(t, s.DeleteWarehouse(wh.ID))
}

func TestUpdateWarehouseCapacityBelowHeldStock(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 50})
	require.NoError(t, err)

	capacity := 30
	_, err = s.UpdateWarehouse(wh.ID, &WarehouseUpdateRequest{Capacity: &capacity})
	assert.True(t, errors.Is(err, shared.ErrCapacityExceeded))
}

func TestGetStockLevelsLowOnly(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 5})
	require.NoError(t, err)
	_, err = s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 2, Quantity: 500})
	require.NoError(t, err)

	resp, err := s.GetStockLevels(&StockListRequest{Page: 1, Limit: 20, LowOnly: true})
	require.NoError(t, err)
	require.Len(t, resp.StockLines, 1)
	assert.Equal(t, uint(1), resp.StockLines[0].ProductID)
}

func TestAddStockMergesTags(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	line, err := s.AddStock(&AddStockRequest{
		WarehouseID: wh.ID, ProductID: 1, Quantity: 10,
		Tags: []string{"fragile"},
	})
	require.NoError(t, err)
	assert.True(t, line.HasTag("fragile"))

	line, err = s.AddStock(&AddStockRequest{
		WarehouseID: wh.ID, ProductID: 1, Quantity: 5,
		Tags: []string{"fragile", "oversize"},
	})
	require.NoError(t, err)
	assert.Equal(t, 15, line.Quantity)
	assert.True(t, line.HasTag("fragile"))
	assert.True(t, line.HasTag("oversize"))
	assert.Equal(t, "fragile,oversize", line.Tags)
}

func TestGetMovementsDateRange(t *testing.T) {
	s := newTestService(t)
	wh := createTestWarehouse(t, s, "MAIN", 0)

	_, err := s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = s.AddStock(&AddStockRequest{WarehouseID: wh.ID, ProductID: 1, Quantity: 5})
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	resp, err := s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, DateFrom: today, DateTo: today})
	require.NoError(t, err)
	assert.Len(t, resp.Movements, 2)

	resp, err = s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, DateFrom: tomorrow})
	require.NoError(t, err)
	assert.Empty(t, resp.Movements)

	resp, err = s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, DateTo: today})
	require.NoError(t, err)
	assert.Len(t, resp.Movements, 2)

	_, err = s.GetMovements(&MovementListRequest{Page: 1, Limit: 10, DateFrom: "yesterday"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}
