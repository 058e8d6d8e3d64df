// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/your-org/inventory-backend/internal/domain/product"
	"github.com/your-org/inventory-backend/internal/domain/purchase"
	"github.com/your-org/inventory-backend/internal/domain/returns"
	"github.com/your-org/inventory-backend/internal/domain/sales"
	"github.com/your-org/inventory-backend/internal/domain/user"
	"github.com/your-org/inventory-backend/internal/domain/warehouse"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Define all models that need migration in dependency order
	models := []interface{}{
		// User domain - Base tables
		&user.User{},

		// Product domain - Base tables
		&product.Product{},
		&product.ProductVariant{},

		// Warehouse domain - Stock ledger and movement log
		&warehouse.Warehouse{},
		&warehouse.StockLine{},
		&warehouse.StockMovement{},

		// Purchase domain
		&purchase.Supplier{},
		&purchase.Purchase{},
		&purchase.PurchaseItem{},
		&purchase.PaymentReceipt{},

		// Sales domain - Dependent tables
		&sales.SalesOrder{},
		&sales.SalesOrderItem{},
		&sales.Shipment{},
		&sales.OrderStatusHistory{},

		// Returns domain
		&returns.ExpectedReturn{},
		&returns.Return{},
	}

	// Run auto-migration for each model
	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_email_active ON users(email, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at DESC)",

		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku)",
		"CREATE INDEX IF NOT EXISTS idx_products_active ON products(is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_product_variants_product_active ON product_variants(product_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_product_variants_sku ON product_variants(sku)",

		// Stock line indexes
		"CREATE INDEX IF NOT EXISTS idx_stock_lines_warehouse ON stock_lines(warehouse_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_lines_product ON stock_lines(product_id, variant_id)",

		// Movement log indexes
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_warehouse_created ON stock_movements(warehouse_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_reference ON stock_movements(reference_type, reference_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_transfer ON stock_movements(transfer_id)",

		// Purchase indexes
		"CREATE INDEX IF NOT EXISTS idx_purchases_supplier_status ON purchases(supplier_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_purchases_warehouse ON purchases(warehouse_id)",
		"CREATE INDEX IF NOT EXISTS idx_purchases_number ON purchases(purchase_number)",
		"CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase ON purchase_items(purchase_id)",
		"CREATE INDEX IF NOT EXISTS idx_payment_receipts_purchase ON payment_receipts(purchase_id)",

		// Sales order indexes
		"CREATE INDEX IF NOT EXISTS idx_sales_orders_status_created ON sales_orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_sales_orders_warehouse_status ON sales_orders(warehouse_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_sales_orders_number ON sales_orders(order_number)",
		"CREATE INDEX IF NOT EXISTS idx_sales_order_items_order ON sales_order_items(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_sales_order_items_product ON sales_order_items(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_shipments_order ON shipments(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_sales_order_status_history_order ON sales_order_status_history(order_id, created_at DESC)",

		// Expected return indexes
		"CREATE INDEX IF NOT EXISTS idx_expected_returns_order_status ON expected_returns(sales_order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_expected_returns_warehouse_status ON expected_returns(warehouse_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_expected_returns_product ON expected_returns(product_id, variant_id)",
		"CREATE INDEX IF NOT EXISTS idx_returns_expected ON returns(expected_return_id)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := m.seedDefaultWarehouse(); err != nil {
		return fmt.Errorf("failed to seed default warehouse: %w", err)
	}

	if err := m.seedTestProducts(); err != nil {
		return fmt.Errorf("failed to seed test products: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

func (m *Migration) seedAdminUser() error {
	log.Println("👤 Seeding admin user...")

	var existing user.User
	result := m.db.Where("email = ?", "admin@example.com").First(&existing)
	if result.Error != nil {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), 10)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		adminUser := user.User{
			Email:     "admin@example.com",
			Password:  string(hashedPassword),
			FirstName: "Admin",
			LastName:  "User",
			IsActive:  true,
			IsAdmin:   true,
		}

		if err := m.db.Create(&adminUser).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		log.Println("✅ Created admin user: admin@example.com (password: admin123)")
	} else {
		log.Printf("⏭️ Admin user already exists with ID: %d", existing.ID)
	}

	return nil
}

// seedDefaultWarehouse creates the default warehouse
func (m *Migration) seedDefaultWarehouse() error {
	log.Println("🏬 Seeding default warehouse...")

	var existing warehouse.Warehouse
	result := m.db.Where("code = ?", "MAIN").First(&existing)
	if result.Error != nil {
		main := warehouse.Warehouse{
			Code:      "MAIN",
			Name:      "Main Warehouse",
			Location:  "Head office",
			Capacity:  0, // unbounded
			IsActive:  true,
			IsDefault: true,
		}

		if err := m.db.Create(&main).Error; err != nil {
			return fmt.Errorf("failed to create default warehouse: %w", err)
		}

		log.Println("✅ Created default warehouse: MAIN")
	} else {
		log.Println("⏭️ Default warehouse already exists")
	}

	return nil
}

// seedTestProducts creates a handful of products for development
func (m *Migration) seedTestProducts() error {
	log.Println("🛍️ Seeding test products...")

	var productCount int64
	m.db.Model(&product.Product{}).Count(&productCount)

	if productCount >= 3 {
		log.Println("⏭️ Test products already exist")
		return nil
	}

	testProducts := []product.Product{
		{
			SKU:         "DEV-TEST-001",
			Name:        "Steel Shelving Unit",
			Slug:        "steel-shelving-unit",
			Description: "Five-tier boltless steel shelving unit rated for 200kg per shelf.",
			Price:       129900,
			CostPrice:   82000,
			Unit:        "pcs",
			IsActive:    true,
			Tags:        "storage,steel,shelving",
		},
		{
			SKU:         "DEV-TEST-002",
			Name:        "Packing Tape Roll",
			Slug:        "packing-tape-roll",
			Description: "Heavy-duty clear packing tape, 48mm x 66m.",
			Price:       450,
			CostPrice:   210,
			Unit:        "roll",
			IsActive:    true,
			Tags:        "packaging,consumable",
		},
		{
			SKU:         "DEV-TEST-003",
			Name:        "Cardboard Box Medium",
			Slug:        "cardboard-box-medium",
			Description: "Double-walled cardboard box, 40x30x30cm.",
			Price:       180,
			CostPrice:   75,
			Unit:        "pcs",
			IsActive:    true,
			Tags:        "packaging,consumable",
		},
	}

	for _, prod := range testProducts {
		var existing product.Product
		result := m.db.Where("sku = ?", prod.SKU).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&prod).Error; err != nil {
				log.Printf("⚠️ Failed to create test product %s: %v", prod.SKU, err)
			} else {
				log.Printf("✅ Created test product: %s", prod.Name)
			}
		} else {
			log.Printf("⏭️ Product already exists: %s", prod.Name)
		}
	}

	return nil
}

// DropAllTables drops all tables (use with extreme caution)
func (m *Migration) DropAllTables() error {
	log.Println("⚠️ WARNING: Dropping all database tables...")

	// Define tables in reverse dependency order
	tables := []string{
		"returns",
		"expected_returns",
		"sales_order_status_history",
		"shipments",
		"sales_order_items",
		"sales_orders",
		"payment_receipts",
		"purchase_items",
		"purchases",
		"suppliers",
		"stock_movements",
		"stock_lines",
		"warehouses",
		"product_variants",
		"products",
		"users",
	}

	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			log.Printf("⚠️ Failed to drop table %s: %v", table, err)
		} else {
			log.Printf("🗑️ Dropped table: %s", table)
		}
	}

	log.Println("✅ All tables dropped successfully")
	return nil
}

// GetTableInfo returns information about database tables
func (m *Migration) GetTableInfo() error {
	var tables []string

	// Get list of tables
	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	log.Println("================================")

	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		totalRecords += count

		status := "✅"
		if count == 0 {
			status = "📭"
		}

		log.Printf("%s %-25s | %d records", status, table, count)
	}

	log.Println("================================")
	log.Printf("📈 Total records across all tables: %d", totalRecords)
	log.Printf("🗂️ Total tables: %d", len(tables))

	return nil
}

// CleanupTestData removes test data (useful for production setup)
func (m *Migration) CleanupTestData() error {
	log.Println("🧹 Cleaning up test data...")

	result := m.db.Where("sku LIKE ?", "DEV-TEST-%").Delete(&product.Product{})
	log.Printf("🗑️ Removed %d test products", result.RowsAffected)

	log.Println("✅ Test data cleanup completed")
	return nil
}
