// internal/interfaces/http/routes/routes.go
package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/product"
	"github.com/your-org/inventory-backend/internal/domain/purchase"
	"github.com/your-org/inventory-backend/internal/domain/returns"
	"github.com/your-org/inventory-backend/internal/domain/sales"
	"github.com/your-org/inventory-backend/internal/domain/user"
	"github.com/your-org/inventory-backend/internal/domain/warehouse"
	"github.com/your-org/inventory-backend/internal/interfaces/http/handlers"
	"github.com/your-org/inventory-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// SetupRoutes wires all services and registers every route group
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config) {
	logger := newLogger(cfg)

	// Service layer. The stock service is shared by purchases, sales
	// and returns so every stock mutation goes through one place.
	userService := user.NewService(db, cfg)
	productService := product.NewService(db, cfg)
	stockService := warehouse.NewService(db, redisClient, cfg, logger)
	purchaseService := purchase.NewService(db, stockService, cfg, logger)
	returnsService := returns.NewService(db, stockService, cfg, logger)
	salesService := sales.NewService(db, stockService, returnsService, cfg, logger)
	returnsService.SetOrderCompleter(salesService)

	authHandler := handlers.NewAuthHandler(userService, cfg)
	productHandler := handlers.NewProductHandler(productService, cfg)
	warehouseHandler := handlers.NewWarehouseHandler(stockService, cfg)
	purchaseHandler := handlers.NewPurchaseHandler(purchaseService, cfg)
	salesHandler := handlers.NewSalesHandler(salesService, cfg)
	returnsHandler := handlers.NewReturnsHandler(returnsService, cfg)

	setupAuthRoutes(rg, authHandler, cfg)
	setupProductRoutes(rg, productHandler, cfg)
	setupWarehouseRoutes(rg, warehouseHandler, cfg)
	setupPurchaseRoutes(rg, purchaseHandler, cfg)
	setupSalesRoutes(rg, salesHandler, cfg)
	setupReturnsRoutes(rg, returnsHandler, cfg)
	setupAdminRoutes(rg, productHandler, warehouseHandler, salesHandler, purchaseHandler, cfg)
}

// newLogger builds the application logger from config
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// setupAuthRoutes sets up authentication related routes
func setupAuthRoutes(rg *gin.RouterGroup, authHandler *handlers.AuthHandler, cfg *config.Config) {
	auth := rg.Group("/auth")
	{
		// Public auth endpoints
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)

		// Protected auth endpoints
		protected := auth.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.POST("/logout", authHandler.Logout)
			protected.GET("/profile", authHandler.GetProfile)
			protected.PUT("/profile", authHandler.UpdateProfile)
			protected.PUT("/password", authHandler.ChangePassword)
			protected.GET("/validate", authHandler.ValidateToken)
		}
	}
}

// setupProductRoutes sets up product catalog routes
func setupProductRoutes(rg *gin.RouterGroup, productHandler *handlers.ProductHandler, cfg *config.Config) {
	products := rg.Group("/products")
	products.Use(middleware.AuthMiddleware(cfg))
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/:id", productHandler.GetProduct)
		products.GET("/sku/:sku", productHandler.GetProductBySKU)
	}
}

// setupWarehouseRoutes sets up warehouse and stock routes
func setupWarehouseRoutes(rg *gin.RouterGroup, warehouseHandler *handlers.WarehouseHandler, cfg *config.Config) {
	warehouses := rg.Group("/warehouses")
	warehouses.Use(middleware.AuthMiddleware(cfg))
	{
		warehouses.GET("", warehouseHandler.GetWarehouses)
		warehouses.GET("/:id", warehouseHandler.GetWarehouse)
	}

	stock := rg.Group("/stock")
	stock.Use(middleware.AuthMiddleware(cfg))
	{
		stock.GET("", warehouseHandler.GetStockLevels)
		stock.GET("/products/:productId", warehouseHandler.GetProductStock)
		stock.GET("/movements", warehouseHandler.GetMovements)
	}
}

// setupPurchaseRoutes sets up supplier and purchase order routes
func setupPurchaseRoutes(rg *gin.RouterGroup, purchaseHandler *handlers.PurchaseHandler, cfg *config.Config) {
	suppliers := rg.Group("/suppliers")
	suppliers.Use(middleware.AuthMiddleware(cfg))
	{
		suppliers.GET("", purchaseHandler.GetSuppliers)
		suppliers.GET("/:id", purchaseHandler.GetSupplier)
	}

	purchases := rg.Group("/purchases")
	purchases.Use(middleware.AuthMiddleware(cfg))
	{
		purchases.GET("", purchaseHandler.GetPurchases)
		purchases.POST("", purchaseHandler.CreatePurchase)
		purchases.GET("/:id", purchaseHandler.GetPurchase)
		purchases.POST("/:id/confirm", purchaseHandler.ConfirmPurchase)
		purchases.POST("/:id/cancel", purchaseHandler.CancelPurchase)
		purchases.POST("/:id/pay", purchaseHandler.MarkPaid)
	}
}

// setupSalesRoutes sets up sales order routes
func setupSalesRoutes(rg *gin.RouterGroup, salesHandler *handlers.SalesHandler, cfg *config.Config) {
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(cfg))
	{
		orders.GET("", salesHandler.GetOrders)
		orders.POST("", salesHandler.CreateOrder)
		orders.GET("/:id", salesHandler.GetOrder)
		orders.POST("/:id/transition", salesHandler.TransitionOrder)
		orders.POST("/:id/flag-return", salesHandler.FlagReturn)
	}
}

// setupReturnsRoutes sets up expected return routes
func setupReturnsRoutes(rg *gin.RouterGroup, returnsHandler *handlers.ReturnsHandler, cfg *config.Config) {
	rets := rg.Group("/returns")
	rets.Use(middleware.AuthMiddleware(cfg))
	{
		rets.GET("", returnsHandler.GetExpectedReturns)
		rets.GET("/pending-summary", returnsHandler.GetPendingSummary)
		rets.GET("/:id", returnsHandler.GetExpectedReturn)
		rets.POST("/:id/in-transit", returnsHandler.MarkInTransit)
		rets.POST("/:id/receive", returnsHandler.Receive)
		rets.POST("/:id/cancel", returnsHandler.CancelExpectedReturn)
	}
}

// setupAdminRoutes sets up admin routes
func setupAdminRoutes(rg *gin.RouterGroup, productHandler *handlers.ProductHandler, warehouseHandler *handlers.WarehouseHandler, salesHandler *handlers.SalesHandler, purchaseHandler *handlers.PurchaseHandler, cfg *config.Config) {
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg)) // Require authentication
	admin.Use(middleware.AdminMiddleware())   // Require admin privileges
	{
		// Product management
		products := admin.Group("/products")
		{
			products.POST("", productHandler.CreateProduct)
			products.PUT("/:id", productHandler.UpdateProduct)
			products.DELETE("/:id", productHandler.DeleteProduct)
			products.POST("/:id/variants", productHandler.AddVariant)
		}

		// Warehouse management
		warehouses := admin.Group("/warehouses")
		{
			warehouses.POST("", warehouseHandler.CreateWarehouse)
			warehouses.PUT("/:id", warehouseHandler.UpdateWarehouse)
			warehouses.DELETE("/:id", warehouseHandler.DeleteWarehouse)
		}

		// Stock corrections and transfers
		stock := admin.Group("/stock")
		{
			stock.POST("/add", warehouseHandler.AddStock)
			stock.POST("/remove", warehouseHandler.RemoveStock)
			stock.POST("/transfer", warehouseHandler.Transfer)
		}

		// Supplier management
		suppliers := admin.Group("/suppliers")
		{
			suppliers.POST("", purchaseHandler.CreateSupplier)
		}

		// Order cleanup
		orders := admin.Group("/orders")
		{
			orders.DELETE("/:id", salesHandler.DeleteOrder)
		}
	}
}
