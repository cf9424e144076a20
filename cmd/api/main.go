package main

import (
	"log"
	"os"
	"strconv"
	"time"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/authority"
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Sales Document API
// @version         1.0
// @description     Commercial document lifecycle API: sales, invoices, delivery notes, receipts and customer ledgers.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Logger initialization failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dbHost := envOr("DB_HOST", "localhost")
	dbPort := envOr("DB_PORT", "5432")
	dbUser := envOr("DB_USER", "postgres")
	dbPassword := envOr("DB_PASSWORD", "postgres")
	dbName := envOr("DB_NAME", "postgres")
	dbSslMode := envOr("DB_SSLMODE", "disable")

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	logger.Info("connected to PostgreSQL")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Tax authority collaborator
	authorityURL := envOr("AUTHORITY_URL", "http://localhost:9090")
	authorityTimeout := 10 * time.Second
	if raw := os.Getenv("AUTHORITY_TIMEOUT_SECONDS"); raw != "" {
		if seconds, parseErr := strconv.Atoi(raw); parseErr == nil && seconds > 0 {
			authorityTimeout = time.Duration(seconds) * time.Second
		}
	}
	authorizer := authority.NewHTTPClient(authorityURL, authorityTimeout, logger)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	customerRepo := repository.NewCustomerRepository(db)
	productRepo := repository.NewProductRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	deliveryRepo := repository.NewDeliveryNoteRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)

	allocator := service.NewNumberAllocator(sequenceRepo)
	ledgerService := service.NewLedgerService(ledgerRepo, customerRepo, saleRepo, txManager, logger)
	stockService := service.NewStockService(productRepo, wsHub)
	customerService := service.NewCustomerService(customerRepo)
	productService := service.NewProductService(productRepo)
	saleService := service.NewSaleService(saleRepo, customerRepo, productRepo, ledgerService, stockService, allocator, txManager, logger)
	invoiceService := service.NewInvoiceService(invoiceRepo, saleRepo, customerRepo, ledgerService, allocator, authorizer, txManager, wsHub, logger)
	deliveryService := service.NewDeliveryService(deliveryRepo, saleRepo, stockService, allocator, txManager, wsHub, logger)
	receiptService := service.NewReceiptService(receiptRepo, saleRepo, customerRepo, ledgerService, allocator, txManager, wsHub, logger)

	// Initialize Handlers
	customerHandler := handler.NewCustomerHandler(customerService, ledgerService)
	productHandler := handler.NewProductHandler(productService)
	saleHandler := handler.NewSaleHandler(saleService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	deliveryHandler := handler.NewDeliveryHandler(deliveryService)
	receiptHandler := handler.NewReceiptHandler(receiptService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	api := router.Group("", middleware.RequireAuth())
	customerHandler.RegisterRoutes(api)
	productHandler.RegisterRoutes(api)
	saleHandler.RegisterRoutes(api)
	invoiceHandler.RegisterRoutes(api)
	deliveryHandler.RegisterRoutes(api)
	receiptHandler.RegisterRoutes(api)

	port := envOr("PORT", "8080")
	logger.Info("server listening", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
