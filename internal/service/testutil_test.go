package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"backend/internal/authority"
	"backend/internal/database"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeAuthorizer replays scripted verdicts, one per call, in order. A nil
// entry in errs means the call completed.
type fakeAuthorizer struct {
	results []authority.Result
	errs    []error
	calls   int
	lastDoc authority.DocumentSnapshot
}

func (f *fakeAuthorizer) Authorize(_ context.Context, snapshot authority.DocumentSnapshot) (authority.Result, error) {
	i := f.calls
	f.calls++
	f.lastDoc = snapshot
	if i < len(f.errs) && f.errs[i] != nil {
		return authority.Result{}, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return authority.Result{Authorized: true, Code: fmt.Sprintf("CAE-%04d", i+1)}, nil
}

// racingAllocator replays a number that is already on file for its first
// collisions calls, standing in for a concurrent allocator that won the
// race, then delegates to the real allocator.
type racingAllocator struct {
	real       NumberAllocator
	taken      string
	collisions int
	calls      int
}

func (a *racingAllocator) Next(ctx context.Context, docType string, date time.Time) (string, error) {
	a.calls++
	if a.calls <= a.collisions {
		return a.taken, nil
	}
	return a.real.Next(ctx, docType, date)
}

type testEnv struct {
	db          *gorm.DB
	txManager   repository.TransactionManager
	customers   repository.CustomerRepository
	products    repository.ProductRepository
	saleRepo    repository.SaleRepository
	receiptRepo repository.ReceiptRepository
	ledgerRepo  repository.LedgerRepository
	authorizer  *fakeAuthorizer

	allocator  NumberAllocator
	ledger     LedgerService
	stock      StockService
	sales      SaleService
	invoices   InvoiceService
	deliveries DeliveryService
	receipts   ReceiptService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	log := zaptest.NewLogger(t)
	txManager := repository.NewTransactionManager(db)
	customerRepo := repository.NewCustomerRepository(db)
	productRepo := repository.NewProductRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	deliveryRepo := repository.NewDeliveryNoteRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)

	authorizer := &fakeAuthorizer{}
	allocator := NewNumberAllocator(sequenceRepo)
	ledgerService := NewLedgerService(ledgerRepo, customerRepo, saleRepo, txManager, log)
	stockService := NewStockService(productRepo, nil)

	return &testEnv{
		db:          db,
		txManager:   txManager,
		customers:   customerRepo,
		products:    productRepo,
		saleRepo:    saleRepo,
		receiptRepo: receiptRepo,
		ledgerRepo:  ledgerRepo,
		authorizer:  authorizer,
		allocator:  allocator,
		ledger:     ledgerService,
		stock:      stockService,
		sales:      NewSaleService(saleRepo, customerRepo, productRepo, ledgerService, stockService, allocator, txManager, log),
		invoices:   NewInvoiceService(invoiceRepo, saleRepo, customerRepo, ledgerService, allocator, authorizer, txManager, nil, log),
		deliveries: NewDeliveryService(deliveryRepo, saleRepo, stockService, allocator, txManager, nil, log),
		receipts:   NewReceiptService(receiptRepo, saleRepo, customerRepo, ledgerService, allocator, txManager, nil, log),
	}
}

func (e *testEnv) seedCustomer(t *testing.T, name, taxCondition, creditLimit string) *model.Customer {
	t.Helper()
	customer := &model.Customer{
		Name:            name,
		TaxID:           "20-12345678-9",
		TaxCondition:    taxCondition,
		CreditLimit:     decimal.RequireFromString(creditLimit),
		CurrentBalance:  decimal.Zero,
		AcceptsCash:     true,
		AcceptsCheck:    true,
		AcceptsTransfer: true,
		AcceptsCard:     true,
		IsActive:        true,
	}
	require.NoError(t, e.customers.Create(context.Background(), customer))
	return customer
}

func (e *testEnv) seedProduct(t *testing.T, sku, price string, stock int) *model.Product {
	t.Helper()
	product := &model.Product{
		SKU:          sku,
		Name:         "Product " + sku,
		UnitPrice:    decimal.RequireFromString(price),
		CurrentStock: stock,
	}
	require.NoError(t, e.products.Create(context.Background(), product))
	return product
}

// newSale creates a draft sale of quantity units of the product.
func (e *testEnv) newSale(t *testing.T, customer *model.Customer, product *model.Product, quantity int) *model.Sale {
	t.Helper()
	sale, err := e.sales.Create(context.Background(), CreateSaleRequest{
		CustomerID: customer.ID.String(),
		Items: []SaleItemRequest{
			{ProductID: product.ID.String(), Quantity: quantity},
		},
	})
	require.NoError(t, err)
	return sale
}

// confirmedSale creates and confirms a sale in one step.
func (e *testEnv) confirmedSale(t *testing.T, customer *model.Customer, product *model.Product, quantity int) *model.Sale {
	t.Helper()
	sale := e.newSale(t, customer, product, quantity)
	confirmed, err := e.sales.Confirm(context.Background(), sale.ID)
	require.NoError(t, err)
	return confirmed
}

// ledgerBalanceMatches asserts the audit-trail sum of non-voided entries
// equals the customer's materialized balance.
func (e *testEnv) ledgerBalanceMatches(t *testing.T, customer *model.Customer) decimal.Decimal {
	t.Helper()
	fresh, err := e.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	sum, err := e.ledgerRepo.SumActiveByCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	require.True(t, sum.Equal(fresh.CurrentBalance),
		"ledger sum %s != materialized balance %s", sum, fresh.CurrentBalance)
	return fresh.CurrentBalance
}
