package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func mustCreateSale(ctx context.Context, t *testing.T, env *testEnv, customer *model.Customer, number string) {
	t.Helper()
	sale := &model.Sale{
		Number:             number,
		SaleDate:           time.Now(),
		CustomerID:         customer.ID,
		ConfirmationState:  model.SaleDraft,
		CollectionState:    model.CollectionNone,
		DeliveryState:      model.DeliveryNone,
		Total:              decimal.Zero,
		AmountCollected:    decimal.Zero,
		OutstandingBalance: decimal.Zero,
	}
	require.NoError(t, env.saleRepo.Create(ctx, sale))
}

func TestNumberAllocatorFormat(t *testing.T) {
	env := newTestEnv(t)
	date := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	number, err := env.allocator.Next(context.Background(), DocTypeSale, date)
	require.NoError(t, err)
	assert.Equal(t, "SO-202603-0001", number)
}

func TestNumberAllocatorSequentialWithoutGaps(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	date := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		number, err := env.allocator.Next(context.Background(), DocTypeSale, date)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("SO-202603-%04d", i), number)
		mustCreateSale(context.Background(), t, env, customer, number)
	}
}

func TestNumberAllocatorRestartsPerMonth(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")

	march := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)
	number, err := env.allocator.Next(context.Background(), DocTypeSale, march)
	require.NoError(t, err)
	mustCreateSale(context.Background(), t, env, customer, number)

	april := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	number, err = env.allocator.Next(context.Background(), DocTypeSale, april)
	require.NoError(t, err)
	assert.Equal(t, "SO-202604-0001", number)
}

func TestNumberAllocatorIndependentPerDocumentType(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	date := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	saleNumber, err := env.allocator.Next(context.Background(), DocTypeSale, date)
	require.NoError(t, err)
	mustCreateSale(context.Background(), t, env, customer, saleNumber)

	receiptNumber, err := env.allocator.Next(context.Background(), DocTypeReceipt, date)
	require.NoError(t, err)
	assert.Equal(t, "RC-202603-0001", receiptNumber)
}

// A rolled-back transaction must not burn a number: the next allocation
// re-reads the surviving maximum.
func TestNumberAllocatorReusesNumberAfterRollback(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	date := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err := env.txManager.RunInTx(context.Background(), func(txCtx context.Context) error {
		number, allocErr := env.allocator.Next(txCtx, DocTypeSale, date)
		require.NoError(t, allocErr)
		require.Equal(t, "SO-202603-0001", number)
		mustCreateSale(txCtx, t, env, customer, number)
		return boom
	})
	require.ErrorIs(t, err, boom)

	number, err := env.allocator.Next(context.Background(), DocTypeSale, date)
	require.NoError(t, err)
	assert.Equal(t, "SO-202603-0001", number)
}

func TestNumberAllocatorRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.allocator.Next(context.Background(), "purchase_order", time.Now())
	assert.Error(t, err)
}

func TestWithNumberRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	dup := errors.New("UNIQUE constraint failed: sales.number")
	err := withNumberRetry(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return dup
	})
	assert.Equal(t, 3, calls)
	assert.Equal(t, dup, err)
}

// End-to-end retry path: the first attempt inserts a number that is already
// on file, hits the unique index, rolls back and the retry allocates the
// next free number.
func TestSaleCreationRetriesAfterLosingNumberRace(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)

	first := env.newSale(t, customer, product, 1)

	alloc := &racingAllocator{real: env.allocator, taken: first.Number, collisions: 1}
	sales := NewSaleService(env.saleRepo, env.customers, env.products,
		env.ledger, env.stock, alloc, env.txManager, zaptest.NewLogger(t))

	sale, err := sales.Create(context.Background(), CreateSaleRequest{
		CustomerID: customer.ID.String(),
		Items:      []SaleItemRequest{{ProductID: product.ID.String(), Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, alloc.calls)
	assert.Equal(t, fmt.Sprintf("SO-%s-0002", time.Now().Format("200601")), sale.Number)
}

func TestWithNumberRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := withNumberRetry(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, boom, err)
}
