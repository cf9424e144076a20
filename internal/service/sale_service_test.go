package service

import (
	"context"
	"strings"
	"testing"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSaleDraftHasNoFinancialEffect(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.newSale(t, customer, product, 3)

	assert.Equal(t, model.SaleDraft, sale.ConfirmationState)
	assert.Equal(t, model.CollectionNone, sale.CollectionState)
	assert.Equal(t, model.DeliveryNone, sale.DeliveryState)
	assert.True(t, strings.HasPrefix(sale.Number, "SO-"))
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("300.00")))
	assert.True(t, sale.OutstandingBalance.Equal(sale.Total))

	// No ledger entry and no stock reservation yet.
	balance := env.ledgerBalanceMatches(t, customer)
	assert.True(t, balance.IsZero())
	fresh, err := env.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Reserved)
}

func TestCreateSaleAppliesCatalogPriceAndDiscount(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "200.00", 50)

	sale, err := env.sales.Create(context.Background(), CreateSaleRequest{
		CustomerID: customer.ID.String(),
		Items: []SaleItemRequest{
			{ProductID: product.ID.String(), Quantity: 2, DiscountPct: "10"},
			{ProductID: product.ID.String(), Quantity: 1, UnitPrice: "150.00"},
		},
	})
	require.NoError(t, err)

	// 2*200*0.9 + 1*150 = 360 + 150
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("510.00")))
	assert.Equal(t, "Product SKU-1", sale.Items[0].Description)
}

// The exemption must survive the round trip to the database; a column
// default would silently flip a false value back to true.
func TestCreateSalePersistsTaxExemption(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	applyTax := false
	sale, err := env.sales.Create(ctx, CreateSaleRequest{
		CustomerID: customer.ID.String(),
		ApplyTax:   &applyTax,
		Items:      []SaleItemRequest{{ProductID: product.ID.String(), Quantity: 3}},
	})
	require.NoError(t, err)

	fresh, err := env.saleRepo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, fresh.ApplyTax)
}

func TestCreateSaleRejectsInactiveCustomer(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	customer.IsActive = false
	require.NoError(t, env.customers.Update(ctx, customer))

	_, err := env.sales.Create(ctx, CreateSaleRequest{
		CustomerID: customer.ID.String(),
		Items:      []SaleItemRequest{{ProductID: product.ID.String(), Quantity: 1}},
	})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestConfirmSalePostsDebitAndReservesStock(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 4)

	assert.Equal(t, model.SaleConfirmed, sale.ConfirmationState)
	balance := env.ledgerBalanceMatches(t, customer)
	assert.True(t, balance.Equal(decimal.RequireFromString("400.00")))

	fresh, err := env.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, fresh.Reserved)
}

func TestConfirmIsOneWay(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 1)
	_, err := env.sales.Confirm(ctx, sale.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestConfirmAdvanceTimingRequiresFullCollection(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale, err := env.sales.Create(ctx, CreateSaleRequest{
		CustomerID:       customer.ID.String(),
		CollectionTiming: model.TimingAdvance,
		Items:            []SaleItemRequest{{ProductID: product.ID.String(), Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = env.sales.Confirm(ctx, sale.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	// Once collected in full, confirmation goes through.
	fresh, err := env.saleRepo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	fresh.RecalculateCollection(fresh.Total)
	require.NoError(t, env.saleRepo.Update(ctx, fresh))

	confirmed, err := env.sales.Confirm(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SaleConfirmed, confirmed.ConfirmationState)
}

func TestCancelConfirmedSaleReversesEverything(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 2)
	cancelled, err := env.sales.Cancel(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SaleCancelled, cancelled.ConfirmationState)

	balance := env.ledgerBalanceMatches(t, customer)
	assert.True(t, balance.IsZero())

	fresh, err := env.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Reserved)
}

func TestCancelDraftSaleIsFree(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.newSale(t, customer, product, 2)
	cancelled, err := env.sales.Cancel(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SaleCancelled, cancelled.ConfirmationState)

	// No ledger entries exist at all.
	_, total, err := env.ledger.Entries(ctx, customer.ID, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestCancelRejectedWhenPaymentsCollected(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 2)
	_, err := env.receipts.Create(ctx, CreateReceiptRequest{
		CustomerID:   customer.ID.String(),
		SaleIDs:      []string{sale.ID.String()},
		Payments:     []PaymentInstrumentRequest{{Method: model.PaymentMethodCash, Amount: "50.00"}},
		AllowPartial: true,
	})
	require.NoError(t, err)

	_, err = env.sales.Cancel(ctx, sale.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestUpdateDraftOnly(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.newSale(t, customer, product, 2)
	updated, err := env.sales.UpdateDraft(ctx, sale.ID, UpdateSaleRequest{
		Items: []SaleItemRequest{{ProductID: product.ID.String(), Quantity: 5}},
	})
	require.NoError(t, err)
	assert.True(t, updated.Total.Equal(decimal.RequireFromString("500.00")))

	confirmed := env.confirmedSale(t, customer, product, 1)
	_, err = env.sales.UpdateDraft(ctx, confirmed.ID, UpdateSaleRequest{Note: strPtr("too late")})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

// Advance-timing drafts can carry collections before confirmation, so an
// item edit must re-derive the outstanding balance against what was already
// collected instead of resetting it to the new total.
func TestUpdateDraftKeepsCollectedAmount(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale, err := env.sales.Create(ctx, CreateSaleRequest{
		CustomerID:       customer.ID.String(),
		CollectionTiming: model.TimingAdvance,
		Items:            []SaleItemRequest{{ProductID: product.ID.String(), Quantity: 3}},
	})
	require.NoError(t, err)

	_, err = env.receipts.Create(ctx, CreateReceiptRequest{
		CustomerID:   customer.ID.String(),
		SaleIDs:      []string{sale.ID.String()},
		Payments:     []PaymentInstrumentRequest{cashPayment("100.00")},
		AllowPartial: true,
	})
	require.NoError(t, err)

	updated, err := env.sales.UpdateDraft(ctx, sale.ID, UpdateSaleRequest{
		Items: []SaleItemRequest{{ProductID: product.ID.String(), Quantity: 5}},
	})
	require.NoError(t, err)
	assert.True(t, updated.Total.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, updated.AmountCollected.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, updated.OutstandingBalance.Equal(decimal.RequireFromString("400.00")))
	assert.Equal(t, model.CollectionPartial, updated.CollectionState)
}

func strPtr(s string) *string { return &s }
