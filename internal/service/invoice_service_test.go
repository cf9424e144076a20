package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"backend/internal/authority"
	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// untaxedSale creates and confirms a sale without VAT so the invoice total
// matches the sale total exactly.
func untaxedSale(t *testing.T, env *testEnv, customer *model.Customer, product *model.Product, quantity int) *model.Sale {
	t.Helper()
	ctx := context.Background()
	applyTax := false
	sale, err := env.sales.Create(ctx, CreateSaleRequest{
		CustomerID: customer.ID.String(),
		ApplyTax:   &applyTax,
		Items:      []SaleItemRequest{{ProductID: product.ID.String(), Quantity: quantity}},
	})
	require.NoError(t, err)
	confirmed, err := env.sales.Confirm(ctx, sale.ID)
	require.NoError(t, err)
	return confirmed
}

func TestInvoiceTypeDerivedFromTaxCondition(t *testing.T) {
	cases := []struct {
		condition string
		wantType  string
	}{
		{model.TaxConditionRegistered, model.InvoiceTypeA},
		{model.TaxConditionMonotax, model.InvoiceTypeC},
		{model.TaxConditionFinal, model.InvoiceTypeB},
		{model.TaxConditionExempt, model.InvoiceTypeB},
	}

	for _, tc := range cases {
		t.Run(tc.condition, func(t *testing.T) {
			env := newTestEnv(t)
			customer := env.seedCustomer(t, "Acme", tc.condition, "0")

			invoice, err := env.invoices.CreateManual(context.Background(), CreateManualInvoiceRequest{
				CustomerID: customer.ID.String(),
				Items: []InvoiceItemRequest{
					{Description: "Consulting", Quantity: 1, UnitPrice: "100.00"},
				},
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, invoice.Type)
			assert.True(t, strings.HasPrefix(invoice.Number, "FA-"))
			assert.Equal(t, model.AuthorizationDraft, invoice.AuthorizationState)
		})
	}
}

func TestInvoiceFromSalesSnapshotsCustomerAndSumsLines(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionRegistered, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 2)
	invoice, err := env.invoices.CreateFromSales(ctx, CreateInvoiceFromSalesRequest{
		SaleIDs: []string{sale.ID.String()},
	})
	require.NoError(t, err)

	assert.Equal(t, customer.Name, invoice.CustomerName)
	assert.Equal(t, customer.TaxID, invoice.CustomerTaxID)
	assert.True(t, invoice.NetAmount.Equal(decimal.RequireFromString("200.00")))
	assert.True(t, invoice.TaxAmount.Equal(decimal.RequireFromString("42.00")))
	assert.True(t, invoice.TotalAmount.Equal(decimal.RequireFromString("242.00")))

	fresh, err := env.saleRepo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Invoiced)
}

func TestInvoiceFromSalesRejectsMixedCustomers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedCustomer(t, "Alice", model.TaxConditionFinal, "0")
	bob := env.seedCustomer(t, "Bob", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	saleA := env.confirmedSale(t, alice, product, 1)
	saleB := env.confirmedSale(t, bob, product, 1)

	_, err := env.invoices.CreateFromSales(ctx, CreateInvoiceFromSalesRequest{
		SaleIDs: []string{saleA.ID.String(), saleB.ID.String()},
	})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestInvoiceFromSalesRejectsAlreadyInvoicedSale(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 1)
	_, err := env.invoices.CreateFromSales(ctx, CreateInvoiceFromSalesRequest{
		SaleIDs: []string{sale.ID.String()},
	})
	require.NoError(t, err)

	_, err = env.invoices.CreateFromSales(ctx, CreateInvoiceFromSalesRequest{
		SaleIDs: []string{sale.ID.String()},
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestAuthorizeStoresCodeAndExpiry(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	ctx := context.Background()

	invoice, err := env.invoices.CreateManual(ctx, CreateManualInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []InvoiceItemRequest{{Description: "Widget", Quantity: 1, UnitPrice: "100.00"}},
	})
	require.NoError(t, err)

	authorized, err := env.invoices.Authorize(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationAuthorized, authorized.AuthorizationState)
	require.NotNil(t, authorized.AuthorizationCode)
	assert.NotEmpty(t, *authorized.AuthorizationCode)
	assert.Equal(t, "invoice", env.authorizer.lastDoc.DocumentType)
	assert.Equal(t, invoice.Number, env.authorizer.lastDoc.Number)

	// A second attempt on an authorized invoice is refused before any call.
	_, err = env.invoices.Authorize(ctx, invoice.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	assert.Equal(t, 1, env.authorizer.calls)
}

func TestAuthorizeRejectionKeepsReasonVerbatim(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	ctx := context.Background()
	env.authorizer.results = []authority.Result{
		{Authorized: false, Reason: "CUIT inactivo ante el organismo"},
	}

	invoice, err := env.invoices.CreateManual(ctx, CreateManualInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []InvoiceItemRequest{{Description: "Widget", Quantity: 1, UnitPrice: "100.00"}},
	})
	require.NoError(t, err)

	rejected, err := env.invoices.Authorize(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationRejected, rejected.AuthorizationState)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "CUIT inactivo ante el organismo", *rejected.RejectionReason)

	// A rejected invoice may be resubmitted after correction.
	resubmitted, err := env.invoices.Authorize(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationAuthorized, resubmitted.AuthorizationState)
}

func TestAuthorizeTransportErrorLandsInErrorState(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	ctx := context.Background()
	env.authorizer.errs = []error{errors.New("connection refused")}

	invoice, err := env.invoices.CreateManual(ctx, CreateManualInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []InvoiceItemRequest{{Description: "Widget", Quantity: 1, UnitPrice: "100.00"}},
	})
	require.NoError(t, err)

	failed, err := env.invoices.Authorize(ctx, invoice.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindExternal))
	require.NotNil(t, failed)
	assert.Equal(t, model.AuthorizationError, failed.AuthorizationState)
	require.NotNil(t, failed.LastError)
	assert.Contains(t, *failed.LastError, "connection refused")

	// The operator may retry; the service never does so on its own.
	assert.Equal(t, 1, env.authorizer.calls)
	recovered, err := env.invoices.Authorize(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationAuthorized, recovered.AuthorizationState)
}

func TestVoidRequiresAuthorizedInvoiceAndLongReason(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	ctx := context.Background()

	invoice, err := env.invoices.CreateManual(ctx, CreateManualInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []InvoiceItemRequest{{Description: "Widget", Quantity: 1, UnitPrice: "100.00"}},
	})
	require.NoError(t, err)

	_, err = env.invoices.Void(ctx, invoice.ID, VoidInvoiceRequest{Reason: "too short"})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = env.invoices.Void(ctx, invoice.ID, VoidInvoiceRequest{Reason: "customer returned the goods"})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestFullVoidIssuesCreditNoteAndReleasesSales(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := untaxedSale(t, env, customer, product, 3)
	invoice, err := env.invoices.CreateFromSales(ctx, CreateInvoiceFromSalesRequest{
		SaleIDs: []string{sale.ID.String()},
	})
	require.NoError(t, err)
	_, err = env.invoices.Authorize(ctx, invoice.ID)
	require.NoError(t, err)

	note, err := env.invoices.Void(ctx, invoice.ID, VoidInvoiceRequest{
		Reason: "customer returned the goods",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(note.Number, "NC-"))
	assert.Equal(t, invoice.Type, note.Type)
	assert.Equal(t, model.AuthorizationAuthorized, note.AuthorizationState)
	assert.True(t, note.TotalAmount.Equal(invoice.TotalAmount))
	assert.Equal(t, "credit_note", env.authorizer.lastDoc.DocumentType)

	fresh, err := env.invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationVoided, fresh.AuthorizationState)

	// Sale is billable again and the ledger credit offsets the debt.
	freshSale, err := env.saleRepo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, freshSale.Invoiced)
	balance := env.ledgerBalanceMatches(t, customer)
	assert.True(t, balance.IsZero())
}

func TestPartialVoidLeavesInvoiceAuthorized(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := untaxedSale(t, env, customer, product, 3)
	invoice, err := env.invoices.CreateFromSales(ctx, CreateInvoiceFromSalesRequest{
		SaleIDs: []string{sale.ID.String()},
	})
	require.NoError(t, err)
	_, err = env.invoices.Authorize(ctx, invoice.ID)
	require.NoError(t, err)

	note, err := env.invoices.Void(ctx, invoice.ID, VoidInvoiceRequest{
		Reason: "one unit arrived damaged",
		Amount: "100.00",
	})
	require.NoError(t, err)
	assert.True(t, note.TotalAmount.Equal(decimal.RequireFromString("100.00")))

	fresh, err := env.invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationAuthorized, fresh.AuthorizationState)

	freshSale, err := env.saleRepo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, freshSale.Invoiced)

	balance := env.ledgerBalanceMatches(t, customer)
	assert.True(t, balance.Equal(decimal.RequireFromString("200.00")))
}

func TestCumulativeCreditsCannotExceedInvoiceTotal(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := untaxedSale(t, env, customer, product, 3)
	invoice, err := env.invoices.CreateFromSales(ctx, CreateInvoiceFromSalesRequest{
		SaleIDs: []string{sale.ID.String()},
	})
	require.NoError(t, err)
	_, err = env.invoices.Authorize(ctx, invoice.ID)
	require.NoError(t, err)

	_, err = env.invoices.Void(ctx, invoice.ID, VoidInvoiceRequest{
		Reason: "partial return of two units", Amount: "200.00",
	})
	require.NoError(t, err)

	_, err = env.invoices.Void(ctx, invoice.ID, VoidInvoiceRequest{
		Reason: "attempting to credit too much", Amount: "150.00",
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestManualInvoiceVoidIsFiscalOnly(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	ctx := context.Background()

	invoice, err := env.invoices.CreateManual(ctx, CreateManualInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []InvoiceItemRequest{{Description: "Widget", Quantity: 1, UnitPrice: "100.00", TaxRate: "0"}},
	})
	require.NoError(t, err)
	_, err = env.invoices.Authorize(ctx, invoice.ID)
	require.NoError(t, err)

	_, err = env.invoices.Void(ctx, invoice.ID, VoidInvoiceRequest{
		Reason: "issued against the wrong customer",
	})
	require.NoError(t, err)

	// No sale ever hit the ledger, so the void must not touch it either.
	_, total, err := env.ledger.Entries(ctx, customer.ID, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}
