package service

import (
	"context"
	"time"

	"backend/internal/authority"
	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const minVoidReasonLength = 10

// --- DTOs ---

type InvoiceItemRequest struct {
	ProductID   string `json:"product_id"`
	Description string `json:"description" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice   string `json:"unit_price" binding:"required"`
	TaxRate     string `json:"tax_rate"` // empty: standard rate
}

type CreateInvoiceFromSalesRequest struct {
	SaleIDs []string `json:"sale_ids" binding:"required,min=1"`
	// Optional re-priced/re-described lines. Empty: derived from the sales.
	Items []InvoiceItemRequest `json:"items" binding:"omitempty,dive"`
}

type CreateManualInvoiceRequest struct {
	CustomerID string               `json:"customer_id" binding:"required"`
	Items      []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
}

type VoidInvoiceRequest struct {
	Reason string `json:"reason" binding:"required"`
	// Amount empty or equal to the authorized total: full void. Strictly
	// between zero and the total: partial credit note.
	Amount string `json:"amount"`
}

// --- Interface ---

// InvoiceService owns the tax-authority-facing document lifecycle: draft,
// one-way authorization, and reversal through credit notes.
type InvoiceService interface {
	CreateFromSales(ctx context.Context, req CreateInvoiceFromSalesRequest) (*model.Invoice, error)
	CreateManual(ctx context.Context, req CreateManualInvoiceRequest) (*model.Invoice, error)
	Authorize(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	Void(ctx context.Context, id uuid.UUID, req VoidInvoiceRequest) (*model.CreditNote, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, filter repository.InvoiceListFilter) ([]model.Invoice, int64, error)
}

type invoiceService struct {
	invoiceRepo  repository.InvoiceRepository
	saleRepo     repository.SaleRepository
	customerRepo repository.CustomerRepository
	ledger       LedgerService
	allocator    NumberAllocator
	authorizer   authority.Authorizer
	txManager    repository.TransactionManager
	hub          *ws.Hub
	logger       *zap.Logger
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	saleRepo repository.SaleRepository,
	customerRepo repository.CustomerRepository,
	ledger LedgerService,
	allocator NumberAllocator,
	authorizer authority.Authorizer,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	logger *zap.Logger,
) InvoiceService {
	return &invoiceService{
		invoiceRepo:  invoiceRepo,
		saleRepo:     saleRepo,
		customerRepo: customerRepo,
		ledger:       ledger,
		allocator:    allocator,
		authorizer:   authorizer,
		txManager:    txManager,
		hub:          hub,
		logger:       logger,
	}
}

// --- Implementation ---

func (s *invoiceService) CreateFromSales(ctx context.Context, req CreateInvoiceFromSalesRequest) (*model.Invoice, error) {
	saleIDs := make([]uuid.UUID, 0, len(req.SaleIDs))
	for _, raw := range req.SaleIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperror.Validation("invalid sale id %q: %v", raw, err)
		}
		saleIDs = append(saleIDs, id)
	}

	sales, err := s.saleRepo.FindByIDs(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	if len(sales) != len(saleIDs) {
		return nil, apperror.NotFound("sale")
	}

	customerID := sales[0].CustomerID
	for _, sale := range sales {
		if sale.CustomerID != customerID {
			return nil, apperror.Validation("all sales must belong to the same customer")
		}
		if sale.ConfirmationState == model.SaleCancelled {
			return nil, apperror.Validation("sale %s is cancelled", sale.Number)
		}
		linked, countErr := s.invoiceRepo.CountActiveBySale(ctx, sale.ID)
		if countErr != nil {
			return nil, countErr
		}
		if linked > 0 {
			return nil, apperror.Conflict("sale %s is already invoiced", sale.Number)
		}
	}

	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return nil, apperror.NotFound("customer")
	}

	var items []model.InvoiceItem
	if len(req.Items) > 0 {
		items, err = s.buildItems(req.Items)
		if err != nil {
			return nil, err
		}
	} else {
		items = deriveItemsFromSales(sales)
	}

	invoice := s.newInvoice(customer, items)
	invoice.Sales = sales

	err = withNumberRetry(ctx, 3, func(ctx context.Context) error {
		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			number, allocErr := s.allocator.Next(txCtx, DocTypeInvoice, time.Now())
			if allocErr != nil {
				return allocErr
			}
			invoice.Number = number
			if createErr := s.invoiceRepo.Create(txCtx, invoice); createErr != nil {
				return createErr
			}
			for i := range sales {
				sales[i].Invoiced = true
				if updateErr := s.saleRepo.Update(txCtx, &sales[i]); updateErr != nil {
					return updateErr
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice created from sales",
		zap.String("number", invoice.Number),
		zap.Int("sales", len(sales)))
	return invoice, nil
}

func (s *invoiceService) CreateManual(ctx context.Context, req CreateManualInvoiceRequest) (*model.Invoice, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, apperror.Validation("invalid customer_id: %v", err)
	}
	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return nil, apperror.NotFound("customer")
	}

	items, err := s.buildItems(req.Items)
	if err != nil {
		return nil, err
	}

	invoice := s.newInvoice(customer, items)

	err = withNumberRetry(ctx, 3, func(ctx context.Context) error {
		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			number, allocErr := s.allocator.Next(txCtx, DocTypeInvoice, time.Now())
			if allocErr != nil {
				return allocErr
			}
			invoice.Number = number
			return s.invoiceRepo.Create(txCtx, invoice)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("manual invoice created", zap.String("number", invoice.Number))
	return invoice, nil
}

// Authorize performs the one-way transition to authorized or rejected via
// the external authority. The call is non-idempotent and never retried
// automatically; only an operator may re-invoke it after a rejection or a
// transport error.
func (s *invoiceService) Authorize(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("invoice")
	}

	switch invoice.AuthorizationState {
	case model.AuthorizationAuthorized:
		return nil, apperror.Conflict("invoice %s is already authorized", invoice.Number)
	case model.AuthorizationVoided:
		return nil, apperror.Conflict("invoice %s is voided", invoice.Number)
	}
	if len(invoice.Items) == 0 {
		return nil, apperror.Validation("invoice %s has no items", invoice.Number)
	}
	if invoice.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.Validation("invoice %s total must be positive", invoice.Number)
	}
	if invoice.CustomerName == "" {
		return nil, apperror.Validation("invoice %s has no customer snapshot", invoice.Number)
	}

	result, callErr := s.authorizer.Authorize(ctx, snapshotInvoice(invoice))
	if callErr != nil {
		// The call never completed: leave the invoice in error state so an
		// operator can distinguish it from an authority refusal and decide
		// whether a retry risks a duplicate authorization.
		detail := callErr.Error()
		invoice.AuthorizationState = model.AuthorizationError
		invoice.LastError = &detail
		if updateErr := s.invoiceRepo.UpdateAuthorization(ctx, invoice); updateErr != nil {
			return nil, updateErr
		}
		s.logger.Error("invoice authorization call failed",
			zap.String("number", invoice.Number), zap.Error(callErr))
		return invoice, apperror.External("authorization service unavailable", callErr)
	}

	if result.Authorized {
		invoice.AuthorizationState = model.AuthorizationAuthorized
		invoice.AuthorizationCode = &result.Code
		invoice.AuthorizationExpiry = &result.Expiry
		invoice.RejectionReason = nil
		invoice.LastError = nil
	} else {
		reason := result.Reason
		invoice.AuthorizationState = model.AuthorizationRejected
		invoice.RejectionReason = &reason
	}
	if err := s.invoiceRepo.UpdateAuthorization(ctx, invoice); err != nil {
		return nil, err
	}

	if invoice.AuthorizationState == model.AuthorizationAuthorized && s.hub != nil {
		s.hub.Notify("invoice.authorized", map[string]interface{}{
			"invoice_id": invoice.ID.String(),
			"number":     invoice.Number,
		})
	}
	s.logger.Info("invoice authorization finished",
		zap.String("number", invoice.Number),
		zap.String("state", invoice.AuthorizationState))
	return invoice, nil
}

// Void reverses an authorized invoice through a credit note. A full void
// sets the invoice to voided and clears the linked sales' invoiced flag; a
// partial void leaves the invoice authorized as a still-valid comprobante.
func (s *invoiceService) Void(ctx context.Context, id uuid.UUID, req VoidInvoiceRequest) (*model.CreditNote, error) {
	if len(req.Reason) < minVoidReasonLength {
		return nil, apperror.Validation("void reason must be at least %d characters", minVoidReasonLength)
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("invoice")
	}
	if invoice.AuthorizationState != model.AuthorizationAuthorized {
		return nil, apperror.Conflict("only authorized invoices can be voided, invoice %s is %s",
			invoice.Number, invoice.AuthorizationState)
	}

	amount := invoice.TotalAmount
	if req.Amount != "" {
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			return nil, apperror.Validation("invalid amount: %v", err)
		}
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(invoice.TotalAmount) {
		return nil, apperror.Validation("void amount must be between 0 and the invoice total")
	}
	if invoice.CreditedAmount().Add(amount).GreaterThan(invoice.TotalAmount) {
		return nil, apperror.Conflict("invoice %s has only %s left to credit",
			invoice.Number, invoice.TotalAmount.Sub(invoice.CreditedAmount()).StringFixed(2))
	}
	fullVoid := amount.Equal(invoice.TotalAmount)

	// Split the credited amount into net and tax with the invoice's own
	// proportions so the credit note's breakdown mirrors the original.
	ratio := amount.Div(invoice.TotalAmount)
	note := &model.CreditNote{
		Type:        invoice.Type,
		InvoiceID:   invoice.ID,
		Reason:      req.Reason,
		NetAmount:   invoice.NetAmount.Mul(ratio).Round(2),
		TotalAmount: amount,
	}
	note.TaxAmount = amount.Sub(note.NetAmount)

	err = withNumberRetry(ctx, 3, func(ctx context.Context) error {
		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			number, allocErr := s.allocator.Next(txCtx, DocTypeCreditNote, time.Now())
			if allocErr != nil {
				return allocErr
			}
			note.Number = number
			return s.invoiceRepo.CreateCreditNote(txCtx, note)
		})
	})
	if err != nil {
		return nil, err
	}

	// The credit note goes through the same authorization step as an
	// invoice, outside any transaction.
	result, callErr := s.authorizer.Authorize(ctx, snapshotCreditNote(invoice, note))
	if callErr != nil {
		note.AuthorizationState = model.AuthorizationError
		if updateErr := s.invoiceRepo.UpdateCreditNote(ctx, note); updateErr != nil {
			return nil, updateErr
		}
		return note, apperror.External("credit note authorization unavailable", callErr)
	}
	if !result.Authorized {
		reason := result.Reason
		note.AuthorizationState = model.AuthorizationRejected
		note.RejectionReason = &reason
		if updateErr := s.invoiceRepo.UpdateCreditNote(ctx, note); updateErr != nil {
			return nil, updateErr
		}
		return note, apperror.Conflict("credit note rejected by the tax authority: %s", reason)
	}

	note.AuthorizationState = model.AuthorizationAuthorized
	note.AuthorizationCode = &result.Code
	note.AuthorizationExpiry = &result.Expiry

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if updateErr := s.invoiceRepo.UpdateCreditNote(txCtx, note); updateErr != nil {
			return updateErr
		}
		if fullVoid {
			invoice.AuthorizationState = model.AuthorizationVoided
			if updateErr := s.invoiceRepo.UpdateAuthorization(txCtx, invoice); updateErr != nil {
				return updateErr
			}
			for i := range invoice.Sales {
				invoice.Sales[i].Invoiced = false
				if updateErr := s.saleRepo.Update(txCtx, &invoice.Sales[i]); updateErr != nil {
					return updateErr
				}
			}
		}
		// Sale-linked invoices entered the ledger as a debit at sale
		// confirmation; the credit note offsets that debt. Manual invoices
		// never touched the ledger, so their credit notes are fiscal-only.
		if len(invoice.Sales) > 0 {
			if _, postErr := s.ledger.Post(txCtx, invoice.CustomerID, model.OriginCreditNote, note.ID,
				model.LedgerCredit, note.TotalAmount, "credit note "+note.Number); postErr != nil {
				return postErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice voided",
		zap.String("invoice", invoice.Number),
		zap.String("credit_note", note.Number),
		zap.Bool("full", fullVoid))
	return note, nil
}

func (s *invoiceService) Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("invoice")
	}
	return invoice, nil
}

func (s *invoiceService) List(ctx context.Context, filter repository.InvoiceListFilter) ([]model.Invoice, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.invoiceRepo.List(ctx, filter)
}

// --- Helpers ---

func (s *invoiceService) newInvoice(customer *model.Customer, items []model.InvoiceItem) *model.Invoice {
	net := decimal.Zero
	tax := decimal.Zero
	for _, item := range items {
		net = net.Add(item.LineTotal)
		tax = tax.Add(item.TaxAmount())
	}
	return &model.Invoice{
		Type:                 model.InvoiceTypeFor(customer.TaxCondition),
		CustomerID:           customer.ID,
		CustomerName:         customer.Name,
		CustomerTaxID:        customer.TaxID,
		CustomerTaxCondition: customer.TaxCondition,
		Items:                items,
		NetAmount:            net,
		TaxAmount:            tax,
		TotalAmount:          net.Add(tax),
		AuthorizationState:   model.AuthorizationDraft,
	}
}

func (s *invoiceService) buildItems(reqs []InvoiceItemRequest) ([]model.InvoiceItem, error) {
	items := make([]model.InvoiceItem, 0, len(reqs))
	for _, r := range reqs {
		unitPrice, err := decimal.NewFromString(r.UnitPrice)
		if err != nil {
			return nil, apperror.Validation("invalid unit_price: %v", err)
		}
		taxRate := model.TaxRateStandard
		if r.TaxRate != "" {
			taxRate, err = decimal.NewFromString(r.TaxRate)
			if err != nil {
				return nil, apperror.Validation("invalid tax_rate: %v", err)
			}
		}
		item := model.InvoiceItem{
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   unitPrice,
			TaxRate:     taxRate,
			LineTotal:   unitPrice.Mul(decimal.NewFromInt(int64(r.Quantity))).Round(2),
		}
		if r.ProductID != "" {
			productID, parseErr := uuid.Parse(r.ProductID)
			if parseErr != nil {
				return nil, apperror.Validation("invalid product_id: %v", parseErr)
			}
			item.ProductID = &productID
		}
		items = append(items, item)
	}
	return items, nil
}

// deriveItemsFromSales copies the sale lines onto the invoice. Tax-exempt
// sales get a zero rate.
func deriveItemsFromSales(sales []model.Sale) []model.InvoiceItem {
	var items []model.InvoiceItem
	for _, sale := range sales {
		rate := model.TaxRateStandard
		if !sale.ApplyTax {
			rate = decimal.Zero
		}
		for _, line := range sale.Items {
			productID := line.ProductID
			items = append(items, model.InvoiceItem{
				ProductID:   &productID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				TaxRate:     rate,
				LineTotal:   line.Subtotal,
			})
		}
	}
	return items
}

func snapshotInvoice(invoice *model.Invoice) authority.DocumentSnapshot {
	return authority.DocumentSnapshot{
		DocumentType: "invoice",
		Number:       invoice.Number,
		Type:         invoice.Type,
		CustomerName: invoice.CustomerName,
		CustomerTax:  invoice.CustomerTaxID,
		NetAmount:    invoice.NetAmount.StringFixed(2),
		TaxAmount:    invoice.TaxAmount.StringFixed(2),
		TotalAmount:  invoice.TotalAmount.StringFixed(2),
		IssuedAt:     time.Now(),
		Items:        snapshotItems(invoice.Items),
	}
}

func snapshotCreditNote(invoice *model.Invoice, note *model.CreditNote) authority.DocumentSnapshot {
	return authority.DocumentSnapshot{
		DocumentType: "credit_note",
		Number:       note.Number,
		Type:         note.Type,
		CustomerName: invoice.CustomerName,
		CustomerTax:  invoice.CustomerTaxID,
		NetAmount:    note.NetAmount.StringFixed(2),
		TaxAmount:    note.TaxAmount.StringFixed(2),
		TotalAmount:  note.TotalAmount.StringFixed(2),
		IssuedAt:     time.Now(),
	}
}

func snapshotItems(items []model.InvoiceItem) []authority.LineEntry {
	entries := make([]authority.LineEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, authority.LineEntry{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			TaxRate:     item.TaxRate.StringFixed(2),
			LineTotal:   item.LineTotal.StringFixed(2),
		})
	}
	return entries
}
