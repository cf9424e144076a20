package service

import (
	"context"
	"sort"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type PaymentInstrumentRequest struct {
	Method string `json:"method" binding:"required,oneof=cash check transfer card"`
	Amount string `json:"amount" binding:"required"`

	CheckNumber string `json:"check_number"`
	BankName    string `json:"bank_name"`
	HolderName  string `json:"holder_name"`
	DueDate     string `json:"due_date"` // RFC3339, checks only

	Reference string `json:"reference"`

	CardLast4         string `json:"card_last4"`
	CardAuthorization string `json:"card_authorization"`
}

type CreateReceiptRequest struct {
	CustomerID string                     `json:"customer_id" binding:"required"`
	SaleIDs    []string                   `json:"sale_ids" binding:"required,min=1"`
	Payments   []PaymentInstrumentRequest `json:"payments" binding:"required,min=1,dive"`
	// AllowPartial permits paying less than the outstanding total of the
	// referenced sales.
	AllowPartial bool `json:"allow_partial"`
}

type VoidReceiptRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type CorrectReceiptRequest struct {
	CorrectedAmount string `json:"corrected_amount" binding:"required"`
	Reason          string `json:"reason" binding:"required"`
}

// --- Interface ---

// ReceiptService records payment events and distributes them across sales
// oldest-first. Voiding restores every touched sale to its pre-receipt
// position.
type ReceiptService interface {
	Create(ctx context.Context, req CreateReceiptRequest) (*model.Receipt, error)
	Void(ctx context.Context, id uuid.UUID, req VoidReceiptRequest) (*model.Receipt, error)
	CorrectAmount(ctx context.Context, id uuid.UUID, req CorrectReceiptRequest) (*model.Receipt, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Receipt, error)
	List(ctx context.Context, customerID *uuid.UUID, page, limit int) ([]model.Receipt, int64, error)
}

type receiptService struct {
	receiptRepo  repository.ReceiptRepository
	saleRepo     repository.SaleRepository
	customerRepo repository.CustomerRepository
	ledger       LedgerService
	allocator    NumberAllocator
	txManager    repository.TransactionManager
	hub          *ws.Hub
	logger       *zap.Logger
}

func NewReceiptService(
	receiptRepo repository.ReceiptRepository,
	saleRepo repository.SaleRepository,
	customerRepo repository.CustomerRepository,
	ledger LedgerService,
	allocator NumberAllocator,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	logger *zap.Logger,
) ReceiptService {
	return &receiptService{
		receiptRepo:  receiptRepo,
		saleRepo:     saleRepo,
		customerRepo: customerRepo,
		ledger:       ledger,
		allocator:    allocator,
		txManager:    txManager,
		hub:          hub,
		logger:       logger,
	}
}

// --- Implementation ---

func (s *receiptService) Create(ctx context.Context, req CreateReceiptRequest) (*model.Receipt, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, apperror.Validation("invalid customer_id: %v", err)
	}
	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return nil, apperror.NotFound("customer")
	}

	payments, totalPaid, err := buildPayments(customer, req.Payments)
	if err != nil {
		return nil, err
	}

	saleIDs := make([]uuid.UUID, 0, len(req.SaleIDs))
	for _, raw := range req.SaleIDs {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return nil, apperror.Validation("invalid sale id %q: %v", raw, parseErr)
		}
		saleIDs = append(saleIDs, id)
	}
	receipt := &model.Receipt{
		CustomerID: customerID,
		Status:     model.ReceiptActive,
		Payments:   payments,
		AmountPaid: totalPaid,
	}

	err = withNumberRetry(ctx, 3, func(ctx context.Context) error {
		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			// Sales are re-read on every attempt: a rolled-back race must
			// not allocate from balances mutated by the previous try.
			sales, salesErr := s.saleRepo.FindByIDs(txCtx, saleIDs)
			if salesErr != nil {
				return salesErr
			}
			if len(sales) != len(saleIDs) {
				return apperror.NotFound("sale")
			}

			totalDue := decimal.Zero
			for _, sale := range sales {
				if sale.CustomerID != customerID {
					return apperror.Validation("sale %s belongs to another customer", sale.Number)
				}
				if sale.ConfirmationState == model.SaleCancelled {
					return apperror.Validation("sale %s is cancelled", sale.Number)
				}
				totalDue = totalDue.Add(sale.OutstandingBalance)
			}
			if totalPaid.LessThan(totalDue) && !req.AllowPartial {
				return apperror.Validation("paid %s is less than the outstanding %s; set allow_partial to accept",
					totalPaid.StringFixed(2), totalDue.StringFixed(2))
			}

			// Oldest debt first, number as tiebreak for same-day sales.
			sort.Slice(sales, func(i, j int) bool {
				if sales[i].SaleDate.Equal(sales[j].SaleDate) {
					return sales[i].Number < sales[j].Number
				}
				return sales[i].SaleDate.Before(sales[j].SaleDate)
			})
			receipt.AmountDue = totalDue

			number, allocErr := s.allocator.Next(txCtx, DocTypeReceipt, time.Now())
			if allocErr != nil {
				return allocErr
			}
			receipt.Number = number

			remaining := totalPaid
			applied := decimal.Zero
			allocations := make([]model.ReceiptAllocation, 0, len(sales))
			for i := range sales {
				if remaining.LessThanOrEqual(decimal.Zero) {
					break
				}
				sale := &sales[i]
				if sale.OutstandingBalance.LessThanOrEqual(decimal.Zero) {
					continue
				}
				take := decimal.Min(remaining, sale.OutstandingBalance)
				allocations = append(allocations, model.ReceiptAllocation{
					SaleID:        sale.ID,
					BalanceBefore: sale.OutstandingBalance,
					AmountApplied: take,
				})
				sale.RecalculateCollection(take)
				if updateErr := s.saleRepo.Update(txCtx, sale); updateErr != nil {
					return updateErr
				}
				remaining = remaining.Sub(take)
				applied = applied.Add(take)
			}
			if applied.IsZero() {
				return apperror.Validation("the referenced sales have no outstanding balance")
			}

			receipt.AmountApplied = applied
			receipt.Change = remaining
			receipt.Shortfall = totalDue.Sub(applied)
			if createErr := s.receiptRepo.Create(txCtx, receipt); createErr != nil {
				return createErr
			}
			for i := range allocations {
				allocations[i].ReceiptID = receipt.ID
			}
			if allocErr := s.receiptRepo.CreateAllocations(txCtx, allocations); allocErr != nil {
				return allocErr
			}
			receipt.Allocations = allocations

			_, postErr := s.ledger.Post(txCtx, customerID, model.OriginReceipt, receipt.ID,
				model.LedgerCredit, applied, "receipt "+receipt.Number)
			return postErr
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("receipt created",
		zap.String("number", receipt.Number),
		zap.String("applied", receipt.AmountApplied.StringFixed(2)),
		zap.String("change", receipt.Change.StringFixed(2)))
	s.notify(receipt)
	return receipt, nil
}

// Void restores every allocated sale to its pre-receipt position and
// reverses the ledger credit. The receipt itself stays on file with its
// payment instruments intact.
func (s *receiptService) Void(ctx context.Context, id uuid.UUID, req VoidReceiptRequest) (*model.Receipt, error) {
	if req.Reason == "" {
		return nil, apperror.Validation("void reason is required")
	}

	var receipt *model.Receipt
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		receipt, findErr = s.receiptRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("receipt")
		}
		if receipt.Status != model.ReceiptActive {
			return apperror.Conflict("receipt %s is already voided", receipt.Number)
		}

		for _, allocation := range receipt.Allocations {
			sale, saleErr := s.saleRepo.FindByID(txCtx, allocation.SaleID)
			if saleErr != nil {
				return saleErr
			}
			sale.RecalculateCollection(allocation.AmountApplied.Neg())
			if updateErr := s.saleRepo.Update(txCtx, sale); updateErr != nil {
				return updateErr
			}
		}

		if reverseErr := s.ledger.Reverse(txCtx, model.OriginReceipt, receipt.ID,
			"void of receipt "+receipt.Number); reverseErr != nil {
			return reverseErr
		}

		receipt.Status = model.ReceiptVoided
		receipt.VoidReason = &req.Reason
		return s.receiptRepo.Update(txCtx, receipt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("receipt voided", zap.String("number", receipt.Number))
	s.notify(receipt)
	return receipt, nil
}

// CorrectAmount fixes a mistyped paid amount on an active receipt. A raise
// allocates the extra oldest-first; a reduction comes out of the change
// first, then deallocates starting from the most recent allocation. The
// instruments are left as recorded.
func (s *receiptService) CorrectAmount(ctx context.Context, id uuid.UUID, req CorrectReceiptRequest) (*model.Receipt, error) {
	corrected, err := decimal.NewFromString(req.CorrectedAmount)
	if err != nil {
		return nil, apperror.Validation("invalid corrected_amount: %v", err)
	}
	if corrected.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.Validation("corrected amount must be positive; void the receipt instead")
	}
	if req.Reason == "" {
		return nil, apperror.Validation("correction reason is required")
	}

	var receipt *model.Receipt
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		receipt, findErr = s.receiptRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("receipt")
		}
		if receipt.Status != model.ReceiptActive {
			return apperror.Conflict("receipt %s is voided and cannot be corrected", receipt.Number)
		}

		delta := corrected.Sub(receipt.AmountPaid)
		if delta.IsZero() {
			return apperror.Validation("corrected amount equals the recorded amount")
		}

		var appliedDelta decimal.Decimal
		var applyErr error
		if delta.IsPositive() {
			appliedDelta, applyErr = s.applyIncrease(txCtx, receipt, delta)
		} else {
			appliedDelta, applyErr = s.applyDecrease(txCtx, receipt, delta.Neg())
		}
		if applyErr != nil {
			return applyErr
		}

		receipt.AmountPaid = corrected
		receipt.AmountApplied = receipt.AmountApplied.Add(appliedDelta)
		receipt.Shortfall = decimal.Max(receipt.AmountDue.Sub(receipt.AmountApplied), decimal.Zero)
		receipt.CorrectionReason = &req.Reason
		if updateErr := s.receiptRepo.Update(txCtx, receipt); updateErr != nil {
			return updateErr
		}

		if appliedDelta.IsZero() {
			return nil
		}
		direction := model.LedgerCredit
		amount := appliedDelta
		if appliedDelta.IsNegative() {
			direction = model.LedgerDebit
			amount = appliedDelta.Neg()
		}
		_, postErr := s.ledger.Post(txCtx, receipt.CustomerID, model.OriginReceipt, receipt.ID,
			direction, amount, "correction of receipt "+receipt.Number+": "+req.Reason)
		return postErr
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("receipt corrected",
		zap.String("number", receipt.Number),
		zap.String("amount_paid", receipt.AmountPaid.StringFixed(2)))
	s.notify(receipt)
	return receipt, nil
}

// applyIncrease distributes extra money over the receipt's sales in the
// original allocation order, capped at each sale's current outstanding
// balance. Whatever cannot be applied becomes change.
func (s *receiptService) applyIncrease(ctx context.Context, receipt *model.Receipt, extra decimal.Decimal) (decimal.Decimal, error) {
	remaining := extra
	applied := decimal.Zero
	for i := range receipt.Allocations {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		allocation := &receipt.Allocations[i]
		sale, err := s.saleRepo.FindByID(ctx, allocation.SaleID)
		if err != nil {
			return decimal.Zero, err
		}
		if sale.OutstandingBalance.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := decimal.Min(remaining, sale.OutstandingBalance)
		allocation.AmountApplied = allocation.AmountApplied.Add(take)
		if err := s.receiptRepo.UpdateAllocation(ctx, allocation); err != nil {
			return decimal.Zero, err
		}
		sale.RecalculateCollection(take)
		if err := s.saleRepo.Update(ctx, sale); err != nil {
			return decimal.Zero, err
		}
		remaining = remaining.Sub(take)
		applied = applied.Add(take)
	}
	receipt.Change = receipt.Change.Add(remaining)
	return applied, nil
}

// applyDecrease takes the reduction out of the change first, then walks the
// allocations newest-first handing debt back to the sales.
func (s *receiptService) applyDecrease(ctx context.Context, receipt *model.Receipt, reduction decimal.Decimal) (decimal.Decimal, error) {
	fromChange := decimal.Min(reduction, receipt.Change)
	receipt.Change = receipt.Change.Sub(fromChange)
	remaining := reduction.Sub(fromChange)

	deapplied := decimal.Zero
	for i := len(receipt.Allocations) - 1; i >= 0 && remaining.GreaterThan(decimal.Zero); i-- {
		allocation := &receipt.Allocations[i]
		take := decimal.Min(remaining, allocation.AmountApplied)
		if take.LessThanOrEqual(decimal.Zero) {
			continue
		}
		allocation.AmountApplied = allocation.AmountApplied.Sub(take)
		if err := s.receiptRepo.UpdateAllocation(ctx, allocation); err != nil {
			return decimal.Zero, err
		}
		sale, err := s.saleRepo.FindByID(ctx, allocation.SaleID)
		if err != nil {
			return decimal.Zero, err
		}
		sale.RecalculateCollection(take.Neg())
		if err := s.saleRepo.Update(ctx, sale); err != nil {
			return decimal.Zero, err
		}
		remaining = remaining.Sub(take)
		deapplied = deapplied.Add(take)
	}
	if remaining.GreaterThan(decimal.Zero) {
		return decimal.Zero, apperror.Validation("correction exceeds the receipt's applied amount and change")
	}
	return deapplied.Neg(), nil
}

func (s *receiptService) Get(ctx context.Context, id uuid.UUID) (*model.Receipt, error) {
	receipt, err := s.receiptRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("receipt")
	}
	return receipt, nil
}

func (s *receiptService) List(ctx context.Context, customerID *uuid.UUID, page, limit int) ([]model.Receipt, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.receiptRepo.List(ctx, customerID, page, limit)
}

func (s *receiptService) notify(receipt *model.Receipt) {
	if s.hub == nil {
		return
	}
	s.hub.Notify("receipt.updated", map[string]interface{}{
		"receipt_id": receipt.ID.String(),
		"number":     receipt.Number,
		"status":     receipt.Status,
	})
}

// buildPayments validates the instrument split against the customer's
// accepted payment methods and the per-method required fields.
func buildPayments(customer *model.Customer, reqs []PaymentInstrumentRequest) ([]model.ReceiptPayment, decimal.Decimal, error) {
	payments := make([]model.ReceiptPayment, 0, len(reqs))
	total := decimal.Zero
	for _, r := range reqs {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, decimal.Zero, apperror.Validation("invalid payment amount: %v", err)
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil, decimal.Zero, apperror.Validation("payment amount must be positive")
		}
		if !customer.AcceptsInstrument(r.Method) {
			return nil, decimal.Zero, apperror.Validation("customer %s does not accept %s payments", customer.Name, r.Method)
		}

		payment := model.ReceiptPayment{Method: r.Method, Amount: amount}
		switch r.Method {
		case model.PaymentMethodCheck:
			if r.CheckNumber == "" || r.BankName == "" || r.HolderName == "" || r.DueDate == "" {
				return nil, decimal.Zero, apperror.Validation("check payments require check_number, bank_name, holder_name and due_date")
			}
			dueDate, parseErr := time.Parse(time.RFC3339, r.DueDate)
			if parseErr != nil {
				return nil, decimal.Zero, apperror.Validation("invalid due_date: %v", parseErr)
			}
			payment.CheckNumber = r.CheckNumber
			payment.BankName = r.BankName
			payment.HolderName = r.HolderName
			payment.DueDate = &dueDate
		case model.PaymentMethodTransfer:
			if r.Reference == "" {
				return nil, decimal.Zero, apperror.Validation("transfer payments require a reference")
			}
			payment.Reference = r.Reference
		case model.PaymentMethodCard:
			if len(r.CardLast4) != 4 || r.CardAuthorization == "" {
				return nil, decimal.Zero, apperror.Validation("card payments require card_last4 and card_authorization")
			}
			payment.CardLast4 = r.CardLast4
			payment.CardAuthorization = r.CardAuthorization
		}
		payments = append(payments, payment)
		total = total.Add(amount)
	}
	return payments, total, nil
}
