package service

import (
	"context"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Credit status thresholds, percent of the credit limit.
const (
	CreditStatusNormal   = "normal"
	CreditStatusElevated = "elevated"
	CreditStatusAtRisk   = "at_risk"
	CreditStatusExceeded = "exceeded"
)

// CreditSummary is the advisory credit position of a customer. It never
// blocks posting: operators may legitimately override the limit.
type CreditSummary struct {
	CustomerID         string          `json:"customer_id"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	Balance            decimal.Decimal `json:"balance"`
	Available          decimal.Decimal `json:"available"`
	UtilizationPercent decimal.Decimal `json:"utilization_percent"`
	Status             string          `json:"status"`
}

// AgingBucket partitions outstanding sales by age in days.
type AgingBucket struct {
	Label  string          `json:"label"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// AdjustmentRequest is a manual ledger adjustment. Concept is mandatory for
// the audit trail.
type AdjustmentRequest struct {
	Kind    string `json:"kind" binding:"required,oneof=ajuste_cargo ajuste_descuento"`
	Amount  string `json:"amount" binding:"required"`
	Concept string `json:"concept" binding:"required"`
}

// LedgerService owns the append-only per-customer ledger. Post and Reverse
// are only called inside a document transaction; no other code path writes
// a customer balance.
type LedgerService interface {
	Post(ctx context.Context, customerID uuid.UUID, originType string, originID uuid.UUID, direction string, amount decimal.Decimal, concept string) (*model.LedgerEntry, error)
	Reverse(ctx context.Context, originType string, originID uuid.UUID, concept string) error
	Summary(ctx context.Context, customerID uuid.UUID) (CreditSummary, error)
	Aging(ctx context.Context, customerID uuid.UUID) ([]AgingBucket, error)
	Adjust(ctx context.Context, customerID uuid.UUID, req AdjustmentRequest) (*model.LedgerEntry, error)
	Entries(ctx context.Context, customerID uuid.UUID, page, limit int) ([]model.LedgerEntry, int64, error)
}

type ledgerService struct {
	ledgerRepo   repository.LedgerRepository
	customerRepo repository.CustomerRepository
	saleRepo     repository.SaleRepository
	txManager    repository.TransactionManager
	logger       *zap.Logger
}

func NewLedgerService(
	ledgerRepo repository.LedgerRepository,
	customerRepo repository.CustomerRepository,
	saleRepo repository.SaleRepository,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) LedgerService {
	return &ledgerService{
		ledgerRepo:   ledgerRepo,
		customerRepo: customerRepo,
		saleRepo:     saleRepo,
		txManager:    txManager,
		logger:       logger,
	}
}

func (s *ledgerService) Post(ctx context.Context, customerID uuid.UUID, originType string, originID uuid.UUID, direction string, amount decimal.Decimal, concept string) (*model.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.Validation("ledger amount must be positive")
	}

	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return nil, apperror.NotFound("customer")
	}

	entry := &model.LedgerEntry{
		CustomerID: customerID,
		OriginType: originType,
		OriginID:   originID,
		Direction:  direction,
		Amount:     amount,
		Concept:    concept,
	}
	newBalance := customer.CurrentBalance.Add(entry.SignedAmount())
	entry.Balance = newBalance

	if err := s.ledgerRepo.Append(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.customerRepo.UpdateBalance(ctx, customerID, newBalance); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *ledgerService) Reverse(ctx context.Context, originType string, originID uuid.UUID, concept string) error {
	entries, err := s.ledgerRepo.FindActiveByOrigin(ctx, originType, originID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return apperror.Conflict("no active ledger entry for %s %s", originType, originID)
	}

	customer, err := s.customerRepo.FindByID(ctx, entries[0].CustomerID)
	if err != nil {
		return apperror.NotFound("customer")
	}

	balance := customer.CurrentBalance
	voided := make([]uuid.UUID, 0, len(entries)*2)
	for _, original := range entries {
		offset := &model.LedgerEntry{
			CustomerID: original.CustomerID,
			OriginType: originType,
			OriginID:   originID,
			Amount:     original.Amount,
			Concept:    concept,
		}
		if original.Direction == model.LedgerDebit {
			offset.Direction = model.LedgerCredit
		} else {
			offset.Direction = model.LedgerDebit
		}
		balance = balance.Add(offset.SignedAmount())
		offset.Balance = balance

		if err := s.ledgerRepo.Append(ctx, offset); err != nil {
			return err
		}
		voided = append(voided, original.ID, offset.ID)
	}

	// The reversed pair nets to zero; flagging both keeps the non-voided
	// sum equal to the materialized balance.
	if err := s.ledgerRepo.MarkVoided(ctx, voided); err != nil {
		return err
	}
	return s.customerRepo.UpdateBalance(ctx, entries[0].CustomerID, balance)
}

func (s *ledgerService) Summary(ctx context.Context, customerID uuid.UUID) (CreditSummary, error) {
	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return CreditSummary{}, apperror.NotFound("customer")
	}

	summary := CreditSummary{
		CustomerID:         customer.ID.String(),
		CreditLimit:        customer.CreditLimit,
		Balance:            customer.CurrentBalance,
		Available:          customer.CreditLimit.Sub(customer.CurrentBalance),
		UtilizationPercent: decimal.Zero,
		Status:             CreditStatusNormal,
	}

	if customer.CreditLimit.GreaterThan(decimal.Zero) {
		summary.UtilizationPercent = customer.CurrentBalance.
			Div(customer.CreditLimit).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	} else if customer.CurrentBalance.GreaterThan(decimal.Zero) {
		summary.Status = CreditStatusExceeded
		return summary, nil
	}

	util := summary.UtilizationPercent
	switch {
	case util.GreaterThanOrEqual(decimal.NewFromInt(100)):
		summary.Status = CreditStatusExceeded
	case util.GreaterThanOrEqual(decimal.NewFromInt(80)):
		summary.Status = CreditStatusAtRisk
	case util.GreaterThanOrEqual(decimal.NewFromInt(60)):
		summary.Status = CreditStatusElevated
	}
	return summary, nil
}

func (s *ledgerService) Aging(ctx context.Context, customerID uuid.UUID) ([]AgingBucket, error) {
	sales, err := s.saleRepo.OutstandingByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	buckets := []AgingBucket{
		{Label: "0-30", Amount: decimal.Zero},
		{Label: "31-60", Amount: decimal.Zero},
		{Label: "61-90", Amount: decimal.Zero},
		{Label: "90+", Amount: decimal.Zero},
	}

	now := time.Now()
	for _, sale := range sales {
		days := int(now.Sub(sale.SaleDate).Hours() / 24)
		var idx int
		switch {
		case days <= 30:
			idx = 0
		case days <= 60:
			idx = 1
		case days <= 90:
			idx = 2
		default:
			idx = 3
		}
		buckets[idx].Count++
		buckets[idx].Amount = buckets[idx].Amount.Add(sale.OutstandingBalance)
	}
	return buckets, nil
}

func (s *ledgerService) Adjust(ctx context.Context, customerID uuid.UUID, req AdjustmentRequest) (*model.LedgerEntry, error) {
	if req.Kind != model.AdjustmentCharge && req.Kind != model.AdjustmentDiscount {
		return nil, apperror.Validation("unknown adjustment kind %q", req.Kind)
	}
	if req.Concept == "" {
		return nil, apperror.Validation("adjustment concept is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, apperror.Validation("invalid amount: %v", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.Validation("adjustment amount must be positive")
	}

	direction := model.LedgerDebit
	if req.Kind == model.AdjustmentDiscount {
		direction = model.LedgerCredit
	}

	var entry *model.LedgerEntry
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var postErr error
		entry, postErr = s.Post(txCtx, customerID, model.OriginAdjustment, uuid.New(), direction, amount, req.Kind+": "+req.Concept)
		return postErr
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ledger adjustment posted",
		zap.String("customer_id", customerID.String()),
		zap.String("kind", req.Kind),
		zap.String("amount", amount.StringFixed(2)))
	return entry, nil
}

func (s *ledgerService) Entries(ctx context.Context, customerID uuid.UUID, page, limit int) ([]model.LedgerEntry, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.ledgerRepo.ListByCustomer(ctx, customerID, page, limit)
}
