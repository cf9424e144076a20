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

// --- DTOs ---

type SaleItemRequest struct {
	ProductID   string `json:"product_id" binding:"required"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice   string `json:"unit_price"`   // empty: catalog price at add time
	DiscountPct string `json:"discount_pct"` // empty: no discount
}

type CreateSaleRequest struct {
	CustomerID       string            `json:"customer_id" binding:"required"`
	SaleDate         string            `json:"sale_date"` // RFC3339, defaults to now
	ApplyTax         *bool             `json:"apply_tax"`
	CollectionTiming string            `json:"collection_timing" binding:"omitempty,oneof=advance on_delivery deferred"`
	Note             string            `json:"note"`
	Items            []SaleItemRequest `json:"items" binding:"required,min=1,dive"`
}

type UpdateSaleRequest struct {
	ApplyTax         *bool             `json:"apply_tax"`
	CollectionTiming string            `json:"collection_timing" binding:"omitempty,oneof=advance on_delivery deferred"`
	Note             *string           `json:"note"`
	Items            []SaleItemRequest `json:"items" binding:"omitempty,min=1,dive"`
}

// --- Interface ---

// SaleService owns the three-axis sale state machine. Creation has no
// financial effect; the ledger debit is posted at confirmation so drafts can
// be discarded for free.
type SaleService interface {
	Create(ctx context.Context, req CreateSaleRequest) (*model.Sale, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, req UpdateSaleRequest) (*model.Sale, error)
	Confirm(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	List(ctx context.Context, filter repository.SaleListFilter) ([]model.Sale, int64, error)
}

type saleService struct {
	saleRepo     repository.SaleRepository
	customerRepo repository.CustomerRepository
	productRepo  repository.ProductRepository
	ledger       LedgerService
	stock        StockService
	allocator    NumberAllocator
	txManager    repository.TransactionManager
	logger       *zap.Logger
}

func NewSaleService(
	saleRepo repository.SaleRepository,
	customerRepo repository.CustomerRepository,
	productRepo repository.ProductRepository,
	ledger LedgerService,
	stock StockService,
	allocator NumberAllocator,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) SaleService {
	return &saleService{
		saleRepo:     saleRepo,
		customerRepo: customerRepo,
		productRepo:  productRepo,
		ledger:       ledger,
		stock:        stock,
		allocator:    allocator,
		txManager:    txManager,
		logger:       logger,
	}
}

// --- Implementation ---

func (s *saleService) Create(ctx context.Context, req CreateSaleRequest) (*model.Sale, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, apperror.Validation("invalid customer_id: %v", err)
	}
	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return nil, apperror.NotFound("customer")
	}
	if !customer.IsActive {
		return nil, apperror.Validation("customer %s is inactive", customer.Name)
	}

	saleDate := time.Now()
	if req.SaleDate != "" {
		saleDate, err = time.Parse(time.RFC3339, req.SaleDate)
		if err != nil {
			return nil, apperror.Validation("invalid sale_date: %v", err)
		}
	}

	items, total, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	sale := &model.Sale{
		SaleDate:           saleDate,
		CustomerID:         customerID,
		ApplyTax:           true,
		CollectionTiming:   model.TimingDeferred,
		ConfirmationState:  model.SaleDraft,
		CollectionState:    model.CollectionNone,
		DeliveryState:      model.DeliveryNone,
		Items:              items,
		Total:              total,
		AmountCollected:    decimal.Zero,
		OutstandingBalance: total,
		Note:               req.Note,
	}
	if req.ApplyTax != nil {
		sale.ApplyTax = *req.ApplyTax
	}
	if req.CollectionTiming != "" {
		sale.CollectionTiming = req.CollectionTiming
	}

	err = withNumberRetry(ctx, 3, func(ctx context.Context) error {
		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			number, allocErr := s.allocator.Next(txCtx, DocTypeSale, sale.SaleDate)
			if allocErr != nil {
				return allocErr
			}
			sale.Number = number
			return s.saleRepo.Create(txCtx, sale)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale created",
		zap.String("number", sale.Number),
		zap.String("customer_id", customerID.String()),
		zap.String("total", total.StringFixed(2)))
	return sale, nil
}

func (s *saleService) UpdateDraft(ctx context.Context, id uuid.UUID, req UpdateSaleRequest) (*model.Sale, error) {
	var sale *model.Sale
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		sale, findErr = s.saleRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("sale")
		}
		if sale.ConfirmationState != model.SaleDraft {
			return apperror.Conflict("only draft sales can be edited, sale is %s", sale.ConfirmationState)
		}

		if req.ApplyTax != nil {
			sale.ApplyTax = *req.ApplyTax
		}
		if req.CollectionTiming != "" {
			sale.CollectionTiming = req.CollectionTiming
		}
		if req.Note != nil {
			sale.Note = *req.Note
		}
		if len(req.Items) > 0 {
			items, total, buildErr := s.buildItems(txCtx, req.Items)
			if buildErr != nil {
				return buildErr
			}
			if replaceErr := s.saleRepo.ReplaceItems(txCtx, sale, items); replaceErr != nil {
				return replaceErr
			}
			sale.Total = total
			// Drafts can already carry collections (advance timing), so the
			// outstanding balance and collection axis are re-derived, not reset.
			sale.RecalculateCollection(decimal.Zero)
		}
		return s.saleRepo.Update(txCtx, sale)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// Confirm moves a draft to confirmed and posts the ledger debit for the
// full sale total. Advance-timing sales must already be fully collected.
func (s *saleService) Confirm(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var sale *model.Sale
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		sale, findErr = s.saleRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("sale")
		}
		if sale.ConfirmationState != model.SaleDraft {
			return apperror.Conflict("sale %s is already %s", sale.Number, sale.ConfirmationState)
		}
		if sale.CollectionTiming == model.TimingAdvance && sale.CollectionState != model.CollectionFull {
			return apperror.Conflict("advance-payment sale %s must be fully collected before confirmation", sale.Number)
		}
		if len(sale.Items) == 0 {
			return apperror.Validation("sale %s has no items", sale.Number)
		}

		sale.ConfirmationState = model.SaleConfirmed
		if err := s.saleRepo.Update(txCtx, sale); err != nil {
			return err
		}

		if _, err := s.ledger.Post(txCtx, sale.CustomerID, model.OriginSale, sale.ID,
			model.LedgerDebit, sale.Total, "sale "+sale.Number); err != nil {
			return err
		}
		return s.stock.Reserve(txCtx, sale.ID, sale.Items)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale confirmed", zap.String("number", sale.Number))
	return sale, nil
}

// Cancel is only legal before delivery and before any collection. It
// reverses the confirmation debit and releases reserved stock.
func (s *saleService) Cancel(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var sale *model.Sale
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		sale, findErr = s.saleRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("sale")
		}
		if sale.ConfirmationState == model.SaleCancelled {
			return apperror.Conflict("sale %s is already cancelled", sale.Number)
		}
		if sale.DeliveryState == model.DeliveryDone {
			return apperror.Conflict("sale %s has been delivered and cannot be cancelled", sale.Number)
		}
		if sale.AmountCollected.GreaterThan(decimal.Zero) {
			return apperror.Conflict("sale %s has collected payments; void the receipts first", sale.Number)
		}

		wasConfirmed := sale.ConfirmationState == model.SaleConfirmed
		sale.ConfirmationState = model.SaleCancelled
		if err := s.saleRepo.Update(txCtx, sale); err != nil {
			return err
		}

		if wasConfirmed {
			if err := s.ledger.Reverse(txCtx, model.OriginSale, sale.ID, "cancellation of sale "+sale.Number); err != nil {
				return err
			}
			if err := s.stock.Release(txCtx, sale.ID, sale.Items); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale cancelled", zap.String("number", sale.Number))
	return sale, nil
}

func (s *saleService) Get(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	sale, err := s.saleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("sale")
	}
	return sale, nil
}

func (s *saleService) List(ctx context.Context, filter repository.SaleListFilter) ([]model.Sale, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.saleRepo.List(ctx, filter)
}

// buildItems resolves products, applies catalog prices where the request
// omits a unit price and computes the line subtotals.
func (s *saleService) buildItems(ctx context.Context, reqs []SaleItemRequest) ([]model.SaleItem, decimal.Decimal, error) {
	items := make([]model.SaleItem, 0, len(reqs))
	total := decimal.Zero
	for _, r := range reqs {
		productID, err := uuid.Parse(r.ProductID)
		if err != nil {
			return nil, decimal.Zero, apperror.Validation("invalid product_id: %v", err)
		}
		product, err := s.productRepo.FindByID(ctx, productID)
		if err != nil {
			return nil, decimal.Zero, apperror.NotFound("product")
		}

		unitPrice := product.UnitPrice
		if r.UnitPrice != "" {
			unitPrice, err = decimal.NewFromString(r.UnitPrice)
			if err != nil {
				return nil, decimal.Zero, apperror.Validation("invalid unit_price: %v", err)
			}
		}
		discount := decimal.Zero
		if r.DiscountPct != "" {
			discount, err = decimal.NewFromString(r.DiscountPct)
			if err != nil {
				return nil, decimal.Zero, apperror.Validation("invalid discount_pct: %v", err)
			}
			if discount.IsNegative() || discount.GreaterThan(decimal.NewFromInt(100)) {
				return nil, decimal.Zero, apperror.Validation("discount_pct must be between 0 and 100")
			}
		}

		description := r.Description
		if description == "" {
			description = product.Name
		}
		item := model.SaleItem{
			ProductID:   productID,
			Description: description,
			Quantity:    r.Quantity,
			UnitPrice:   unitPrice,
			DiscountPct: discount,
		}
		item.Subtotal = item.ComputeSubtotal()
		items = append(items, item)
		total = total.Add(item.Subtotal)
	}
	return items, total, nil
}
