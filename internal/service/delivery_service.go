package service

import (
	"context"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- DTOs ---

type GenerateDeliveryNoteRequest struct {
	SaleID          string `json:"sale_id" binding:"required"`
	DeliveryAddress string `json:"delivery_address" binding:"required"`
	Courier         string `json:"courier"`
}

type ChangeDeliveryStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending in_transit delivered returned cancelled"`
	// ReceiverName is mandatory when moving to delivered, Reason when
	// moving to cancelled.
	ReceiverName string `json:"receiver_name"`
	Reason       string `json:"reason"`
}

type DeliveredQuantityRequest struct {
	ItemID            string `json:"item_id" binding:"required"`
	QuantityDelivered int    `json:"quantity_delivered" binding:"min=0"`
}

type UpdateDeliveredQuantitiesRequest struct {
	Items []DeliveredQuantityRequest `json:"items" binding:"required,min=1,dive"`
}

// --- Interface ---

// DeliveryService manages delivery notes and keeps the owning sale's
// delivery axis in step with them.
type DeliveryService interface {
	GenerateFromSale(ctx context.Context, req GenerateDeliveryNoteRequest) (*model.DeliveryNote, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, req ChangeDeliveryStatusRequest) (*model.DeliveryNote, error)
	UpdateDeliveredQuantities(ctx context.Context, id uuid.UUID, req UpdateDeliveredQuantitiesRequest) (*model.DeliveryNote, error)
	Get(ctx context.Context, id uuid.UUID) (*model.DeliveryNote, error)
	List(ctx context.Context, status string, page, limit int) ([]model.DeliveryNote, int64, error)
}

type deliveryService struct {
	deliveryRepo repository.DeliveryNoteRepository
	saleRepo     repository.SaleRepository
	stock        StockService
	allocator    NumberAllocator
	txManager    repository.TransactionManager
	hub          *ws.Hub
	logger       *zap.Logger
}

func NewDeliveryService(
	deliveryRepo repository.DeliveryNoteRepository,
	saleRepo repository.SaleRepository,
	stock StockService,
	allocator NumberAllocator,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	logger *zap.Logger,
) DeliveryService {
	return &deliveryService{
		deliveryRepo: deliveryRepo,
		saleRepo:     saleRepo,
		stock:        stock,
		allocator:    allocator,
		txManager:    txManager,
		hub:          hub,
		logger:       logger,
	}
}

// --- Implementation ---

// GenerateFromSale issues a delivery note for a confirmed sale. One
// non-cancelled note per sale; the note starts pending with delivered
// quantities defaulted to the requested ones.
func (s *deliveryService) GenerateFromSale(ctx context.Context, req GenerateDeliveryNoteRequest) (*model.DeliveryNote, error) {
	saleID, err := uuid.Parse(req.SaleID)
	if err != nil {
		return nil, apperror.Validation("invalid sale_id: %v", err)
	}

	sale, err := s.saleRepo.FindByID(ctx, saleID)
	if err != nil {
		return nil, apperror.NotFound("sale")
	}
	if sale.ConfirmationState != model.SaleConfirmed {
		return nil, apperror.Conflict("delivery notes require a confirmed sale, sale %s is %s",
			sale.Number, sale.ConfirmationState)
	}
	active, err := s.deliveryRepo.CountActiveBySale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, apperror.Conflict("sale %s already has an active delivery note", sale.Number)
	}

	items := make([]model.DeliveryNoteItem, 0, len(sale.Items))
	for _, line := range sale.Items {
		items = append(items, model.DeliveryNoteItem{
			ProductID:         line.ProductID,
			Description:       line.Description,
			QuantityRequested: line.Quantity,
			QuantityDelivered: line.Quantity,
		})
	}

	note := &model.DeliveryNote{
		SaleID:          saleID,
		Status:          model.DeliveryNotePending,
		DeliveryAddress: req.DeliveryAddress,
		Courier:         req.Courier,
		Items:           items,
	}

	err = withNumberRetry(ctx, 3, func(ctx context.Context) error {
		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			number, allocErr := s.allocator.Next(txCtx, DocTypeDeliveryNote, time.Now())
			if allocErr != nil {
				return allocErr
			}
			note.Number = number
			if createErr := s.deliveryRepo.Create(txCtx, note); createErr != nil {
				return createErr
			}
			sale.DeliveryState = model.DeliveryIssued
			sale.DeliveryNoteID = &note.ID
			return s.saleRepo.Update(txCtx, sale)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("delivery note generated",
		zap.String("number", note.Number),
		zap.String("sale", sale.Number))
	s.notify(note)
	return note, nil
}

func (s *deliveryService) ChangeStatus(ctx context.Context, id uuid.UUID, req ChangeDeliveryStatusRequest) (*model.DeliveryNote, error) {
	var note *model.DeliveryNote
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		note, findErr = s.deliveryRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("delivery note")
		}
		if !model.CanTransitionDelivery(note.Status, req.Status) {
			return apperror.Conflict("delivery note %s cannot move from %s to %s",
				note.Number, note.Status, req.Status)
		}

		sale, findErr := s.saleRepo.FindByID(txCtx, note.SaleID)
		if findErr != nil {
			return apperror.NotFound("sale")
		}

		switch req.Status {
		case model.DeliveryNoteDelivered:
			if req.ReceiverName == "" {
				return apperror.Validation("receiver_name is required to mark a delivery note delivered")
			}
			now := time.Now()
			note.ReceiverName = req.ReceiverName
			note.DeliveredAt = &now
			sale.DeliveryState = model.DeliveryDone
			sale.DeliveredAt = &now
			if err := s.stock.Deduct(txCtx, sale.ID, note.Items); err != nil {
				return err
			}
		case model.DeliveryNoteCancelled:
			if req.Reason == "" {
				return apperror.Validation("reason is required to cancel a delivery note")
			}
			note.CancellationReason = req.Reason
			sale.DeliveryState = model.DeliveryNone
			sale.DeliveryNoteID = nil
		}

		note.Status = req.Status
		if err := s.deliveryRepo.Update(txCtx, note); err != nil {
			return err
		}
		return s.saleRepo.Update(txCtx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("delivery note status changed",
		zap.String("number", note.Number),
		zap.String("status", note.Status))
	s.notify(note)
	return note, nil
}

// UpdateDeliveredQuantities records partial deliveries before the terminal
// transition. It never changes the status itself.
func (s *deliveryService) UpdateDeliveredQuantities(ctx context.Context, id uuid.UUID, req UpdateDeliveredQuantitiesRequest) (*model.DeliveryNote, error) {
	var note *model.DeliveryNote
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		note, findErr = s.deliveryRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("delivery note")
		}
		if note.Status != model.DeliveryNotePending && note.Status != model.DeliveryNoteInTransit {
			return apperror.Conflict("quantities can only change while the note is pending or in transit, note %s is %s",
				note.Number, note.Status)
		}

		byID := make(map[uuid.UUID]*model.DeliveryNoteItem, len(note.Items))
		for i := range note.Items {
			byID[note.Items[i].ID] = &note.Items[i]
		}
		changed := make([]model.DeliveryNoteItem, 0, len(req.Items))
		for _, r := range req.Items {
			itemID, parseErr := uuid.Parse(r.ItemID)
			if parseErr != nil {
				return apperror.Validation("invalid item_id: %v", parseErr)
			}
			item, ok := byID[itemID]
			if !ok {
				return apperror.NotFound("delivery note item")
			}
			if r.QuantityDelivered < 0 || r.QuantityDelivered > item.QuantityRequested {
				return apperror.Validation("delivered quantity for %s must be between 0 and %d",
					item.Description, item.QuantityRequested)
			}
			item.QuantityDelivered = r.QuantityDelivered
			changed = append(changed, *item)
		}
		return s.deliveryRepo.UpdateItems(txCtx, changed)
	})
	if err != nil {
		return nil, err
	}

	s.notify(note)
	return note, nil
}

func (s *deliveryService) Get(ctx context.Context, id uuid.UUID) (*model.DeliveryNote, error) {
	note, err := s.deliveryRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("delivery note")
	}
	return note, nil
}

func (s *deliveryService) List(ctx context.Context, status string, page, limit int) ([]model.DeliveryNote, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.deliveryRepo.List(ctx, status, page, limit)
}

func (s *deliveryService) notify(note *model.DeliveryNote) {
	if s.hub == nil {
		return
	}
	s.hub.Notify("delivery.updated", map[string]interface{}{
		"delivery_note_id": note.ID.String(),
		"number":           note.Number,
		"status":           note.Status,
	})
}
