package service

import (
	"context"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
)

// StockService is the reservation side of the catalog collaborator: it
// reserves stock on sale confirmation, releases it on cancellation and
// deducts it when goods physically leave on a delivery note. It always runs
// inside the caller's document transaction.
type StockService interface {
	Reserve(ctx context.Context, saleID uuid.UUID, items []model.SaleItem) error
	Release(ctx context.Context, saleID uuid.UUID, items []model.SaleItem) error
	Deduct(ctx context.Context, saleID uuid.UUID, items []model.DeliveryNoteItem) error
}

type stockService struct {
	productRepo repository.ProductRepository
	hub         *ws.Hub
}

func NewStockService(productRepo repository.ProductRepository, hub *ws.Hub) StockService {
	return &stockService{productRepo: productRepo, hub: hub}
}

func (s *stockService) Reserve(ctx context.Context, saleID uuid.UUID, items []model.SaleItem) error {
	for _, item := range items {
		if err := s.productRepo.AdjustReserved(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
		movement := &model.StockMovement{
			ProductID: item.ProductID,
			SaleID:    saleID,
			Kind:      model.StockMovementReserve,
			Quantity:  item.Quantity,
		}
		if err := s.productRepo.RecordMovement(ctx, movement); err != nil {
			return err
		}
	}
	s.notify(saleID, model.StockMovementReserve)
	return nil
}

func (s *stockService) Release(ctx context.Context, saleID uuid.UUID, items []model.SaleItem) error {
	for _, item := range items {
		if err := s.productRepo.AdjustReserved(ctx, item.ProductID, -item.Quantity); err != nil {
			return err
		}
		movement := &model.StockMovement{
			ProductID: item.ProductID,
			SaleID:    saleID,
			Kind:      model.StockMovementRelease,
			Quantity:  item.Quantity,
		}
		if err := s.productRepo.RecordMovement(ctx, movement); err != nil {
			return err
		}
	}
	s.notify(saleID, model.StockMovementRelease)
	return nil
}

func (s *stockService) Deduct(ctx context.Context, saleID uuid.UUID, items []model.DeliveryNoteItem) error {
	for _, item := range items {
		product, err := s.productRepo.FindByID(ctx, item.ProductID)
		if err != nil {
			return err
		}
		product.Reserved -= item.QuantityRequested
		product.CurrentStock -= item.QuantityDelivered
		if err := s.productRepo.Update(ctx, product); err != nil {
			return err
		}
		movement := &model.StockMovement{
			ProductID: item.ProductID,
			SaleID:    saleID,
			Kind:      model.StockMovementDeduct,
			Quantity:  item.QuantityDelivered,
		}
		if err := s.productRepo.RecordMovement(ctx, movement); err != nil {
			return err
		}
	}
	s.notify(saleID, model.StockMovementDeduct)
	return nil
}

func (s *stockService) notify(saleID uuid.UUID, kind string) {
	if s.hub == nil {
		return
	}
	s.hub.Notify("stock.changed", map[string]interface{}{
		"sale_id": saleID.String(),
		"kind":    kind,
	})
}
