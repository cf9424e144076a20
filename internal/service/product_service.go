package service

import (
	"context"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateProductRequest struct {
	SKU          string `json:"sku" binding:"required"`
	Name         string `json:"name" binding:"required"`
	UnitPrice    string `json:"unit_price" binding:"required"`
	CurrentStock int    `json:"current_stock" binding:"min=0"`
}

type UpdateProductRequest struct {
	Name         *string `json:"name"`
	UnitPrice    *string `json:"unit_price"`
	CurrentStock *int    `json:"current_stock" binding:"omitempty,min=0"`
}

type ProductService interface {
	Create(ctx context.Context, req CreateProductRequest) (*model.Product, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateProductRequest) (*model.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, page, limit int) ([]model.Product, int64, error)
}

type productService struct {
	productRepo repository.ProductRepository
}

func NewProductService(productRepo repository.ProductRepository) ProductService {
	return &productService{productRepo: productRepo}
}

func (s *productService) Create(ctx context.Context, req CreateProductRequest) (*model.Product, error) {
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		return nil, apperror.Validation("invalid unit_price: %v", err)
	}
	if unitPrice.IsNegative() {
		return nil, apperror.Validation("unit_price must not be negative")
	}

	product := &model.Product{
		SKU:          req.SKU,
		Name:         req.Name,
		UnitPrice:    unitPrice,
		CurrentStock: req.CurrentStock,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *productService) Update(ctx context.Context, id uuid.UUID, req UpdateProductRequest) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("product")
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.UnitPrice != nil {
		unitPrice, parseErr := decimal.NewFromString(*req.UnitPrice)
		if parseErr != nil {
			return nil, apperror.Validation("invalid unit_price: %v", parseErr)
		}
		if unitPrice.IsNegative() {
			return nil, apperror.Validation("unit_price must not be negative")
		}
		product.UnitPrice = unitPrice
	}
	if req.CurrentStock != nil {
		product.CurrentStock = *req.CurrentStock
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *productService) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("product")
	}
	return product, nil
}

func (s *productService) List(ctx context.Context, page, limit int) ([]model.Product, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.productRepo.List(ctx, page, limit)
}
