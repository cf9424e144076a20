package service

import (
	"context"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateCustomerRequest struct {
	Name         string `json:"name" binding:"required"`
	TaxID        string `json:"tax_id"`
	TaxCondition string `json:"tax_condition" binding:"omitempty,oneof=responsable_inscripto monotributo consumidor_final exento"`
	Email        string `json:"email" binding:"omitempty,email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	CreditLimit  string `json:"credit_limit"`

	AcceptsCash     *bool `json:"accepts_cash"`
	AcceptsCheck    *bool `json:"accepts_check"`
	AcceptsTransfer *bool `json:"accepts_transfer"`
	AcceptsCard     *bool `json:"accepts_card"`
}

type UpdateCustomerRequest struct {
	Name         *string `json:"name"`
	TaxID        *string `json:"tax_id"`
	TaxCondition *string `json:"tax_condition" binding:"omitempty,oneof=responsable_inscripto monotributo consumidor_final exento"`
	Email        *string `json:"email" binding:"omitempty,email"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	CreditLimit  *string `json:"credit_limit"`
	IsActive     *bool   `json:"is_active"`

	AcceptsCash     *bool `json:"accepts_cash"`
	AcceptsCheck    *bool `json:"accepts_check"`
	AcceptsTransfer *bool `json:"accepts_transfer"`
	AcceptsCard     *bool `json:"accepts_card"`
}

type CustomerService interface {
	Create(ctx context.Context, req CreateCustomerRequest) (*model.Customer, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateCustomerRequest) (*model.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	List(ctx context.Context, page, limit int) ([]model.Customer, int64, error)
}

type customerService struct {
	customerRepo repository.CustomerRepository
}

func NewCustomerService(customerRepo repository.CustomerRepository) CustomerService {
	return &customerService{customerRepo: customerRepo}
}

func (s *customerService) Create(ctx context.Context, req CreateCustomerRequest) (*model.Customer, error) {
	creditLimit := decimal.Zero
	if req.CreditLimit != "" {
		var err error
		creditLimit, err = decimal.NewFromString(req.CreditLimit)
		if err != nil {
			return nil, apperror.Validation("invalid credit_limit: %v", err)
		}
		if creditLimit.IsNegative() {
			return nil, apperror.Validation("credit_limit must not be negative")
		}
	}

	customer := &model.Customer{
		Name:            req.Name,
		TaxID:           req.TaxID,
		TaxCondition:    model.TaxConditionFinal,
		Email:           req.Email,
		Phone:           req.Phone,
		Address:         req.Address,
		CreditLimit:     creditLimit,
		CurrentBalance:  decimal.Zero,
		AcceptsCash:     true,
		AcceptsCheck:    true,
		AcceptsTransfer: true,
		AcceptsCard:     true,
		IsActive:        true,
	}
	if req.TaxCondition != "" {
		customer.TaxCondition = req.TaxCondition
	}
	if req.AcceptsCash != nil {
		customer.AcceptsCash = *req.AcceptsCash
	}
	if req.AcceptsCheck != nil {
		customer.AcceptsCheck = *req.AcceptsCheck
	}
	if req.AcceptsTransfer != nil {
		customer.AcceptsTransfer = *req.AcceptsTransfer
	}
	if req.AcceptsCard != nil {
		customer.AcceptsCard = *req.AcceptsCard
	}

	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *customerService) Update(ctx context.Context, id uuid.UUID, req UpdateCustomerRequest) (*model.Customer, error) {
	customer, err := s.customerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("customer")
	}

	if req.Name != nil {
		customer.Name = *req.Name
	}
	if req.TaxID != nil {
		customer.TaxID = *req.TaxID
	}
	if req.TaxCondition != nil {
		customer.TaxCondition = *req.TaxCondition
	}
	if req.Email != nil {
		customer.Email = *req.Email
	}
	if req.Phone != nil {
		customer.Phone = *req.Phone
	}
	if req.Address != nil {
		customer.Address = *req.Address
	}
	if req.CreditLimit != nil {
		creditLimit, parseErr := decimal.NewFromString(*req.CreditLimit)
		if parseErr != nil {
			return nil, apperror.Validation("invalid credit_limit: %v", parseErr)
		}
		if creditLimit.IsNegative() {
			return nil, apperror.Validation("credit_limit must not be negative")
		}
		customer.CreditLimit = creditLimit
	}
	if req.IsActive != nil {
		customer.IsActive = *req.IsActive
	}
	if req.AcceptsCash != nil {
		customer.AcceptsCash = *req.AcceptsCash
	}
	if req.AcceptsCheck != nil {
		customer.AcceptsCheck = *req.AcceptsCheck
	}
	if req.AcceptsTransfer != nil {
		customer.AcceptsTransfer = *req.AcceptsTransfer
	}
	if req.AcceptsCard != nil {
		customer.AcceptsCard = *req.AcceptsCard
	}

	if err := s.customerRepo.Update(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *customerService) Get(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	customer, err := s.customerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("customer")
	}
	return customer, nil
}

func (s *customerService) List(ctx context.Context, page, limit int) ([]model.Customer, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.customerRepo.List(ctx, page, limit)
}
