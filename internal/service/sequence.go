package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"gorm.io/gorm"
)

// Document types for numbering purposes.
const (
	DocTypeSale         = "sale"
	DocTypeInvoice      = "invoice"
	DocTypeCreditNote   = "credit_note"
	DocTypeDeliveryNote = "delivery_note"
	DocTypeReceipt      = "receipt"
)

var docPrefixes = map[string]string{
	DocTypeSale:         "SO",
	DocTypeInvoice:      "FA",
	DocTypeCreditNote:   "NC",
	DocTypeDeliveryNote: "RM",
	DocTypeReceipt:      "RC",
}

var docModels = map[string]interface{}{
	DocTypeSale:         &model.Sale{},
	DocTypeInvoice:      &model.Invoice{},
	DocTypeCreditNote:   &model.CreditNote{},
	DocTypeDeliveryNote: &model.DeliveryNote{},
	DocTypeReceipt:      &model.Receipt{},
}

// NumberAllocator produces gap-free, monotonically increasing document
// numbers scoped by document type and calendar month, formatted
// PREFIX-YYYYMM-NNNN. The next number is derived from the maximum existing
// one inside the caller's transaction; the unique index on the number column
// makes the loser of a concurrent race fail, and the caller retries the
// whole operation.
type NumberAllocator interface {
	Next(ctx context.Context, docType string, date time.Time) (string, error)
}

type numberAllocator struct {
	sequenceRepo repository.SequenceRepository
}

func NewNumberAllocator(sequenceRepo repository.SequenceRepository) NumberAllocator {
	return &numberAllocator{sequenceRepo: sequenceRepo}
}

func (a *numberAllocator) Next(ctx context.Context, docType string, date time.Time) (string, error) {
	prefix, ok := docPrefixes[docType]
	if !ok {
		return "", fmt.Errorf("unknown document type %q", docType)
	}

	fullPrefix := fmt.Sprintf("%s-%s-", prefix, date.Format("200601"))
	max, err := a.sequenceRepo.MaxNumber(ctx, docModels[docType], fullPrefix)
	if err != nil {
		return "", fmt.Errorf("read max number for %s: %w", fullPrefix, err)
	}

	seq := 1
	if max != "" {
		suffix := max[strings.LastIndex(max, "-")+1:]
		last, parseErr := strconv.Atoi(suffix)
		if parseErr != nil {
			return "", fmt.Errorf("malformed document number %q: %w", max, parseErr)
		}
		seq = last + 1
	}

	return fmt.Sprintf("%s%04d", fullPrefix, seq), nil
}

// isDuplicateNumber reports whether err comes from the unique index on a
// document number column, meaning a concurrent allocation won the race.
func isDuplicateNumber(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// withNumberRetry re-runs the full operation when the number allocation
// raced. Each attempt is a fresh transaction with a fresh read of the
// current maximum.
func withNumberRetry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !isDuplicateNumber(err) {
			return err
		}
	}
	return err
}
