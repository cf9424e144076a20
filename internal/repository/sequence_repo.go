package repository

import (
	"context"

	"gorm.io/gorm"
)

// SequenceRepository reads the maximum existing document number for a
// prefix, directly off the document table itself. There is no counter row:
// numbering self-heals after rolled-back transactions because the next read
// simply sees the surviving maximum.
type SequenceRepository interface {
	// MaxNumber returns the highest number with the given prefix in the
	// table backing docModel, or "" when the prefix has no documents yet.
	// NNNN suffixes are zero-padded to equal width, so the lexicographic
	// MAX is also the numeric maximum.
	MaxNumber(ctx context.Context, docModel interface{}, prefix string) (string, error)
}

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

func (r *sequenceRepository) MaxNumber(ctx context.Context, docModel interface{}, prefix string) (string, error) {
	var max *string
	err := GetDB(ctx, r.db).Model(docModel).
		Where("number LIKE ?", prefix+"%").
		Select("MAX(number)").
		Scan(&max).Error
	if err != nil {
		return "", err
	}
	if max == nil {
		return "", nil
	}
	return *max, nil
}
