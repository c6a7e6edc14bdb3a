package db

import (
	"context"
	"errors"
	"time"

	"credanchor/internal/domain"

	"gorm.io/gorm"
)

type AnchorRepository struct {
	db *gorm.DB
}

func NewAnchorRepository(db *gorm.DB) *AnchorRepository {
	return &AnchorRepository{db: db}
}

func (r *AnchorRepository) Create(ctx context.Context, anchor domain.Anchor) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if anchor.ID == "" || anchor.ProofHash == "" {
		return errors.New("id and proof_hash are required")
	}
	model := anchorToModel(anchor)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = model.CreatedAt
	}
	return translate(r.db.WithContext(ctx).Omit("Seq").Create(&model).Error)
}

func (r *AnchorRepository) Update(ctx context.Context, anchor domain.Anchor) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := anchorToModel(anchor)
	res := r.db.WithContext(ctx).
		Model(&AnchorModel{}).
		Where("id = ? AND status = ?", anchor.ID, domain.AnchorStatusPending).
		Updates(map[string]any{
			"kind":          model.Kind,
			"status":        model.Status,
			"reference":     model.Reference,
			"tx_id":         model.TxID,
			"block_height":  model.BlockHeight,
			"block_time":    model.BlockTime,
			"error_code":    model.ErrorCode,
			"poll_attempts": model.PollAttempts,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, anchor.ID); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *AnchorRepository) Get(ctx context.Context, id string) (domain.Anchor, error) {
	if r.db == nil {
		return domain.Anchor{}, errDBUnavailable
	}
	var model AnchorModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return domain.Anchor{}, translate(err)
	}
	return anchorFromModel(model), nil
}

func (r *AnchorRepository) Latest(ctx context.Context, proofHash string) (domain.Anchor, error) {
	if r.db == nil {
		return domain.Anchor{}, errDBUnavailable
	}
	var model AnchorModel
	if err := r.db.WithContext(ctx).
		Where("proof_hash = ?", proofHash).
		Order("seq DESC").
		First(&model).Error; err != nil {
		return domain.Anchor{}, translate(err)
	}
	return anchorFromModel(model), nil
}

func (r *AnchorRepository) ListByProofHash(ctx context.Context, proofHash string) ([]domain.Anchor, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AnchorModel
	if err := r.db.WithContext(ctx).
		Where("proof_hash = ?", proofHash).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return anchorsFromModels(models), nil
}

func (r *AnchorRepository) ListPending(ctx context.Context, limit int) ([]domain.Anchor, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AnchorModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.AnchorStatusPending).
		Order("seq ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return anchorsFromModels(models), nil
}

func anchorsFromModels(models []AnchorModel) []domain.Anchor {
	out := make([]domain.Anchor, 0, len(models))
	for _, m := range models {
		out = append(out, anchorFromModel(m))
	}
	return out
}

func anchorToModel(a domain.Anchor) AnchorModel {
	var blockTime *time.Time
	if a.BlockTime != nil {
		t := a.BlockTime.UTC()
		blockTime = &t
	}
	return AnchorModel{
		ID:           a.ID,
		ProofHash:    a.ProofHash,
		Kind:         a.Kind,
		Status:       a.Status,
		Reference:    stringPtrIfNotEmpty(a.Reference),
		TxID:         stringPtrIfNotEmpty(a.TxID),
		BlockHeight:  int64PtrIfNotZero(a.BlockHeight),
		BlockTime:    blockTime,
		ErrorCode:    stringPtrIfNotEmpty(a.ErrorCode),
		PollAttempts: a.PollAttempts,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func anchorFromModel(m AnchorModel) domain.Anchor {
	var blockTime *time.Time
	if m.BlockTime != nil {
		t := m.BlockTime.UTC()
		blockTime = &t
	}
	return domain.Anchor{
		ID:           m.ID,
		ProofHash:    m.ProofHash,
		Kind:         m.Kind,
		Status:       m.Status,
		Reference:    stringValue(m.Reference),
		TxID:         stringValue(m.TxID),
		BlockHeight:  int64Value(m.BlockHeight),
		BlockTime:    blockTime,
		ErrorCode:    stringValue(m.ErrorCode),
		PollAttempts: m.PollAttempts,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}
