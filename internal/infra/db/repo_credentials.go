package db

import (
	"context"
	"errors"
	"time"

	"credanchor/internal/domain"

	"gorm.io/gorm"
)

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Create(ctx context.Context, cred domain.Credential) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if cred.ProofHash == "" {
		return errors.New("proof_hash is required")
	}
	model := credentialToModel(cred)
	now := time.Now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = model.CreatedAt
	}
	return translate(r.db.WithContext(ctx).Create(&model).Error)
}

func (r *CredentialRepository) GetByProofHash(ctx context.Context, proofHash string) (domain.Credential, error) {
	return r.first(ctx, "proof_hash = ?", proofHash)
}

func (r *CredentialRepository) GetByStorageHandle(ctx context.Context, handle string) (domain.Credential, error) {
	return r.first(ctx, "storage_handle = ?", handle)
}

func (r *CredentialRepository) first(ctx context.Context, query string, arg string) (domain.Credential, error) {
	if r.db == nil {
		return domain.Credential{}, errDBUnavailable
	}
	var model CredentialModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		return domain.Credential{}, translate(err)
	}
	return credentialFromModel(model), nil
}

func (r *CredentialRepository) Update(ctx context.Context, cred domain.Credential) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&CredentialModel{}).
		Where("proof_hash = ?", cred.ProofHash).
		Updates(map[string]any{
			"status":         cred.Status,
			"storage_handle": stringPtrIfNotEmpty(cred.StorageHandle),
			"error_code":     stringPtrIfNotEmpty(cred.ErrorCode),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) UpdateStatus(ctx context.Context, proofHash, status string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&CredentialModel{}).
		Where("proof_hash = ?", proofHash).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) List(ctx context.Context, offset, limit int) (domain.CredentialPage, error) {
	if r.db == nil {
		return domain.CredentialPage{}, errDBUnavailable
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&CredentialModel{}).Count(&total).Error; err != nil {
		return domain.CredentialPage{}, err
	}
	var models []CredentialModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("proof_hash ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return domain.CredentialPage{}, err
	}
	page := domain.CredentialPage{Total: total, Items: make([]domain.Credential, 0, len(models))}
	for _, m := range models {
		page.Items = append(page.Items, credentialFromModel(m))
	}
	return page, nil
}

func (r *CredentialRepository) Delete(ctx context.Context, proofHash string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).Where("proof_hash = ?", proofHash).Delete(&CredentialModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func credentialToModel(c domain.Credential) CredentialModel {
	return CredentialModel{
		ProofHash:     c.ProofHash,
		FileName:      c.FileName,
		MimeType:      c.MimeType,
		SizeBytes:     c.SizeBytes,
		Kind:          string(c.Kind),
		StorageHandle: stringPtrIfNotEmpty(c.StorageHandle),
		Status:        c.Status,
		ErrorCode:     stringPtrIfNotEmpty(c.ErrorCode),
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func credentialFromModel(m CredentialModel) domain.Credential {
	return domain.Credential{
		ProofHash:     m.ProofHash,
		FileName:      m.FileName,
		MimeType:      m.MimeType,
		SizeBytes:     m.SizeBytes,
		Kind:          domain.PayloadKind(m.Kind),
		StorageHandle: stringValue(m.StorageHandle),
		Status:        m.Status,
		ErrorCode:     stringValue(m.ErrorCode),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}
