package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"credanchor/internal/domain"
	"credanchor/pkg/proofhash"

	"go.uber.org/zap"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type ListResult struct {
	Items []domain.Credential
	Page  int
	Limit int
	Total int64
}

type RecordAdmin struct {
	Credentials  domain.CredentialRepository
	Anchors      domain.AnchorRepository
	Vault        domain.Vault
	Locker       domain.HashLocker
	VaultTimeout time.Duration
	Log          *zap.Logger
}

// List returns credential metadata newest first. page starts at 1 and limit
// is clamped to 1..MaxPageLimit.
func (uc *RecordAdmin) List(ctx context.Context, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	res, err := uc.Credentials.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return ListResult{}, err
	}
	items := res.Items
	if items == nil {
		items = []domain.Credential{}
	}
	return ListResult{Items: items, Page: page, Limit: limit, Total: res.Total}, nil
}

// Delete removes a credential by proof hash or storage handle. The vault blob
// goes first; anchor records are kept.
func (uc *RecordAdmin) Delete(ctx context.Context, ref string) (domain.Credential, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Credential{}, domain.NewValidationError("recordHandle", "is required")
	}
	var (
		cred domain.Credential
		err  error
	)
	if proofhash.IsProofHash(strings.ToLower(ref)) {
		cred, err = uc.Credentials.GetByProofHash(ctx, strings.ToLower(ref))
	} else {
		cred, err = uc.Credentials.GetByStorageHandle(ctx, ref)
	}
	if err != nil {
		return domain.Credential{}, err
	}

	unlock, err := lockHash(ctx, uc.Locker, cred.ProofHash)
	if err != nil {
		return domain.Credential{}, err
	}
	defer unlock()

	if cred.StorageHandle != "" {
		vctx, cancel := withTimeout(ctx, uc.VaultTimeout)
		err := uc.Vault.Delete(vctx, cred.StorageHandle)
		cancel()
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			uc.logger().Warn("vault delete failed", zap.String("handle", cred.StorageHandle), zap.Error(err))
			return domain.Credential{}, err
		}
	}
	if err := uc.Credentials.Delete(ctx, cred.ProofHash); err != nil {
		return domain.Credential{}, err
	}
	uc.logger().Info("credential deleted", zap.String("proof_hash", cred.ProofHash))
	return cred, nil
}

// AnchorHistory lists every anchor attempt for a proof hash, oldest first.
func (uc *RecordAdmin) AnchorHistory(ctx context.Context, proofHash string) ([]domain.Anchor, error) {
	proofHash, err := NormalizeProofHash("proofHash", proofHash)
	if err != nil {
		return nil, err
	}
	anchors, err := uc.Anchors.ListByProofHash(ctx, proofHash)
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		if _, err := uc.Credentials.GetByProofHash(ctx, proofHash); err != nil {
			return nil, err
		}
	}
	return anchors, nil
}

func (uc *RecordAdmin) logger() *zap.Logger {
	if uc.Log == nil {
		return zap.NewNop()
	}
	return uc.Log
}
