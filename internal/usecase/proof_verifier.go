package usecase

import (
	"context"
	"errors"
	"strings"

	"credanchor/internal/domain"
	"credanchor/pkg/proofhash"

	"go.uber.org/zap"
)

type VerificationResult struct {
	Exists             bool
	Credential         *domain.Credential
	Anchor             *domain.Anchor
	ProofHashMatches   bool
	BlockchainVerified bool
}

type ProofVerifier struct {
	Credentials domain.CredentialRepository
	Anchors     domain.AnchorRepository
	Refresher   AnchorRefresher
	Log         *zap.Logger
}

// NormalizeProofHash trims and lowercases a client supplied proof hash and
// rejects anything that is not 64 hex characters.
func NormalizeProofHash(field, value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", domain.NewValidationError(field, "is required")
	}
	if !proofhash.IsProofHash(value) {
		return "", domain.NewValidationError(field, "must be 64 hexadecimal characters")
	}
	return value, nil
}

func (uc *ProofVerifier) Verify(ctx context.Context, proofHash string) (VerificationResult, error) {
	proofHash, err := NormalizeProofHash("proofHash", proofHash)
	if err != nil {
		return VerificationResult{}, err
	}

	cred, err := uc.Credentials.GetByProofHash(ctx, proofHash)
	if errors.Is(err, domain.ErrNotFound) {
		return VerificationResult{Exists: false}, nil
	}
	if err != nil {
		return VerificationResult{}, err
	}

	result := VerificationResult{
		Exists:           true,
		Credential:       &cred,
		ProofHashMatches: cred.ProofHash == proofHash,
	}
	anchor, err := uc.Anchors.Latest(ctx, proofHash)
	if errors.Is(err, domain.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return VerificationResult{}, err
	}

	if !anchor.Settled() && anchor.TxID != "" && uc.Refresher != nil {
		refreshed, rerr := uc.Refresher.Refresh(ctx, anchor)
		if rerr != nil {
			uc.logger().Debug("receipt refresh failed", zap.String("proof_hash", proofHash), zap.Error(rerr))
		} else {
			anchor = refreshed
			if anchor.Kind == domain.AnchorKindBlockchain && anchor.Status == domain.AnchorStatusConfirmed {
				cred.Status = domain.CredentialStatusAnchored
			}
		}
	}

	result.Anchor = &anchor
	result.BlockchainVerified = anchor.Kind == domain.AnchorKindBlockchain && anchor.Status == domain.AnchorStatusConfirmed
	return result, nil
}

func (uc *ProofVerifier) logger() *zap.Logger {
	if uc.Log == nil {
		return zap.NewNop()
	}
	return uc.Log
}
