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
	SourceField = "field"
	SourceFile  = "file"
)

const ErrorCodeVault = "VAULT_ERROR"

type IssueMetadata struct {
	FileName     string
	MimeType     string
	DeclaredSize int64
	Source       string
}

type IssueResult struct {
	Credential domain.Credential
	// Idempotent is set when an existing record was returned without writing
	// to the vault.
	Idempotent bool
}

type ProofIssuer struct {
	Credentials   domain.CredentialRepository
	Vault         domain.Vault
	Locker        domain.HashLocker
	Policy        domain.AdmissionPolicy
	Anchors       AnchorEnqueuer
	MaxFileBytes  int64
	MaxFieldBytes int64
	VaultTimeout  time.Duration
	Log           *zap.Logger
}

func (uc *ProofIssuer) Issue(ctx context.Context, payload proofhash.Payload, meta IssueMetadata) (IssueResult, error) {
	if err := uc.checkSize(payload, meta); err != nil {
		return IssueResult{}, err
	}
	if err := uc.admit(ctx, payload, meta); err != nil {
		return IssueResult{}, err
	}

	proofHash := payload.ProofHash()
	unlock, err := lockHash(ctx, uc.Locker, proofHash)
	if err != nil {
		return IssueResult{}, err
	}
	defer unlock()

	existing, err := uc.Credentials.GetByProofHash(ctx, proofHash)
	switch {
	case err == nil && existing.Status != domain.CredentialStatusFailed:
		return IssueResult{Credential: existing, Idempotent: true}, nil
	case err == nil:
		return uc.revault(ctx, existing, payload, meta)
	case !errors.Is(err, domain.ErrNotFound):
		return IssueResult{}, err
	}

	cred := domain.Credential{
		ProofHash: proofHash,
		FileName:  meta.FileName,
		MimeType:  meta.MimeType,
		SizeBytes: int64(len(payload.Raw())),
		Kind:      domain.PayloadKind(payload.Kind()),
	}
	handle, verr := uc.store(ctx, payload, meta)
	if verr != nil {
		cred.Status = domain.CredentialStatusFailed
		cred.ErrorCode = ErrorCodeVault
		if err := uc.Credentials.Create(ctx, cred); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			uc.logger().Error("persist failed credential", zap.String("proof_hash", proofHash), zap.Error(err))
		}
		return IssueResult{}, verr
	}

	cred.StorageHandle = handle
	cred.Status = domain.CredentialStatusVaulted
	if err := uc.Credentials.Create(ctx, cred); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			uc.discard(handle)
			return IssueResult{}, err
		}
		// Another process created the record first.
		uc.discard(handle)
		winner, gerr := uc.Credentials.GetByProofHash(ctx, proofHash)
		if gerr != nil {
			return IssueResult{}, gerr
		}
		return IssueResult{Credential: winner, Idempotent: true}, nil
	}
	created, err := uc.Credentials.GetByProofHash(ctx, proofHash)
	if err == nil {
		cred = created
	}
	uc.enqueue(ctx, proofHash)
	return IssueResult{Credential: cred}, nil
}

// revault writes the payload of a record whose earlier vault write failed and
// advances the same record.
func (uc *ProofIssuer) revault(ctx context.Context, existing domain.Credential, payload proofhash.Payload, meta IssueMetadata) (IssueResult, error) {
	handle, verr := uc.store(ctx, payload, meta)
	if verr != nil {
		return IssueResult{}, verr
	}
	existing.StorageHandle = handle
	existing.Status = domain.CredentialStatusVaulted
	existing.ErrorCode = ""
	if err := uc.Credentials.Update(ctx, existing); err != nil {
		uc.discard(handle)
		return IssueResult{}, err
	}
	if updated, err := uc.Credentials.GetByProofHash(ctx, existing.ProofHash); err == nil {
		existing = updated
	}
	uc.enqueue(ctx, existing.ProofHash)
	return IssueResult{Credential: existing}, nil
}

func (uc *ProofIssuer) checkSize(payload proofhash.Payload, meta IssueMetadata) error {
	field := "file"
	if meta.Source == SourceField {
		field = "jsonData"
	}
	size := int64(len(payload.Raw()))
	if size == 0 {
		return domain.NewValidationError(field, "must not be empty")
	}
	if uc.MaxFileBytes > 0 {
		if meta.DeclaredSize > uc.MaxFileBytes {
			return domain.NewTooLargeError(field, meta.DeclaredSize, uc.MaxFileBytes)
		}
		if size > uc.MaxFileBytes {
			return domain.NewTooLargeError(field, size, uc.MaxFileBytes)
		}
	}
	// The field limit applies to the canonical form, which is what is hashed.
	canonical := int64(payload.Size())
	if meta.Source == SourceField && payload.Kind() == proofhash.KindStructured &&
		uc.MaxFieldBytes > 0 && canonical > uc.MaxFieldBytes {
		return domain.NewTooLargeError(field, canonical, uc.MaxFieldBytes)
	}
	return nil
}

func (uc *ProofIssuer) admit(ctx context.Context, payload proofhash.Payload, meta IssueMetadata) error {
	if uc.Policy == nil {
		return nil
	}
	decision, err := uc.Policy.Evaluate(ctx, domain.AdmissionInput{
		FileName: meta.FileName,
		MimeType: meta.MimeType,
		Size:     int64(len(payload.Raw())),
		Kind:     domain.PayloadKind(payload.Kind()),
		Source:   meta.Source,
	})
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &domain.ValidationError{
			Field:      "file",
			Constraint: strings.Join(decision.Reasons, "; "),
			Err:        domain.ErrPolicyDenied,
		}
	}
	return nil
}

func (uc *ProofIssuer) store(ctx context.Context, payload proofhash.Payload, meta IssueMetadata) (string, error) {
	vctx, cancel := uc.vaultContext(ctx)
	defer cancel()
	handle, err := uc.Vault.Store(vctx, payload.Raw(), domain.VaultMetadata{
		ProofHash: payload.ProofHash(),
		FileName:  meta.FileName,
		MimeType:  meta.MimeType,
		Kind:      domain.PayloadKind(payload.Kind()),
	})
	if err == nil {
		return handle, nil
	}
	uc.logger().Warn("vault store failed", zap.String("proof_hash", payload.ProofHash()), zap.Error(err))
	if !errors.Is(err, domain.ErrVaultWrite) {
		kind := domain.CollaboratorUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.CollaboratorTimeout
		}
		err = domain.NewCollaboratorError("vault.store", kind, domain.ErrVaultWrite, err.Error())
	}
	return "", err
}

// discard removes a blob that no record points to.
func (uc *ProofIssuer) discard(handle string) {
	ctx, cancel := uc.vaultContext(context.Background())
	defer cancel()
	if err := uc.Vault.Delete(ctx, handle); err != nil && !errors.Is(err, domain.ErrNotFound) {
		uc.logger().Warn("discard orphaned blob", zap.String("handle", handle), zap.Error(err))
	}
}

func (uc *ProofIssuer) enqueue(ctx context.Context, proofHash string) {
	if uc.Anchors == nil {
		return
	}
	if _, err := uc.Anchors.Enqueue(context.WithoutCancel(ctx), proofHash); err != nil {
		uc.logger().Error("enqueue anchor", zap.String("proof_hash", proofHash), zap.Error(err))
	}
}

func (uc *ProofIssuer) vaultContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, uc.VaultTimeout)
}

func (uc *ProofIssuer) logger() *zap.Logger {
	if uc.Log == nil {
		return zap.NewNop()
	}
	return uc.Log
}

func lockHash(ctx context.Context, locker domain.HashLocker, proofHash string) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	return locker.Lock(ctx, proofHash)
}
