package domain

import (
	"context"
	"time"
)

type PayloadKind string

const (
	PayloadStructured PayloadKind = "structured"
	PayloadBinary     PayloadKind = "binary"
)

const (
	CredentialStatusUploaded = "uploaded"
	CredentialStatusVaulted  = "vaulted"
	CredentialStatusAnchored = "anchored"
	CredentialStatusFailed   = "failed"
)

// Credential is the server-side record of an issued proof. ProofHash is the
// identity of the record and never changes.
type Credential struct {
	ProofHash     string
	FileName      string
	MimeType      string
	SizeBytes     int64
	Kind          PayloadKind
	StorageHandle string
	Status        string
	ErrorCode     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CredentialPage struct {
	Items []Credential
	Total int64
}

type CredentialRepository interface {
	// Create returns ErrAlreadyExists when a record with the same proof hash
	// is already stored.
	Create(ctx context.Context, cred Credential) error
	GetByProofHash(ctx context.Context, proofHash string) (Credential, error)
	GetByStorageHandle(ctx context.Context, handle string) (Credential, error)
	// Update persists status, storage handle and error code.
	Update(ctx context.Context, cred Credential) error
	// UpdateStatus advances the status of an existing record.
	UpdateStatus(ctx context.Context, proofHash, status string) error
	List(ctx context.Context, offset, limit int) (CredentialPage, error)
	Delete(ctx context.Context, proofHash string) error
}
