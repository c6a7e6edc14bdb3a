package domain

import (
	"context"
	"time"
)

type VaultMetadata struct {
	ProofHash string
	FileName  string
	MimeType  string
	Kind      PayloadKind
}

// Vault keeps payload bytes encrypted at rest. Handles are opaque to callers.
type Vault interface {
	Store(ctx context.Context, data []byte, meta VaultMetadata) (string, error)
	Retrieve(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
}

type ChainReceiptStatus string

const (
	ChainReceiptPending   ChainReceiptStatus = "pending"
	ChainReceiptConfirmed ChainReceiptStatus = "confirmed"
	ChainReceiptFailed    ChainReceiptStatus = "failed"
)

type ChainReceipt struct {
	TxID        string
	Status      ChainReceiptStatus
	BlockHeight int64
	BlockTime   time.Time
}

// ChainClient submits proof hashes to a blockchain and reports on the
// resulting transactions.
type ChainClient interface {
	Submit(ctx context.Context, proofHash string) (string, error)
	Receipt(ctx context.Context, txID string) (ChainReceipt, error)
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}

// HashLocker serializes work on a single proof hash. The returned function
// releases the lock.
type HashLocker interface {
	Lock(ctx context.Context, proofHash string) (func(), error)
}

type AdmissionInput struct {
	FileName string
	MimeType string
	Size     int64
	Kind     PayloadKind
	Source   string
}

type AdmissionDecision struct {
	Allowed bool
	Reasons []string
}

type AdmissionPolicy interface {
	Evaluate(ctx context.Context, input AdmissionInput) (AdmissionDecision, error)
}

type Principal struct {
	Subject string
	Roles   []string
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}
