package domain

import (
	"context"
	"time"
)

const (
	AnchorKindBlockchain        = "blockchain"
	AnchorKindProofVerification = "proof_hash_verification"
)

const (
	AnchorStatusPending   = "pending"
	AnchorStatusConfirmed = "confirmed"
	AnchorStatusFailed    = "failed"
	AnchorStatusVerified  = "verified"
)

const (
	AnchorErrorNetwork     = "NETWORK"
	AnchorErrorTimeout     = "TIMEOUT"
	AnchorErrorRejected    = "REJECTED"
	AnchorErrorUnsupported = "UNSUPPORTED"
	AnchorErrorTxFailed    = "TX_FAILED"
	AnchorErrorQueueFull   = "QUEUE_FULL"
	AnchorErrorPersistence = "PERSISTENCE"
	AnchorErrorInterrupted = "INTERRUPTED"
)

// Anchor is one attempt to anchor a proof hash. Anchors are append-only; a
// retry creates a new one.
type Anchor struct {
	ID           string
	ProofHash    string
	Kind         string
	Status       string
	Reference    string
	TxID         string
	BlockHeight  int64
	BlockTime    *time.Time
	ErrorCode    string
	PollAttempts int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Anchor) Settled() bool {
	return a.Status != AnchorStatusPending
}

type AnchorRepository interface {
	Create(ctx context.Context, anchor Anchor) error
	// Update overwrites a pending anchor. Settled anchors are final: updating
	// one returns ErrConflict and leaves it unchanged.
	Update(ctx context.Context, anchor Anchor) error
	Get(ctx context.Context, id string) (Anchor, error)
	// Latest returns the most recently created anchor for a proof hash or
	// ErrNotFound.
	Latest(ctx context.Context, proofHash string) (Anchor, error)
	ListByProofHash(ctx context.Context, proofHash string) ([]Anchor, error)
	ListPending(ctx context.Context, limit int) ([]Anchor, error)
}
