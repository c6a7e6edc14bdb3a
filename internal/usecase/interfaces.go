package usecase

import (
	"context"

	"credanchor/internal/domain"
)

// AnchorEnqueuer starts anchoring a freshly vaulted proof hash without
// waiting for the outcome.
type AnchorEnqueuer interface {
	Enqueue(ctx context.Context, proofHash string) (domain.Anchor, error)
}

// AnchorRefresher settles a pending blockchain anchor from a single receipt
// lookup when the chain already has an answer.
type AnchorRefresher interface {
	Refresh(ctx context.Context, anchor domain.Anchor) (domain.Anchor, error)
}

type AnchorObserver interface {
	AnchorSettled(kind, status string)
}
