package chain

import (
	"context"

	"credanchor/internal/domain"
)

// Unconfigured is used when no RPC endpoint is set. Every submission reports
// an unsupported collaborator so the submitter can fall back.
type Unconfigured struct{}

func (Unconfigured) Submit(context.Context, string) (string, error) {
	return "", domain.NewCollaboratorError("chain.submit", domain.CollaboratorUnsupported, domain.ErrAnchorSubmit, "no chain rpc configured")
}

func (Unconfigured) Receipt(context.Context, string) (domain.ChainReceipt, error) {
	return domain.ChainReceipt{}, domain.NewCollaboratorError("chain.receipt", domain.CollaboratorUnsupported, domain.ErrAnchorSubmit, "no chain rpc configured")
}
