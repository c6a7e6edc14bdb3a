package vault

import (
	"context"
	"errors"
	"strings"

	"credanchor/internal/domain"
)

// WriteError converts a backend failure while storing into a
// CollaboratorError matching domain.ErrVaultWrite.
func WriteError(op string, err error) error {
	return domain.NewCollaboratorError(op, Classify(err), domain.ErrVaultWrite, err.Error())
}

// ReadError converts a backend failure while reading or deleting.
func ReadError(op string, err error) error {
	kind := Classify(err)
	sentinel := domain.ErrVaultRead
	if kind == domain.CollaboratorNotFound {
		sentinel = domain.ErrNotFound
	}
	return domain.NewCollaboratorError(op, kind, sentinel, err.Error())
}

func NotFound(op, handle string) error {
	return domain.NewCollaboratorError(op, domain.CollaboratorNotFound, domain.ErrNotFound, "unknown handle "+handle)
}

func Classify(err error) domain.CollaboratorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CollaboratorTimeout
	case errors.Is(err, domain.ErrNotFound):
		return domain.CollaboratorNotFound
	case errors.Is(err, ErrSealedCorrupt):
		return domain.CollaboratorRejected
	default:
		return domain.CollaboratorUnavailable
	}
}

// TrimScheme strips "scheme:" from handle and reports whether it was present.
func TrimScheme(handle, scheme string) (string, bool) {
	rest, ok := strings.CutPrefix(handle, scheme+":")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}
