// Package kvvault stores payloads as HashiCorp Vault KV v2 secrets.
package kvvault

import (
	"context"
	"encoding/base64"

	"credanchor/internal/domain"
	"credanchor/internal/infra/vault"

	"github.com/google/uuid"
)

const Scheme = "kv"

const secretPrefix = "credanchor/payloads/"

type Store struct {
	client *Client
	sealer *vault.Sealer
}

// New returns a KV backed store. Payloads are additionally sealed when sealer
// is non-nil.
func New(client *Client, sealer *vault.Sealer) *Store {
	return &Store{client: client, sealer: sealer}
}

func (s *Store) Store(ctx context.Context, data []byte, meta domain.VaultMetadata) (string, error) {
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return "", vault.WriteError("vault.kv.store", err)
	}
	id := uuid.NewString()
	err = s.client.WriteKV(ctx, secretPrefix+id, map[string]any{
		"payload":   base64.StdEncoding.EncodeToString(sealed),
		"proofHash": meta.ProofHash,
		"kind":      string(meta.Kind),
		"sealed":    s.sealer != nil,
	})
	if err != nil {
		return "", vault.WriteError("vault.kv.store", err)
	}
	return Scheme + ":" + id, nil
}

func (s *Store) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	id, ok := vault.TrimScheme(handle, Scheme)
	if !ok {
		return nil, vault.NotFound("vault.kv.retrieve", handle)
	}
	data, err := s.client.ReadKV(ctx, secretPrefix+id)
	if err != nil {
		return nil, vault.ReadError("vault.kv.retrieve", err)
	}
	payload, _ := data["payload"].(string)
	sealed, _ := data["sealed"].(bool)
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, vault.ReadError("vault.kv.retrieve", err)
	}
	if !sealed {
		return raw, nil
	}
	if s.sealer == nil {
		return nil, vault.ReadError("vault.kv.retrieve", vault.ErrSealedCorrupt)
	}
	plain, err := s.sealer.Open(raw)
	if err != nil {
		return nil, vault.ReadError("vault.kv.retrieve", err)
	}
	return plain, nil
}

func (s *Store) Delete(ctx context.Context, handle string) error {
	id, ok := vault.TrimScheme(handle, Scheme)
	if !ok {
		return vault.NotFound("vault.kv.delete", handle)
	}
	if err := s.client.DeleteKV(ctx, secretPrefix+id); err != nil {
		return vault.ReadError("vault.kv.delete", err)
	}
	return nil
}
