// Package localfs stores sealed payloads in a content-addressed directory
// tree keyed by the CID of the sealed bytes.
package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"credanchor/internal/domain"
	"credanchor/internal/infra/vault"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const Scheme = "fs"

var (
	ErrCIDMismatch = errors.New("localfs: content does not match cid")
	ErrImmutable   = errors.New("localfs: object already exists with different content")
)

type Store struct {
	root   string
	sealer *vault.Sealer
}

func New(root string, sealer *vault.Sealer) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if sealer == nil {
		return nil, errors.New("localfs: sealer is required")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	return &Store{root: root, sealer: sealer}, nil
}

func (s *Store) Store(ctx context.Context, data []byte, _ domain.VaultMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", vault.WriteError("vault.localfs.store", err)
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return "", vault.WriteError("vault.localfs.store", err)
	}
	id, err := rawCID(sealed)
	if err != nil {
		return "", vault.WriteError("vault.localfs.store", err)
	}
	if err := s.put(id, sealed); err != nil {
		return "", vault.WriteError("vault.localfs.store", err)
	}
	return Scheme + ":" + id.String(), nil
}

func (s *Store) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, vault.ReadError("vault.localfs.retrieve", err)
	}
	id, err := parseHandle(handle)
	if err != nil {
		return nil, vault.NotFound("vault.localfs.retrieve", handle)
	}
	sealed, err := s.get(id)
	if err != nil {
		return nil, vault.ReadError("vault.localfs.retrieve", err)
	}
	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, vault.ReadError("vault.localfs.retrieve", err)
	}
	return plain, nil
}

func (s *Store) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return vault.ReadError("vault.localfs.delete", err)
	}
	id, err := parseHandle(handle)
	if err != nil {
		return vault.NotFound("vault.localfs.delete", handle)
	}
	if err := os.Remove(s.pathFor(id)); err != nil {
		if os.IsNotExist(err) {
			return vault.NotFound("vault.localfs.delete", handle)
		}
		return vault.ReadError("vault.localfs.delete", err)
	}
	return nil
}

func (s *Store) put(id cid.Cid, data []byte) error {
	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o400)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := os.ReadFile(path)
			if rerr != nil || string(existing) != string(data) {
				return ErrImmutable
			}
			return nil
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func (s *Store) get(id cid.Cid) ([]byte, error) {
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	got, err := rawCID(b)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, ErrCIDMismatch
	}
	return b, nil
}

func (s *Store) pathFor(id cid.Cid) string {
	str := id.String()
	return filepath.Join(s.root, str[len(str)-2:], str)
}

func rawCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

func parseHandle(handle string) (cid.Cid, error) {
	raw, ok := vault.TrimScheme(handle, Scheme)
	if !ok {
		return cid.Undef, errors.New("localfs: foreign handle")
	}
	id, err := cid.Decode(raw)
	if err != nil {
		return cid.Undef, err
	}
	if id.Type() != cid.Raw {
		return cid.Undef, errors.New("localfs: unexpected codec")
	}
	return id, nil
}
