package vault

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"credanchor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal([]byte("diploma"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "diploma")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "diploma", string(plain))
}

func TestSealer_RejectsTampering(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal([]byte("diploma"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = s.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedCorrupt)

	_, err = s.Open([]byte{1, 2})
	assert.ErrorIs(t, err, ErrSealedCorrupt)
}

func TestSealer_RejectsShortKey(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)
}

func TestSealer_NilPassesThrough(t *testing.T) {
	var s *Sealer
	out, err := s.Seal([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(out))
}

func TestMemory_StoreRetrieveDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testSealer(t))

	handle, err := m.Store(ctx, []byte("payload"), domain.VaultMetadata{ProofHash: "h"})
	require.NoError(t, err)
	assert.True(t, len(handle) > len(SchemeMemory)+1)

	got, err := m.Retrieve(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	require.NoError(t, m.Delete(ctx, handle))
	_, err = m.Retrieve(ctx, handle)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemory_ForeignHandle(t *testing.T) {
	m := NewMemory(nil)
	_, err := m.Retrieve(context.Background(), "s3:credentials/abc")
	kind, ok := domain.CollaboratorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.CollaboratorNotFound, kind)
}

func TestMemory_CanceledContextIsWriteError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory(nil).Store(ctx, []byte("x"), domain.VaultMetadata{})
	assert.True(t, errors.Is(err, domain.ErrVaultWrite))
}
