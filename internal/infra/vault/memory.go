package vault

import (
	"context"
	"sync"

	"credanchor/internal/domain"

	"github.com/google/uuid"
)

const SchemeMemory = "mem"

// Memory keeps sealed payloads in process memory.
type Memory struct {
	mu     sync.RWMutex
	sealer *Sealer
	blobs  map[string][]byte
}

func NewMemory(sealer *Sealer) *Memory {
	return &Memory{sealer: sealer, blobs: make(map[string][]byte)}
}

func (m *Memory) Store(ctx context.Context, data []byte, _ domain.VaultMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", WriteError("vault.memory.store", err)
	}
	sealed, err := m.sealer.Seal(append([]byte(nil), data...))
	if err != nil {
		return "", WriteError("vault.memory.store", err)
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.blobs[id] = sealed
	m.mu.Unlock()
	return SchemeMemory + ":" + id, nil
}

func (m *Memory) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ReadError("vault.memory.retrieve", err)
	}
	id, ok := TrimScheme(handle, SchemeMemory)
	if !ok {
		return nil, NotFound("vault.memory.retrieve", handle)
	}
	m.mu.RLock()
	sealed, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, NotFound("vault.memory.retrieve", handle)
	}
	plain, err := m.sealer.Open(sealed)
	if err != nil {
		return nil, ReadError("vault.memory.retrieve", err)
	}
	return append([]byte(nil), plain...), nil
}

func (m *Memory) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return ReadError("vault.memory.delete", err)
	}
	id, ok := TrimScheme(handle, SchemeMemory)
	if !ok {
		return NotFound("vault.memory.delete", handle)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return NotFound("vault.memory.delete", handle)
	}
	delete(m.blobs, id)
	return nil
}
