// Package recordmem keeps credential and anchor records in process memory
// for deployments without postgres.
package recordmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"credanchor/internal/domain"
)

type Credentials struct {
	mu      sync.RWMutex
	now     func() time.Time
	records map[string]domain.Credential
}

func NewCredentials(now func() time.Time) *Credentials {
	if now == nil {
		now = time.Now
	}
	return &Credentials{now: now, records: make(map[string]domain.Credential)}
}

func (s *Credentials) Create(_ context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[cred.ProofHash]; ok {
		return domain.ErrAlreadyExists
	}
	if cred.StorageHandle != "" {
		for _, existing := range s.records {
			if existing.StorageHandle == cred.StorageHandle {
				return domain.ErrAlreadyExists
			}
		}
	}
	now := s.now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = cred.CreatedAt
	}
	s.records[cred.ProofHash] = cred
	return nil
}

func (s *Credentials) GetByProofHash(_ context.Context, proofHash string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.records[proofHash]
	if !ok {
		return domain.Credential{}, domain.ErrNotFound
	}
	return cred, nil
}

func (s *Credentials) GetByStorageHandle(_ context.Context, handle string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cred := range s.records {
		if handle != "" && cred.StorageHandle == handle {
			return cred, nil
		}
	}
	return domain.Credential{}, domain.ErrNotFound
}

func (s *Credentials) Update(_ context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[cred.ProofHash]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Status = cred.Status
	existing.StorageHandle = cred.StorageHandle
	existing.ErrorCode = cred.ErrorCode
	existing.UpdatedAt = s.now().UTC()
	s.records[cred.ProofHash] = existing
	return nil
}

func (s *Credentials) UpdateStatus(_ context.Context, proofHash, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[proofHash]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Status = status
	existing.UpdatedAt = s.now().UTC()
	s.records[proofHash] = existing
	return nil
}

func (s *Credentials) List(_ context.Context, offset, limit int) (domain.CredentialPage, error) {
	s.mu.RLock()
	all := make([]domain.Credential, 0, len(s.records))
	for _, cred := range s.records {
		all = append(all, cred)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ProofHash < all[j].ProofHash
	})
	page := domain.CredentialPage{Total: int64(len(all))}
	if offset >= len(all) {
		page.Items = []domain.Credential{}
		return page, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page.Items = all[offset:end]
	return page, nil
}

func (s *Credentials) Delete(_ context.Context, proofHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[proofHash]; !ok {
		return domain.ErrNotFound
	}
	delete(s.records, proofHash)
	return nil
}

type Anchors struct {
	mu      sync.RWMutex
	now     func() time.Time
	order   []string
	records map[string]domain.Anchor
}

func NewAnchors(now func() time.Time) *Anchors {
	if now == nil {
		now = time.Now
	}
	return &Anchors{now: now, records: make(map[string]domain.Anchor)}
}

func (s *Anchors) Create(_ context.Context, anchor domain.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[anchor.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if anchor.CreatedAt.IsZero() {
		anchor.CreatedAt = s.now().UTC()
	}
	if anchor.UpdatedAt.IsZero() {
		anchor.UpdatedAt = anchor.CreatedAt
	}
	s.records[anchor.ID] = anchor
	s.order = append(s.order, anchor.ID)
	return nil
}

func (s *Anchors) Update(_ context.Context, anchor domain.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[anchor.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Settled() {
		return domain.ErrConflict
	}
	anchor.CreatedAt = existing.CreatedAt
	anchor.ProofHash = existing.ProofHash
	anchor.UpdatedAt = s.now().UTC()
	s.records[anchor.ID] = anchor
	return nil
}

func (s *Anchors) Get(_ context.Context, id string) (domain.Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.records[id]
	if !ok {
		return domain.Anchor{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *Anchors) Latest(_ context.Context, proofHash string) (domain.Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if a := s.records[s.order[i]]; a.ProofHash == proofHash {
			return a, nil
		}
	}
	return domain.Anchor{}, domain.ErrNotFound
}

func (s *Anchors) ListByProofHash(_ context.Context, proofHash string) ([]domain.Anchor, error) {
	return s.filter(func(a domain.Anchor) bool { return a.ProofHash == proofHash }, 0), nil
}

func (s *Anchors) ListPending(_ context.Context, limit int) ([]domain.Anchor, error) {
	return s.filter(func(a domain.Anchor) bool { return a.Status == domain.AnchorStatusPending }, limit), nil
}

func (s *Anchors) filter(keep func(domain.Anchor) bool, limit int) []domain.Anchor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Anchor{}
	for _, id := range s.order {
		if a := s.records[id]; keep(a) {
			out = append(out, a)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}
