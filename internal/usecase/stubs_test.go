package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"credanchor/internal/domain"
	"credanchor/internal/infra/hashlock"
	"credanchor/internal/infra/recordmem"
	"credanchor/internal/infra/vault"
)

type countingVault struct {
	mu      sync.Mutex
	next    domain.Vault
	err     error
	stores  int
	deletes []string
	last    string
}

func newCountingVault() *countingVault {
	return &countingVault{next: vault.NewMemory(nil)}
}

func (v *countingVault) Store(ctx context.Context, data []byte, meta domain.VaultMetadata) (string, error) {
	v.mu.Lock()
	v.stores++
	err := v.err
	v.mu.Unlock()
	if err != nil {
		return "", err
	}
	handle, err := v.next.Store(ctx, data, meta)
	v.mu.Lock()
	v.last = handle
	v.mu.Unlock()
	return handle, err
}

func (v *countingVault) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	return v.next.Retrieve(ctx, handle)
}

func (v *countingVault) Delete(ctx context.Context, handle string) error {
	v.mu.Lock()
	v.deletes = append(v.deletes, handle)
	v.mu.Unlock()
	return v.next.Delete(ctx, handle)
}

func (v *countingVault) storeCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stores
}

type stubChain struct {
	mu        sync.Mutex
	submitErr error
	txID      string
	receipts  []domain.ChainReceipt
	// afterLast, when set, is returned once receipts have been replayed
	// instead of repeating the last one.
	afterLast error
	submits   int
	lookups   int
}

func (c *stubChain) Submit(ctx context.Context, proofHash string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits++
	if c.submitErr != nil {
		return "", c.submitErr
	}
	if c.txID == "" {
		return "0xtx-" + proofHash[:8], nil
	}
	return c.txID, nil
}

// Receipt replays receipts in order and repeats the last one.
func (c *stubChain) Receipt(ctx context.Context, txID string) (domain.ChainReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	if len(c.receipts) == 0 {
		if c.afterLast != nil {
			return domain.ChainReceipt{}, c.afterLast
		}
		return domain.ChainReceipt{TxID: txID, Status: domain.ChainReceiptPending}, nil
	}
	r := c.receipts[0]
	if len(c.receipts) > 1 || c.afterLast != nil {
		c.receipts = c.receipts[1:]
	}
	r.TxID = txID
	return r, nil
}

func (c *stubChain) counts() (submits, lookups int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits, c.lookups
}

type stubEnqueuer struct {
	mu     sync.Mutex
	hashes []string
}

func (e *stubEnqueuer) Enqueue(ctx context.Context, proofHash string) (domain.Anchor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hashes = append(e.hashes, proofHash)
	return domain.Anchor{ProofHash: proofHash, Status: domain.AnchorStatusPending}, nil
}

type stubPolicy struct {
	decision domain.AdmissionDecision
	calls    int
}

func (p *stubPolicy) Evaluate(ctx context.Context, in domain.AdmissionInput) (domain.AdmissionDecision, error) {
	p.calls++
	return p.decision, nil
}

type countingObserver struct {
	mu      sync.Mutex
	settled map[string]int
}

func (o *countingObserver) AnchorSettled(kind, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.settled == nil {
		o.settled = map[string]int{}
	}
	o.settled[kind+"/"+status]++
}

func (o *countingObserver) count(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settled[key]
}

type fixture struct {
	creds   *recordmem.Credentials
	anchors *recordmem.Anchors
	vault   *countingVault
	locker  *hashlock.Memory
}

func newFixture() *fixture {
	return &fixture{
		creds:   recordmem.NewCredentials(nil),
		anchors: recordmem.NewAnchors(nil),
		vault:   newCountingVault(),
		locker:  hashlock.NewMemory(),
	}
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func closeSubmitter(t *testing.T, s *AnchorSubmitter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close submitter: %v", err)
	}
}
