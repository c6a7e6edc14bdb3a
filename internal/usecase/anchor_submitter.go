package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"credanchor/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	FallbackAny         = "any"
	FallbackUnsupported = "unsupported"
	FallbackNever       = "never"
)

const (
	resumeLimit           = 1000
	defaultInterruptAfter = time.Minute
)

// FallbackReference is the locally derived anchor reference recorded when a
// proof hash could not be submitted to the chain.
func FallbackReference(proofHash string) string {
	sum := sha256.Sum256([]byte("proof_hash_anchor:" + proofHash))
	return hex.EncodeToString(sum[:])
}

type SubmitterOptions struct {
	Workers      int
	QueueSize    int
	ChainTimeout time.Duration
	PollAttempts int
	PollInterval time.Duration
	Fallback     string
	Locker       domain.HashLocker
	Observer     AnchorObserver
	Log          *zap.Logger
	// Sleep waits between receipt polls and returns early with the context
	// error on shutdown.
	Sleep func(ctx context.Context, d time.Duration) error
	NewID func() string
	Now   func() time.Time
	// InterruptAfter is how long an anchor may stay pending without a
	// transaction before Resume treats it as abandoned. Defaults to
	// ChainTimeout, or one minute when that is unset.
	InterruptAfter time.Duration
}

// AnchorSubmitter anchors proof hashes on a bounded worker pool. Every anchor
// it creates eventually settles, except for pollers interrupted by Close,
// which Resume picks up again.
type AnchorSubmitter struct {
	anchors     domain.AnchorRepository
	credentials domain.CredentialRepository
	chain       domain.ChainClient
	opts        SubmitterOptions

	queue   chan domain.Anchor
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	pollers sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAnchorSubmitter(anchors domain.AnchorRepository, credentials domain.CredentialRepository, chain domain.ChainClient, opts SubmitterOptions) *AnchorSubmitter {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 1
	}
	if opts.Fallback == "" {
		opts.Fallback = FallbackAny
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InterruptAfter <= 0 {
		opts.InterruptAfter = opts.ChainTimeout
	}
	if opts.InterruptAfter <= 0 {
		opts.InterruptAfter = defaultInterruptAfter
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &AnchorSubmitter{
		anchors:     anchors,
		credentials: credentials,
		chain:       chain,
		opts:        opts,
		queue:       make(chan domain.Anchor, opts.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		s.workers.Add(1)
		go s.work()
	}
	return s
}

// Enqueue records a pending blockchain anchor and hands it to the worker
// pool. It does not wait for the chain.
func (s *AnchorSubmitter) Enqueue(ctx context.Context, proofHash string) (domain.Anchor, error) {
	anchor := domain.Anchor{
		ID:        s.opts.NewID(),
		ProofHash: proofHash,
		Kind:      domain.AnchorKindBlockchain,
		Status:    domain.AnchorStatusPending,
	}
	if err := s.anchors.Create(ctx, anchor); err != nil {
		return domain.Anchor{}, err
	}

	s.mu.RLock()
	queued := false
	if !s.closed {
		select {
		case s.queue <- anchor:
			queued = true
		default:
		}
	}
	s.mu.RUnlock()

	if !queued {
		s.opts.Log.Warn("anchor queue full", zap.String("proof_hash", proofHash))
		err := domain.NewCollaboratorError("anchor.enqueue", domain.CollaboratorUnavailable, domain.ErrAnchorSubmit, "queue full")
		return s.settleSubmitFailure(context.WithoutCancel(ctx), anchor, err, domain.AnchorErrorQueueFull), nil
	}
	return anchor, nil
}

// Retry appends a new anchor for a proof hash whose latest anchor failed.
func (s *AnchorSubmitter) Retry(ctx context.Context, proofHash string) (domain.Anchor, error) {
	if _, err := s.credentials.GetByProofHash(ctx, proofHash); err != nil {
		return domain.Anchor{}, err
	}
	unlock, err := lockHash(ctx, s.opts.Locker, proofHash)
	if err != nil {
		return domain.Anchor{}, err
	}
	defer unlock()

	latest, err := s.anchors.Latest(ctx, proofHash)
	switch {
	case err == nil && latest.Status != domain.AnchorStatusFailed:
		return domain.Anchor{}, domain.ErrConflict
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.Anchor{}, err
	}
	return s.Enqueue(ctx, proofHash)
}

// Resume restarts polling for pending anchors left behind by a previous
// process. Pending anchors that never reached the chain and have not been
// touched for InterruptAfter are failed so they can be retried; younger ones
// may still belong to a live peer and are left alone.
func (s *AnchorSubmitter) Resume(ctx context.Context) (int, error) {
	pending, err := s.anchors.ListPending(ctx, resumeLimit)
	if err != nil {
		return 0, err
	}
	cutoff := s.opts.Now().Add(-s.opts.InterruptAfter)
	resumed := 0
	for _, anchor := range pending {
		if anchor.Kind != domain.AnchorKindBlockchain || anchor.TxID == "" {
			if anchor.UpdatedAt.After(cutoff) {
				continue
			}
			anchor.Status = domain.AnchorStatusFailed
			anchor.ErrorCode = domain.AnchorErrorInterrupted
			s.settle(ctx, anchor)
			continue
		}
		if !s.startPoller(anchor) {
			break
		}
		resumed++
	}
	if resumed > 0 {
		s.opts.Log.Info("resumed anchor polling", zap.Int("count", resumed))
	}
	return resumed, nil
}

// Refresh looks up the receipt of a pending blockchain anchor once and
// settles it when the chain reports a final outcome.
func (s *AnchorSubmitter) Refresh(ctx context.Context, anchor domain.Anchor) (domain.Anchor, error) {
	if anchor.Settled() || anchor.Kind != domain.AnchorKindBlockchain || anchor.TxID == "" {
		return anchor, nil
	}
	receipt, err := s.receipt(ctx, anchor.TxID)
	if err != nil {
		return anchor, err
	}
	if settled, ok := s.applyReceipt(ctx, anchor, receipt); ok {
		return settled, nil
	}
	return anchor, nil
}

// Close stops accepting work, drains queued submissions and stops pollers.
// Interrupted pollers leave their anchors pending.
func (s *AnchorSubmitter) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	if err := waitGroup(ctx, &s.workers); err != nil {
		s.cancel()
		return err
	}
	s.cancel()
	return waitGroup(ctx, &s.pollers)
}

func (s *AnchorSubmitter) work() {
	defer s.workers.Done()
	for anchor := range s.queue {
		s.submit(anchor)
	}
}

func (s *AnchorSubmitter) submit(anchor domain.Anchor) {
	ctx := s.ctx
	cctx, cancel := withTimeout(ctx, s.opts.ChainTimeout)
	txID, err := s.chain.Submit(cctx, anchor.ProofHash)
	cancel()
	if err != nil {
		s.opts.Log.Warn("anchor submit failed",
			zap.String("proof_hash", anchor.ProofHash),
			zap.String("anchor_id", anchor.ID),
			zap.Error(err))
		s.settleSubmitFailure(context.WithoutCancel(ctx), anchor, err, submitErrorCode(err))
		return
	}

	anchor.TxID = txID
	anchor.Reference = txID
	if _, current := s.persist(ctx, anchor); !current {
		return
	}
	if !s.startPoller(anchor) {
		s.opts.Log.Info("anchor left pending at shutdown", zap.String("anchor_id", anchor.ID))
	}
}

func (s *AnchorSubmitter) startPoller(anchor domain.Anchor) bool {
	if s.ctx.Err() != nil {
		return false
	}
	s.pollers.Add(1)
	go func() {
		defer s.pollers.Done()
		s.poll(anchor)
	}()
	return true
}

// poll stops as soon as the anchor is settled, whether by this poller or by
// a read-through refresh elsewhere.
func (s *AnchorSubmitter) poll(anchor domain.Anchor) {
	ctx := s.ctx
	for anchor.PollAttempts < s.opts.PollAttempts {
		if err := s.opts.Sleep(ctx, s.opts.PollInterval); err != nil {
			return
		}
		stored, err := s.anchors.Get(ctx, anchor.ID)
		switch {
		case err == nil && stored.Settled():
			return
		case err == nil:
			anchor.PollAttempts = max(anchor.PollAttempts, stored.PollAttempts)
		case ctx.Err() != nil:
			return
		default:
			s.opts.Log.Warn("reload anchor", zap.String("anchor_id", anchor.ID), zap.Error(err))
		}

		anchor.PollAttempts++
		receipt, err := s.receipt(ctx, anchor.TxID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.opts.Log.Debug("receipt lookup failed", zap.String("tx_id", anchor.TxID), zap.Error(err))
			if _, current := s.persist(ctx, anchor); !current {
				return
			}
			continue
		}
		if _, ok := s.applyReceipt(ctx, anchor, receipt); ok {
			return
		}
		if _, current := s.persist(ctx, anchor); !current {
			return
		}
	}

	anchor.Status = domain.AnchorStatusFailed
	anchor.ErrorCode = domain.AnchorErrorTimeout
	s.settle(context.WithoutCancel(ctx), anchor)
}

func (s *AnchorSubmitter) receipt(ctx context.Context, txID string) (domain.ChainReceipt, error) {
	cctx, cancel := withTimeout(ctx, s.opts.ChainTimeout)
	defer cancel()
	return s.chain.Receipt(cctx, txID)
}

// applyReceipt settles anchor when receipt is final and reports whether it
// did.
func (s *AnchorSubmitter) applyReceipt(ctx context.Context, anchor domain.Anchor, receipt domain.ChainReceipt) (domain.Anchor, bool) {
	ctx = context.WithoutCancel(ctx)
	switch receipt.Status {
	case domain.ChainReceiptConfirmed:
		anchor.Status = domain.AnchorStatusConfirmed
		anchor.BlockHeight = receipt.BlockHeight
		if !receipt.BlockTime.IsZero() {
			blockTime := receipt.BlockTime.UTC()
			anchor.BlockTime = &blockTime
		}
		anchor.ErrorCode = ""
		settled, won := s.settle(ctx, anchor)
		if !won {
			return settled, true
		}
		if err := s.credentials.UpdateStatus(ctx, settled.ProofHash, domain.CredentialStatusAnchored); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.opts.Log.Error("mark credential anchored", zap.String("proof_hash", settled.ProofHash), zap.Error(err))
		}
		return settled, true
	case domain.ChainReceiptFailed:
		anchor.Status = domain.AnchorStatusFailed
		anchor.ErrorCode = domain.AnchorErrorTxFailed
		anchor, _ = s.settle(ctx, anchor)
		return anchor, true
	default:
		return anchor, false
	}
}

func (s *AnchorSubmitter) settleSubmitFailure(ctx context.Context, anchor domain.Anchor, err error, code string) domain.Anchor {
	anchor.ErrorCode = code
	if s.fallsBack(err) {
		anchor.Kind = domain.AnchorKindProofVerification
		anchor.Status = domain.AnchorStatusVerified
		anchor.Reference = FallbackReference(anchor.ProofHash)
	} else {
		anchor.Status = domain.AnchorStatusFailed
	}
	anchor, _ = s.settle(ctx, anchor)
	return anchor
}

func (s *AnchorSubmitter) fallsBack(err error) bool {
	switch s.opts.Fallback {
	case FallbackNever:
		return false
	case FallbackUnsupported:
		kind, _ := domain.CollaboratorKindOf(err)
		return kind == domain.CollaboratorUnsupported
	default:
		return true
	}
}

// settle persists a final state and reports whether this call settled the
// anchor. When another caller settled it first the stored anchor is returned.
func (s *AnchorSubmitter) settle(ctx context.Context, anchor domain.Anchor) (domain.Anchor, bool) {
	anchor, current := s.persist(ctx, anchor)
	if !current {
		return anchor, false
	}
	if s.opts.Observer != nil {
		s.opts.Observer.AnchorSettled(anchor.Kind, anchor.Status)
	}
	s.opts.Log.Info("anchor settled",
		zap.String("proof_hash", anchor.ProofHash),
		zap.String("anchor_id", anchor.ID),
		zap.String("kind", anchor.Kind),
		zap.String("status", anchor.Status),
		zap.String("error_code", anchor.ErrorCode))
	return anchor, true
}

// persist writes anchor and reports whether it is still the current state.
// An anchor that was settled in the meantime is left as stored and returned.
func (s *AnchorSubmitter) persist(ctx context.Context, anchor domain.Anchor) (domain.Anchor, bool) {
	ctx = context.WithoutCancel(ctx)
	err := s.anchors.Update(ctx, anchor)
	switch {
	case err == nil:
		return anchor, true
	case errors.Is(err, domain.ErrConflict):
		stored, gerr := s.anchors.Get(ctx, anchor.ID)
		if gerr != nil {
			s.opts.Log.Error("reload settled anchor", zap.String("anchor_id", anchor.ID), zap.Error(gerr))
			return anchor, false
		}
		s.opts.Log.Debug("anchor already settled",
			zap.String("anchor_id", anchor.ID),
			zap.String("status", stored.Status))
		return stored, false
	default:
		s.opts.Log.Error("persist anchor", zap.String("anchor_id", anchor.ID), zap.Error(err))
		if anchor.Settled() && anchor.ErrorCode == "" {
			anchor.ErrorCode = domain.AnchorErrorPersistence
		}
		return anchor, true
	}
}

func submitErrorCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.AnchorErrorTimeout
	}
	kind, _ := domain.CollaboratorKindOf(err)
	switch kind {
	case domain.CollaboratorUnsupported:
		return domain.AnchorErrorUnsupported
	case domain.CollaboratorTimeout:
		return domain.AnchorErrorTimeout
	case domain.CollaboratorRejected:
		return domain.AnchorErrorRejected
	default:
		return domain.AnchorErrorNetwork
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
