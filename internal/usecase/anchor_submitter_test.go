package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"credanchor/internal/domain"
)

const testHash = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func newSubmitter(f *fixture, chain domain.ChainClient, opts SubmitterOptions) *AnchorSubmitter {
	if opts.Sleep == nil {
		opts.Sleep = noSleep
	}
	if opts.PollAttempts == 0 {
		opts.PollAttempts = 5
	}
	opts.Locker = f.locker
	return NewAnchorSubmitter(f.anchors, f.creds, chain, opts)
}

func seedCredential(t *testing.T, f *fixture, proofHash string) {
	t.Helper()
	err := f.creds.Create(context.Background(), domain.Credential{
		ProofHash:     proofHash,
		StorageHandle: "mem:" + proofHash[:8],
		Status:        domain.CredentialStatusVaulted,
		Kind:          domain.PayloadBinary,
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
}

func waitSettled(t *testing.T, f *fixture, proofHash string) domain.Anchor {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a, err := f.anchors.Latest(context.Background(), proofHash)
		if err == nil && a.Settled() {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("anchor for %s did not settle", proofHash)
	return domain.Anchor{}
}

func credentialStatus(t *testing.T, f *fixture, proofHash string) string {
	t.Helper()
	cred, err := f.creds.GetByProofHash(context.Background(), proofHash)
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	return cred.Status
}

func TestFallbackReference(t *testing.T) {
	ref := FallbackReference(testHash)
	if len(ref) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(ref))
	}
	if ref != FallbackReference(testHash) {
		t.Fatal("reference is not deterministic")
	}
	if ref == FallbackReference("0"+testHash[1:]) {
		t.Fatal("different hashes share a reference")
	}
}

func TestAnchorSubmitter_ConfirmsAndMarksCredentialAnchored(t *testing.T) {
	f := newFixture()
	seedCredential(t, f, testHash)
	blockTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	chain := &stubChain{txID: "0xabc", receipts: []domain.ChainReceipt{
		{Status: domain.ChainReceiptPending},
		{Status: domain.ChainReceiptConfirmed, BlockHeight: 42, BlockTime: blockTime},
	}}
	obs := &countingObserver{}
	s := newSubmitter(f, chain, SubmitterOptions{Observer: obs})
	defer closeSubmitter(t, s)

	pending, err := s.Enqueue(context.Background(), testHash)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if pending.Status != domain.AnchorStatusPending {
		t.Fatalf("expected pending, got %s", pending.Status)
	}

	anchor := waitSettled(t, f, testHash)
	if anchor.Status != domain.AnchorStatusConfirmed || anchor.Kind != domain.AnchorKindBlockchain {
		t.Fatalf("unexpected anchor %s/%s", anchor.Kind, anchor.Status)
	}
	if anchor.TxID != "0xabc" || anchor.Reference != "0xabc" {
		t.Fatalf("unexpected tx %q reference %q", anchor.TxID, anchor.Reference)
	}
	if anchor.BlockHeight != 42 {
		t.Fatalf("expected block 42, got %d", anchor.BlockHeight)
	}
	if anchor.BlockTime == nil || !blockTime.Equal(*anchor.BlockTime) {
		t.Fatalf("unexpected block time %v", anchor.BlockTime)
	}
	if anchor.PollAttempts != 2 {
		t.Fatalf("expected 2 poll attempts, got %d", anchor.PollAttempts)
	}
	if got := credentialStatus(t, f, testHash); got != domain.CredentialStatusAnchored {
		t.Fatalf("expected anchored credential, got %s", got)
	}
	if got := obs.count("blockchain/confirmed"); got != 1 {
		t.Fatalf("expected 1 confirmed observation, got %d", got)
	}
}

func TestAnchorSubmitter_RevertedTransactionFails(t *testing.T) {
	f := newFixture()
	seedCredential(t, f, testHash)
	chain := &stubChain{receipts: []domain.ChainReceipt{{Status: domain.ChainReceiptFailed}}}
	s := newSubmitter(f, chain, SubmitterOptions{})
	defer closeSubmitter(t, s)

	if _, err := s.Enqueue(context.Background(), testHash); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	anchor := waitSettled(t, f, testHash)
	if anchor.Status != domain.AnchorStatusFailed || anchor.ErrorCode != domain.AnchorErrorTxFailed {
		t.Fatalf("unexpected anchor %s/%s", anchor.Status, anchor.ErrorCode)
	}
}

func TestAnchorSubmitter_PollBudgetExhaustionFails(t *testing.T) {
	f := newFixture()
	seedCredential(t, f, testHash)
	s := newSubmitter(f, &stubChain{}, SubmitterOptions{PollAttempts: 3})
	defer closeSubmitter(t, s)

	if _, err := s.Enqueue(context.Background(), testHash); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	anchor := waitSettled(t, f, testHash)
	if anchor.Status != domain.AnchorStatusFailed || anchor.ErrorCode != domain.AnchorErrorTimeout {
		t.Fatalf("unexpected anchor %s/%s", anchor.Status, anchor.ErrorCode)
	}
	if anchor.PollAttempts != 3 {
		t.Fatalf("expected 3 poll attempts, got %d", anchor.PollAttempts)
	}
	if got := credentialStatus(t, f, testHash); got != domain.CredentialStatusVaulted {
		t.Fatalf("expected vaulted credential, got %s", got)
	}
}

// A read-through refresh may confirm the anchor while the poller sleeps. The
// poller must notice and leave the confirmed anchor alone.
func TestAnchorSubmitter_PollerStopsAfterRefreshConfirms(t *testing.T) {
	f := newFixture()
	seedCredential(t, f, testHash)
	chain := &stubChain{
		receipts:  []domain.ChainReceipt{{Status: domain.ChainReceiptConfirmed, BlockHeight: 11}},
		afterLast: errors.New("node gone"),
	}
	parked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sleep := func(ctx context.Context, _ time.Duration) error {
		once.Do(func() { close(parked) })
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	obs := &countingObserver{}
	s := newSubmitter(f, chain, SubmitterOptions{Sleep: sleep, PollAttempts: 3, Observer: obs})
	defer closeSubmitter(t, s)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, testHash); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-parked:
	case <-time.After(2 * time.Second):
		t.Fatal("poller never slept")
	}

	res, err := (&ProofVerifier{Credentials: f.creds, Anchors: f.anchors, Refresher: s}).Verify(ctx, testHash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.BlockchainVerified || res.Anchor.Status != domain.AnchorStatusConfirmed {
		t.Fatalf("expected confirmed anchor from verify, got %+v", res.Anchor)
	}

	close(release)
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := waitGroup(wctx, &s.pollers); err != nil {
		t.Fatalf("poller did not exit: %v", err)
	}

	stored, err := f.anchors.Latest(ctx, testHash)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if stored.Status != domain.AnchorStatusConfirmed || stored.ErrorCode != "" || stored.BlockHeight != 11 {
		t.Fatalf("confirmed anchor was overwritten: %+v", stored)
	}
	if got := credentialStatus(t, f, testHash); got != domain.CredentialStatusAnchored {
		t.Fatalf("expected anchored credential, got %s", got)
	}
	if _, lookups := chain.counts(); lookups != 1 {
		t.Fatalf("expected 1 receipt lookup, got %d", lookups)
	}
	if got := obs.count("blockchain/confirmed"); got != 1 {
		t.Fatalf("expected 1 confirmed observation, got %d", got)
	}
	if got := obs.count("blockchain/failed"); got != 0 {
		t.Fatalf("unexpected failed observation")
	}
}

func TestAnchorSubmitter_FallbackPolicies(t *testing.T) {
	unsupported := domain.NewCollaboratorError("chain.submit", domain.CollaboratorUnsupported, domain.ErrAnchorSubmit, "method not found")
	unavailable := domain.NewCollaboratorError("chain.submit", domain.CollaboratorUnavailable, domain.ErrAnchorSubmit, "connection refused")

	cases := []struct {
		name     string
		policy   string
		err      error
		status   string
		kind     string
		code     string
		fallback bool
	}{
		{"any unsupported", FallbackAny, unsupported, domain.AnchorStatusVerified, domain.AnchorKindProofVerification, domain.AnchorErrorUnsupported, true},
		{"any unavailable", FallbackAny, unavailable, domain.AnchorStatusVerified, domain.AnchorKindProofVerification, domain.AnchorErrorNetwork, true},
		{"unsupported only", FallbackUnsupported, unsupported, domain.AnchorStatusVerified, domain.AnchorKindProofVerification, domain.AnchorErrorUnsupported, true},
		{"unsupported transient", FallbackUnsupported, unavailable, domain.AnchorStatusFailed, domain.AnchorKindBlockchain, domain.AnchorErrorNetwork, false},
		{"never", FallbackNever, unsupported, domain.AnchorStatusFailed, domain.AnchorKindBlockchain, domain.AnchorErrorUnsupported, false},
		{"deadline", FallbackNever, context.DeadlineExceeded, domain.AnchorStatusFailed, domain.AnchorKindBlockchain, domain.AnchorErrorTimeout, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			seedCredential(t, f, testHash)
			s := newSubmitter(f, &stubChain{submitErr: tc.err}, SubmitterOptions{Fallback: tc.policy})
			defer closeSubmitter(t, s)

			if _, err := s.Enqueue(context.Background(), testHash); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			anchor := waitSettled(t, f, testHash)
			if anchor.Status != tc.status || anchor.Kind != tc.kind || anchor.ErrorCode != tc.code {
				t.Fatalf("got %s/%s/%s, want %s/%s/%s", anchor.Kind, anchor.Status, anchor.ErrorCode, tc.kind, tc.status, tc.code)
			}
			wantRef := ""
			if tc.fallback {
				wantRef = FallbackReference(testHash)
			}
			if anchor.Reference != wantRef {
				t.Fatalf("unexpected reference %q", anchor.Reference)
			}
			if got := credentialStatus(t, f, testHash); got != domain.CredentialStatusVaulted {
				t.Fatalf("expected vaulted credential, got %s", got)
			}
		})
	}
}

func TestAnchorSubmitter_RetryOnlyAfterFailure(t *testing.T) {
	f := newFixture()
	seedCredential(t, f, testHash)
	chain := &stubChain{submitErr: errors.New("boom")}
	s := newSubmitter(f, chain, SubmitterOptions{Fallback: FallbackNever})
	defer closeSubmitter(t, s)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, testHash); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	first := waitSettled(t, f, testHash)
	if first.Status != domain.AnchorStatusFailed {
		t.Fatalf("expected failed first anchor, got %s", first.Status)
	}

	chain.mu.Lock()
	chain.submitErr = nil
	chain.receipts = []domain.ChainReceipt{{Status: domain.ChainReceiptConfirmed, BlockHeight: 7}}
	chain.mu.Unlock()

	retried, err := s.Retry(ctx, testHash)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.ID == first.ID {
		t.Fatal("retry reused the failed anchor")
	}
	if second := waitSettled(t, f, testHash); second.Status != domain.AnchorStatusConfirmed {
		t.Fatalf("expected confirmed retry, got %s", second.Status)
	}

	if _, err := s.Retry(ctx, testHash); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	history, err := f.anchors.ListByProofHash(ctx, testHash)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 anchors, got %d", len(history))
	}
}

func TestAnchorSubmitter_RetryUnknownCredential(t *testing.T) {
	f := newFixture()
	s := newSubmitter(f, &stubChain{}, SubmitterOptions{})
	defer closeSubmitter(t, s)

	if _, err := s.Retry(context.Background(), testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnchorSubmitter_EnqueueAfterCloseSettlesImmediately(t *testing.T) {
	f := newFixture()
	seedCredential(t, f, testHash)
	chain := &stubChain{}
	s := newSubmitter(f, chain, SubmitterOptions{})
	closeSubmitter(t, s)

	anchor, err := s.Enqueue(context.Background(), testHash)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if anchor.Status != domain.AnchorStatusVerified || anchor.Kind != domain.AnchorKindProofVerification {
		t.Fatalf("unexpected anchor %s/%s", anchor.Kind, anchor.Status)
	}
	if anchor.ErrorCode != domain.AnchorErrorQueueFull {
		t.Fatalf("expected QUEUE_FULL, got %s", anchor.ErrorCode)
	}
	if submits, _ := chain.counts(); submits != 0 {
		t.Fatalf("expected no submits, got %d", submits)
	}
}

func TestAnchorSubmitter_ResumePendingAnchors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-10 * time.Minute)
	fresh := now.Add(-5 * time.Second)
	abandoned := "a" + testHash[1:]
	inFlight := "c" + testHash[1:]
	for _, h := range []string{testHash, abandoned, inFlight} {
		seedCredential(t, f, h)
	}
	anchors := []domain.Anchor{
		{ID: "with-tx", ProofHash: testHash, Kind: domain.AnchorKindBlockchain,
			Status: domain.AnchorStatusPending, TxID: "0xfeed", Reference: "0xfeed", PollAttempts: 2,
			CreatedAt: stale, UpdatedAt: stale},
		{ID: "no-tx", ProofHash: abandoned, Kind: domain.AnchorKindBlockchain, Status: domain.AnchorStatusPending,
			CreatedAt: stale, UpdatedAt: stale},
		{ID: "submitting", ProofHash: inFlight, Kind: domain.AnchorKindBlockchain, Status: domain.AnchorStatusPending,
			CreatedAt: fresh, UpdatedAt: fresh},
	}
	for _, a := range anchors {
		if err := f.anchors.Create(ctx, a); err != nil {
			t.Fatalf("create %s: %v", a.ID, err)
		}
	}

	chain := &stubChain{receipts: []domain.ChainReceipt{{Status: domain.ChainReceiptConfirmed, BlockHeight: 9}}}
	s := newSubmitter(f, chain, SubmitterOptions{
		Now:            func() time.Time { return now },
		InterruptAfter: time.Minute,
	})
	defer closeSubmitter(t, s)

	resumed, err := s.Resume(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != 1 {
		t.Fatalf("expected 1 resumed poller, got %d", resumed)
	}

	anchor := waitSettled(t, f, testHash)
	if anchor.Status != domain.AnchorStatusConfirmed || anchor.PollAttempts != 3 {
		t.Fatalf("unexpected resumed anchor %s after %d polls", anchor.Status, anchor.PollAttempts)
	}

	interrupted, err := f.anchors.Latest(ctx, abandoned)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if interrupted.Status != domain.AnchorStatusFailed || interrupted.ErrorCode != domain.AnchorErrorInterrupted {
		t.Fatalf("expected INTERRUPTED, got %s/%s", interrupted.Status, interrupted.ErrorCode)
	}

	live, err := f.anchors.Latest(ctx, inFlight)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if live.Status != domain.AnchorStatusPending || live.ErrorCode != "" {
		t.Fatalf("recent anchor was touched: %s/%s", live.Status, live.ErrorCode)
	}
	if submits, _ := chain.counts(); submits != 0 {
		t.Fatalf("expected no submits, got %d", submits)
	}
}

func TestAnchorSubmitter_CloseLeavesPollingAnchorPending(t *testing.T) {
	f := newFixture()
	seedCredential(t, f, testHash)
	started := make(chan struct{})
	var once sync.Once
	sleep := func(ctx context.Context, _ time.Duration) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}
	s := newSubmitter(f, &stubChain{}, SubmitterOptions{Sleep: sleep})

	if _, err := s.Enqueue(context.Background(), testHash); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started
	closeSubmitter(t, s)

	anchor, err := f.anchors.Latest(context.Background(), testHash)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if anchor.Status != domain.AnchorStatusPending || anchor.TxID == "" {
		t.Fatalf("expected pending anchor with tx, got %s tx=%q", anchor.Status, anchor.TxID)
	}
}
