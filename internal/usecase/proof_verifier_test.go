package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"credanchor/internal/domain"
	"credanchor/pkg/proofhash"
)

func TestNormalizeProofHash(t *testing.T) {
	got, err := NormalizeProofHash("proofHash", "  "+strings.ToUpper(testHash)+" ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != testHash {
		t.Fatalf("expected %s, got %s", testHash, got)
	}

	for _, bad := range []string{"", "abc", testHash + "0", "g" + testHash[1:]} {
		if _, err := NormalizeProofHash("proofHash", bad); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", bad, err)
		}
	}
}

func TestProofVerifier_UnknownHash(t *testing.T) {
	f := newFixture()
	uc := &ProofVerifier{Credentials: f.creds, Anchors: f.anchors}

	res, err := uc.Verify(context.Background(), testHash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Exists || res.Credential != nil || res.Anchor != nil {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestProofVerifier_MalformedHash(t *testing.T) {
	f := newFixture()
	uc := &ProofVerifier{Credentials: f.creds, Anchors: f.anchors}

	_, err := uc.Verify(context.Background(), "not-a-hash")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Field != "proofHash" {
		t.Fatalf("unexpected field %q", verr.Field)
	}
}

func TestProofVerifier_RoundTripAfterIssue(t *testing.T) {
	f := newFixture()
	unsupported := domain.NewCollaboratorError("chain.submit", domain.CollaboratorUnsupported, domain.ErrAnchorSubmit, "not configured")
	s := newSubmitter(f, &stubChain{submitErr: unsupported}, SubmitterOptions{})
	defer closeSubmitter(t, s)
	issuer := newIssuer(f, s)
	ctx := context.Background()

	value := map[string]any{"name": "Alice", "age": 30}
	payload, err := proofhash.Structured(value)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	issued, err := issuer.Issue(ctx, payload, IssueMetadata{Source: SourceField})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Credential.Status != domain.CredentialStatusVaulted {
		t.Fatalf("expected vaulted, got %s", issued.Credential.Status)
	}
	waitSettled(t, f, issued.Credential.ProofHash)

	hash, err := proofhash.HashStructured(value)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	res, err := (&ProofVerifier{Credentials: f.creds, Anchors: f.anchors, Refresher: s}).Verify(ctx, hash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Exists || !res.ProofHashMatches || res.BlockchainVerified {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Anchor == nil || res.Anchor.Kind != domain.AnchorKindProofVerification || res.Anchor.Status != domain.AnchorStatusVerified {
		t.Fatalf("expected verified fallback anchor, got %+v", res.Anchor)
	}
}

func TestProofVerifier_RefreshesPendingAnchor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedCredential(t, f, testHash)
	err := f.anchors.Create(ctx, domain.Anchor{
		ID: "a1", ProofHash: testHash, Kind: domain.AnchorKindBlockchain,
		Status: domain.AnchorStatusPending, TxID: "0x01", Reference: "0x01",
	})
	if err != nil {
		t.Fatalf("create anchor: %v", err)
	}
	chain := &stubChain{receipts: []domain.ChainReceipt{{Status: domain.ChainReceiptConfirmed, BlockHeight: 100}}}
	s := newSubmitter(f, chain, SubmitterOptions{})
	defer closeSubmitter(t, s)

	res, err := (&ProofVerifier{Credentials: f.creds, Anchors: f.anchors, Refresher: s}).Verify(ctx, testHash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.BlockchainVerified || res.Anchor.BlockHeight != 100 {
		t.Fatalf("expected confirmed anchor at 100, got %+v", res.Anchor)
	}
	if res.Credential.Status != domain.CredentialStatusAnchored {
		t.Fatalf("expected anchored credential, got %s", res.Credential.Status)
	}

	stored, err := f.anchors.Latest(ctx, testHash)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if stored.Status != domain.AnchorStatusConfirmed {
		t.Fatalf("refresh was not persisted: %s", stored.Status)
	}
}

func TestProofVerifier_PendingStaysPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedCredential(t, f, testHash)
	err := f.anchors.Create(ctx, domain.Anchor{
		ID: "a1", ProofHash: testHash, Kind: domain.AnchorKindBlockchain,
		Status: domain.AnchorStatusPending, TxID: "0x01",
	})
	if err != nil {
		t.Fatalf("create anchor: %v", err)
	}
	s := newSubmitter(f, &stubChain{}, SubmitterOptions{})
	defer closeSubmitter(t, s)

	res, err := (&ProofVerifier{Credentials: f.creds, Anchors: f.anchors, Refresher: s}).Verify(ctx, testHash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.BlockchainVerified || res.Anchor.Status != domain.AnchorStatusPending {
		t.Fatalf("expected pending anchor, got %+v", res.Anchor)
	}
	if res.Credential.Status != domain.CredentialStatusVaulted {
		t.Fatalf("expected vaulted credential, got %s", res.Credential.Status)
	}
}
