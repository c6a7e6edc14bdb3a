package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"credanchor/pkg/proofhash"
)

type verifyResult struct {
	Exists     bool `json:"exists"`
	Credential *struct {
		FileName string `json:"fileName"`
		Status   string `json:"status"`
	} `json:"credential"`
	Anchoring *struct {
		Type      string `json:"anchorType"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
	} `json:"anchoring"`
	Verification *struct {
		BlockchainVerified bool `json:"blockchainVerified"`
	} `json:"verification"`
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var server string
	var timeout time.Duration
	fs.StringVar(&server, "server", "http://localhost:8080", "credanchor server base URL")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "verify requires a proof hash")
		return 1
	}
	hash := strings.ToLower(strings.TrimSpace(fs.Arg(0)))
	if !proofhash.IsProofHash(hash) {
		fmt.Fprintln(stderr, "proof hash must be 64 hexadecimal characters")
		return 1
	}

	body, _ := json.Marshal(map[string]string{"proofHash": hash})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/verify", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(stderr, "build request: %v\n", err)
		return 1
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fmt.Fprintf(stderr, "verify: server returned %d: %s\n", resp.StatusCode, strings.TrimSpace(string(msg)))
		return 1
	}

	var res verifyResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		fmt.Fprintf(stderr, "decode response: %v\n", err)
		return 1
	}
	if !res.Exists {
		fmt.Fprintf(stdout, "%s  not found\n", hash)
		return 2
	}
	status := "unknown"
	if res.Credential != nil {
		status = res.Credential.Status
	}
	fmt.Fprintf(stdout, "%s  exists status=%s", hash, status)
	if res.Anchoring != nil {
		fmt.Fprintf(stdout, " anchor=%s/%s reference=%s", res.Anchoring.Type, res.Anchoring.Status, res.Anchoring.Reference)
	}
	if res.Verification != nil && res.Verification.BlockchainVerified {
		fmt.Fprint(stdout, " blockchain-verified")
	}
	fmt.Fprintln(stdout)
	return 0
}
