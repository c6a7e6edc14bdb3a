// Package chain anchors proof hashes on an Ethereum compatible chain through
// its JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"credanchor/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const codeMethodNotFound = -32601

type Options struct {
	URL        string
	From       string
	To         string
	HTTPClient *http.Client
}

type RPCClient struct {
	rpc  *rpc.Client
	from common.Address
	to   common.Address
}

func NewRPCClient(opts Options) (*RPCClient, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("chain rpc url is required")
	}
	if !common.IsHexAddress(opts.From) {
		return nil, errors.New("chain sender address is invalid")
	}
	from := common.HexToAddress(opts.From)
	to := from
	if opts.To != "" {
		if !common.IsHexAddress(opts.To) {
			return nil, errors.New("chain recipient address is invalid")
		}
		to = common.HexToAddress(opts.To)
	}

	var dialOpts []rpc.ClientOption
	if opts.HTTPClient != nil {
		dialOpts = append(dialOpts, rpc.WithHTTPClient(opts.HTTPClient))
	}
	client, err := rpc.DialOptions(context.Background(), opts.URL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return &RPCClient{rpc: client, from: from, to: to}, nil
}

func (c *RPCClient) Close() error {
	c.rpc.Close()
	return nil
}

type txParams struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

type txReceipt struct {
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	Status      *hexutil.Uint64 `json:"status"`
}

type blockHeader struct {
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// Submit sends a zero value transaction carrying the proof hash as data and
// returns the transaction hash.
func (c *RPCClient) Submit(ctx context.Context, proofHash string) (string, error) {
	data, err := hexutil.Decode("0x" + proofHash)
	if err != nil {
		return "", domain.NewCollaboratorError("chain.submit", domain.CollaboratorRejected, domain.ErrAnchorSubmit, err.Error())
	}
	var txHash common.Hash
	err = c.rpc.CallContext(ctx, &txHash, "eth_sendTransaction", txParams{
		From:  c.from,
		To:    c.to,
		Value: (*hexutil.Big)(new(big.Int)),
		Data:  data,
	})
	if err != nil {
		return "", submitError("chain.submit", err)
	}
	if txHash == (common.Hash{}) {
		return "", domain.NewCollaboratorError("chain.submit", domain.CollaboratorRejected, domain.ErrAnchorSubmit, "empty transaction hash")
	}
	return txHash.Hex(), nil
}

func (c *RPCClient) Receipt(ctx context.Context, txID string) (domain.ChainReceipt, error) {
	var receipt *txReceipt
	if err := c.rpc.CallContext(ctx, &receipt, "eth_getTransactionReceipt", txID); err != nil {
		return domain.ChainReceipt{}, submitError("chain.receipt", err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return domain.ChainReceipt{TxID: txID, Status: domain.ChainReceiptPending}, nil
	}
	number := receipt.BlockNumber.ToInt()
	if !number.IsInt64() {
		return domain.ChainReceipt{}, domain.NewCollaboratorError("chain.receipt", domain.CollaboratorRejected, domain.ErrAnchorSubmit, "block number out of range")
	}
	height := number.Int64()
	if receipt.Status != nil && *receipt.Status == 0 {
		return domain.ChainReceipt{TxID: txID, Status: domain.ChainReceiptFailed, BlockHeight: height}, nil
	}

	var head *blockHeader
	if err := c.rpc.CallContext(ctx, &head, "eth_getBlockByNumber", receipt.BlockNumber, false); err != nil {
		return domain.ChainReceipt{}, submitError("chain.block", err)
	}
	out := domain.ChainReceipt{TxID: txID, Status: domain.ChainReceiptConfirmed, BlockHeight: height}
	if head != nil && head.Timestamp > 0 {
		out.BlockTime = time.Unix(int64(head.Timestamp), 0).UTC()
	}
	return out, nil
}

func submitError(op string, err error) error {
	return domain.NewCollaboratorError(op, classify(err), domain.ErrAnchorSubmit, err.Error())
}

func classify(err error) domain.CollaboratorKind {
	var rpcErr rpc.Error
	var httpErr rpc.HTTPError
	var urlErr *url.Error
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CollaboratorTimeout
	case errors.As(err, &rpcErr):
		if rpcErr.ErrorCode() == codeMethodNotFound {
			return domain.CollaboratorUnsupported
		}
		return domain.CollaboratorRejected
	case errors.As(err, &httpErr):
		switch {
		case httpErr.StatusCode == http.StatusNotFound, httpErr.StatusCode == http.StatusMethodNotAllowed:
			return domain.CollaboratorUnsupported
		case httpErr.StatusCode >= 500, httpErr.StatusCode == http.StatusTooManyRequests:
			return domain.CollaboratorUnavailable
		default:
			return domain.CollaboratorRejected
		}
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return domain.CollaboratorUnavailable
	default:
		return domain.CollaboratorRejected
	}
}
