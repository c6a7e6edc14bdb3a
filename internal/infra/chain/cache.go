package chain

import (
	"context"
	"time"

	"credanchor/internal/domain"
	"credanchor/internal/infra/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingClient remembers settled receipts. Pending receipts are always
// fetched again.
type CachingClient struct {
	next    domain.ChainClient
	cache   *expirable.LRU[string, domain.ChainReceipt]
	metrics *metrics.Metrics
}

func NewCachingClient(next domain.ChainClient, size int, ttl time.Duration, m *metrics.Metrics) *CachingClient {
	if size <= 0 {
		size = 1024
	}
	return &CachingClient{
		next:    next,
		cache:   expirable.NewLRU[string, domain.ChainReceipt](size, nil, ttl),
		metrics: m,
	}
}

func (c *CachingClient) Submit(ctx context.Context, proofHash string) (string, error) {
	return c.next.Submit(ctx, proofHash)
}

func (c *CachingClient) Receipt(ctx context.Context, txID string) (domain.ChainReceipt, error) {
	if r, ok := c.cache.Get(txID); ok {
		c.metrics.ReceiptCache(true)
		return r, nil
	}
	c.metrics.ReceiptCache(false)
	r, err := c.next.Receipt(ctx, txID)
	if err != nil {
		return r, err
	}
	if r.Status != domain.ChainReceiptPending {
		c.cache.Add(txID, r)
	}
	return r, nil
}

func (c *CachingClient) Len() int { return c.cache.Len() }
