package kvvault

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"credanchor/internal/domain"

	vaultapi "github.com/hashicorp/vault/api"
)

// Client reads and writes secrets of a single KV v2 mount.
type Client struct {
	kv *vaultapi.KVv2
}

func NewClient(addr, token, mount string) (*Client, error) {
	if strings.TrimSpace(addr) == "" || token == "" {
		return nil, errors.New("vault addr and token are required")
	}
	cfg := vaultapi.DefaultConfig()
	if cfg.Error != nil {
		return nil, cfg.Error
	}
	cfg.Address = strings.TrimRight(addr, "/")
	cfg.Timeout = 10 * time.Second
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)
	return &Client{kv: client.KVv2(strings.Trim(mount, "/"))}, nil
}

func (c *Client) ReadKV(ctx context.Context, path string) (map[string]any, error) {
	sec, err := c.kv.Get(ctx, path)
	if errors.Is(err, vaultapi.ErrSecretNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sec == nil || len(sec.Data) == 0 {
		return nil, domain.ErrNotFound
	}
	return sec.Data, nil
}

func (c *Client) WriteKV(ctx context.Context, path string, data map[string]any) error {
	_, err := c.kv.Put(ctx, path, data)
	return err
}

// DeleteKV removes every version and the metadata of path.
func (c *Client) DeleteKV(ctx context.Context, path string) error {
	err := c.kv.DeleteMetadata(ctx, path)
	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}
