package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/dbrelay/internal/model"
)

var ErrNotFound = errors.New("ledger: block not found")

// Client is the subset of the ledger node API the confirmer needs.
type Client interface {
	GetBlockMetadata(ctx context.Context, blockID string) (model.BlockMetadata, error)
	GetBlock(ctx context.Context, blockID string) (model.Block, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeoutMs int) *HTTPClient {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
	}
}

func (c *HTTPClient) GetBlockMetadata(ctx context.Context, blockID string) (model.BlockMetadata, error) {
	var md model.BlockMetadata
	if err := c.get(ctx, "/api/core/v2/blocks/"+url.PathEscape(blockID)+"/metadata", &md); err != nil {
		return model.BlockMetadata{}, err
	}
	if md.BlockID == "" {
		md.BlockID = blockID
	}

	return md, nil
}

func (c *HTTPClient) GetBlock(ctx context.Context, blockID string) (model.Block, error) {
	var b model.Block
	if err := c.get(ctx, "/api/core/v2/blocks/"+url.PathEscape(blockID), &b); err != nil {
		return model.Block{}, err
	}

	return b, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if res.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("ledger path=%s status=%d body=%q", path, res.StatusCode, body)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("ledger path=%s decode: %w", path, err)
	}

	return nil
}
