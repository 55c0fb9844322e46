package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"

	infoPath     = "/info"
	exchangePath = "/exchange"
)

// Client is a typed HTTP client for the venue's info and exchange
// endpoints. Reads are safe for concurrent use; writes are serialized
// by nonce assignment.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	signer     *Signer
	isMainnet  bool
	logger     *logrus.Entry

	nonceMu   chan struct{}
	lastNonce int64
}

// Option configures a Client.
type Option func(*Client)

// WithSigner attaches a trading key; without one the client is read-only.
func WithSigner(s *Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// NewClient creates a venue client. The rate limiter is shared across
// all calls; the venue weights info requests at roughly 20/s per IP.
func NewClient(testnet bool, opts ...Option) *Client {
	c := &Client{
		baseURL:    MainnetAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(20), 40),
		isMainnet:  !testnet,
		logger:     logrus.WithField("component", "hyperliquid"),
		nonceMu:    make(chan struct{}, 1),
	}
	if testnet {
		c.baseURL = TestnetAPIURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CanTrade reports whether a signer is attached.
func (c *Client) CanTrade() bool {
	return c.signer != nil
}

// WalletAddress returns the signer's address, or empty when read-only.
func (c *Client) WalletAddress() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Address()
}

// post sends one JSON request with retry on transient failures.
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	var respBody []byte
	err = retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			respBody, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("venue returned %d: %s", resp.StatusCode, string(respBody))
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("venue returned %d: %s", resp.StatusCode, string(respBody)))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// info issues one info-endpoint query.
func (c *Client) info(ctx context.Context, req map[string]interface{}, out interface{}) error {
	return c.post(ctx, infoPath, req, out)
}

// Meta fetches the perp universe. dex selects a builder-deployed dex;
// empty means the first-party dex.
func (c *Client) Meta(ctx context.Context, dex string) (*Meta, error) {
	req := map[string]interface{}{"type": "meta"}
	if dex != "" {
		req["dex"] = dex
	}
	var out Meta
	if err := c.info(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("meta fetch failed: %w", err)
	}
	return &out, nil
}

// MetaAndAssetCtxs fetches the universe together with asset contexts.
func (c *Client) MetaAndAssetCtxs(ctx context.Context, dex string) (*MetaAndAssetCtxs, error) {
	req := map[string]interface{}{"type": "metaAndAssetCtxs"}
	if dex != "" {
		req["dex"] = dex
	}
	var out MetaAndAssetCtxs
	if err := c.info(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("metaAndAssetCtxs fetch failed: %w", err)
	}
	return &out, nil
}

// PerpDexs lists all deployers. The first entry is nil: it stands for
// the first-party dex.
func (c *Client) PerpDexs(ctx context.Context) ([]*PerpDex, error) {
	var out []*PerpDex
	if err := c.info(ctx, map[string]interface{}{"type": "perpDexs"}, &out); err != nil {
		return nil, fmt.Errorf("perpDexs fetch failed: %w", err)
	}
	return out, nil
}

// AllPerpMetas fetches every dex's universe in one call.
func (c *Client) AllPerpMetas(ctx context.Context) ([]Meta, error) {
	var out []Meta
	if err := c.info(ctx, map[string]interface{}{"type": "allPerpMetas"}, &out); err != nil {
		return nil, fmt.Errorf("allPerpMetas fetch failed: %w", err)
	}
	return out, nil
}

// SpotMeta fetches spot pair and token metadata.
func (c *Client) SpotMeta(ctx context.Context) (*SpotMeta, error) {
	var out SpotMeta
	if err := c.info(ctx, map[string]interface{}{"type": "spotMeta"}, &out); err != nil {
		return nil, fmt.Errorf("spotMeta fetch failed: %w", err)
	}
	return &out, nil
}

// L2Book fetches one market's orderbook snapshot.
func (c *Client) L2Book(ctx context.Context, coin string, nSigFigs int) (*L2Book, error) {
	req := map[string]interface{}{"type": "l2Book", "coin": coin}
	if nSigFigs > 0 {
		req["nSigFigs"] = nSigFigs
	}
	var out L2Book
	if err := c.info(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("l2Book fetch failed for %s: %w", coin, err)
	}
	return &out, nil
}

// ClearinghouseState fetches the perp account state for a user.
func (c *Client) ClearinghouseState(ctx context.Context, user string) (*UserState, error) {
	var out UserState
	req := map[string]interface{}{"type": "clearinghouseState", "user": user}
	if err := c.info(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("clearinghouseState fetch failed: %w", err)
	}
	return &out, nil
}

// SpotClearinghouseState fetches the spot balances for a user.
func (c *Client) SpotClearinghouseState(ctx context.Context, user string) (*SpotUserState, error) {
	var out SpotUserState
	req := map[string]interface{}{"type": "spotClearinghouseState", "user": user}
	if err := c.info(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("spotClearinghouseState fetch failed: %w", err)
	}
	return &out, nil
}

// OpenOrders fetches resting orders for a user.
func (c *Client) OpenOrders(ctx context.Context, user string) ([]OpenOrder, error) {
	var out []OpenOrder
	req := map[string]interface{}{"type": "openOrders", "user": user}
	if err := c.info(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("openOrders fetch failed: %w", err)
	}
	return out, nil
}

// UserFills fetches recent fills for a user.
func (c *Client) UserFills(ctx context.Context, user string) ([]Fill, error) {
	var out []Fill
	req := map[string]interface{}{"type": "userFills", "user": user}
	if err := c.info(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("userFills fetch failed: %w", err)
	}
	return out, nil
}

// FundingHistory fetches funding records for a coin. endMs of zero
// means now.
func (c *Client) FundingHistory(ctx context.Context, coin string, startMs, endMs int64) ([]FundingRecord, error) {
	req := map[string]interface{}{"type": "fundingHistory", "coin": coin, "startTime": startMs}
	if endMs > 0 {
		req["endTime"] = endMs
	}
	var out []FundingRecord
	if err := c.info(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("fundingHistory fetch failed for %s: %w", coin, err)
	}
	return out, nil
}

// MaxBuilderFee returns the current approved builder fee, in tenths of
// a basis point, for the user/builder pair.
func (c *Client) MaxBuilderFee(ctx context.Context, user, builder string) (int, error) {
	var out int
	req := map[string]interface{}{"type": "maxBuilderFee", "user": user, "builder": builder}
	if err := c.info(ctx, req, &out); err != nil {
		return 0, fmt.Errorf("maxBuilderFee fetch failed: %w", err)
	}
	return out, nil
}
