package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/naveenspark/larder/internal/metrics"
	"github.com/naveenspark/larder/pkg/domain"
)

const (
	pathToken    = "/token/"
	pathRefresh  = "/token/refresh/"
	pathRegister = "/users/register/"
	pathMe       = "/users/me/"
	pathRecipes  = "/recipes/"
	pathCart     = "/cart/"
	pathItems    = "/cart/items/"
	pathClear    = "/cart/clear/"
	pathCount    = "/cart/count/"
)

// Tokens is the credential source the client reads and updates. Updates are
// conditional on the session still being the one a request started under.
type Tokens interface {
	Tokens(ctx context.Context) (access, refresh string)
	// SetAccess installs access only while refresh is the stored refresh
	// token, and reports whether it did.
	SetAccess(ctx context.Context, refresh, access string) (bool, error)
	// ClearIf ends the session identified by access and refresh, and
	// reports whether that session was still stored.
	ClearIf(ctx context.Context, access, refresh string) (bool, error)
}

// Client is the larder API client. Protected calls carry the current access
// token; a 401 triggers one refresh and one retry.
type Client struct {
	baseURL    string
	tokens     Tokens
	httpClient *http.Client
	log        zerolog.Logger

	refreshes singleflight.Group

	mu        sync.Mutex
	onExpired func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger for refresh and session events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l.With().Str("component", "client").Logger() }
}

// New creates a new API client.
func New(baseURL string, tokens Tokens, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnSessionExpired registers fn to run after the client clears an expired
// session. fn runs on the goroutine of the failing request.
func (c *Client) OnSessionExpired(fn func()) {
	c.mu.Lock()
	c.onExpired = fn
	c.mu.Unlock()
}

// Login exchanges username and password for a token pair.
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	if err := c.doPublic(ctx, http.MethodPost, pathToken, req, &out); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	return &out, nil
}

// Signup registers a new account and returns its token pair.
func (c *Client) Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	if err := c.doPublic(ctx, http.MethodPost, pathRegister, req, &out); err != nil {
		return nil, fmt.Errorf("client.Signup: %w", err)
	}
	return &out, nil
}

// GetMe returns the authenticated user's profile.
func (c *Client) GetMe(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, pathMe, nil, &u); err != nil {
		return nil, fmt.Errorf("client.GetMe: %w", err)
	}
	return &u, nil
}

// ListRecipes fetches the recipe cards. Both a bare array and a paginated
// {"results": [...]} body are accepted.
func (c *Client) ListRecipes(ctx context.Context) ([]domain.Recipe, error) {
	var raw json.RawMessage
	if err := c.doPublic(ctx, http.MethodGet, pathRecipes, nil, &raw); err != nil {
		return nil, fmt.Errorf("client.ListRecipes: %w", err)
	}
	var recipes []domain.Recipe
	if err := json.Unmarshal(raw, &recipes); err == nil {
		return recipes, nil
	}
	var page struct {
		Results []domain.Recipe `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("client.ListRecipes: decode response: %w", err)
	}
	return page.Results, nil
}

// GetCart returns the server-side cart.
func (c *Client) GetCart(ctx context.Context) (*domain.ServerCart, error) {
	var cart domain.ServerCart
	if err := c.do(ctx, http.MethodGet, pathCart, nil, &cart); err != nil {
		return nil, fmt.Errorf("client.GetCart: %w", err)
	}
	return &cart, nil
}

type addItemRequest struct {
	RecipeID domain.ID `json:"recipe_id"`
	Quantity int       `json:"quantity"`
}

// AddCartItem adds quantity of a recipe. The server increments an existing
// item for the same recipe.
func (c *Client) AddCartItem(ctx context.Context, recipeID string, quantity int) (*domain.ServerCartItem, error) {
	var item domain.ServerCartItem
	body := addItemRequest{RecipeID: domain.ID(recipeID), Quantity: quantity}
	if err := c.do(ctx, http.MethodPost, pathItems, body, &item); err != nil {
		return nil, fmt.Errorf("client.AddCartItem: %w", err)
	}
	return &item, nil
}

// UpdateCartItem sets the absolute quantity of a server item.
func (c *Client) UpdateCartItem(ctx context.Context, itemID string, quantity int) (*domain.ServerCartItem, error) {
	var item domain.ServerCartItem
	body := map[string]int{"quantity": quantity}
	if err := c.do(ctx, http.MethodPatch, pathItems+url.PathEscape(itemID)+"/", body, &item); err != nil {
		return nil, fmt.Errorf("client.UpdateCartItem: %w", err)
	}
	return &item, nil
}

// DeleteCartItem removes a server item.
func (c *Client) DeleteCartItem(ctx context.Context, itemID string) error {
	if err := c.do(ctx, http.MethodDelete, pathItems+url.PathEscape(itemID)+"/", nil, nil); err != nil {
		return fmt.Errorf("client.DeleteCartItem: %w", err)
	}
	return nil
}

// ClearCart empties the server cart.
func (c *Client) ClearCart(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, pathClear, nil, nil); err != nil {
		return fmt.Errorf("client.ClearCart: %w", err)
	}
	return nil
}

// CartCount returns the total quantity in the server cart.
func (c *Client) CartCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, pathCount, nil, &out); err != nil {
		return 0, fmt.Errorf("client.CartCount: %w", err)
	}
	return out.Count, nil
}

// do sends a protected request. On 401 it refreshes the access token once
// and retries once; a second 401 is returned as is.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := encode(body)
	if err != nil {
		return err
	}
	access, refresh := c.tokens.Tokens(ctx)
	if access == "" {
		return ErrNoSession
	}

	err = c.send(ctx, method, path, payload, access, out)
	if !IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	if refresh == "" {
		if !c.expire(ctx, access, refresh) {
			return fmt.Errorf("%w: %w", ErrSessionChanged, err)
		}
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	fresh, err := c.refreshAccess(ctx, access, refresh)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, payload, fresh, out)
}

func (c *Client) doPublic(ctx context.Context, method, path string, body, out any) error {
	payload, err := encode(body)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, payload, "", out)
}

// refreshAccess trades refresh for a new access token. Concurrent callers
// holding the same refresh token share one exchange, and a caller whose
// stale token was already replaced reuses the replacement. A request whose
// session was replaced by another sign-in is never retried.
func (c *Client) refreshAccess(ctx context.Context, stale, refresh string) (string, error) {
	v, err, _ := c.refreshes.Do(refresh, func() (any, error) {
		current, currentRefresh := c.tokens.Tokens(ctx)
		if currentRefresh != refresh {
			return nil, ErrSessionChanged
		}
		if current != "" && current != stale {
			return current, nil
		}

		payload, err := encode(map[string]string{"refresh": refresh})
		if err != nil {
			return nil, err
		}
		var out struct {
			Access string `json:"access"`
		}
		err = c.send(ctx, http.MethodPost, pathRefresh, payload, "", &out)
		if err == nil && out.Access == "" {
			err = errors.New("refresh response carried no access token")
		}
		if err != nil {
			metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
			if !c.expire(ctx, stale, refresh) {
				c.log.Info().Err(err).Msg("token refresh failed for a replaced session")
				return nil, fmt.Errorf("%w: refresh: %w", ErrSessionChanged, err)
			}
			c.log.Info().Err(err).Msg("token refresh failed; session ended")
			return nil, fmt.Errorf("%w: refresh: %w", ErrSessionExpired, err)
		}

		metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
		ok, err := c.tokens.SetAccess(ctx, refresh, out.Access)
		if err != nil {
			c.log.Warn().Err(err).Msg("store refreshed access token")
		}
		if !ok {
			c.log.Info().Msg("session replaced during token refresh")
			return nil, ErrSessionChanged
		}
		return out.Access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// expire clears the session identified by access and refresh. The expiry
// hook runs only when that session was still stored.
func (c *Client) expire(ctx context.Context, access, refresh string) bool {
	cleared, err := c.tokens.ClearIf(ctx, access, refresh)
	if err != nil {
		c.log.Warn().Err(err).Msg("clear expired session")
	}
	if !cleared {
		return false
	}
	metrics.SessionsExpiredTotal.Inc()

	c.mu.Lock()
	fn := c.onExpired
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

func encode(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, access string, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
