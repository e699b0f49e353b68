// Package tessera is a Go client for the tessera authentication service.
package tessera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/layer-3/tessera/core"
	"github.com/shopspring/decimal"
)

// Client represents the public interface for interacting with the tessera service
type Client interface {
	// Register creates a principal and returns its ID
	Register(ctx context.Context, email, password string, initialBalance decimal.Decimal) (int64, error)

	// Login verifies the credentials and returns a token pair
	Login(ctx context.Context, email, password string) (core.TokenPair, error)

	// Refresh exchanges a refresh token for a new access token
	Refresh(ctx context.Context, refreshToken string) (string, error)

	// Logout revokes the refresh token
	Logout(ctx context.Context, refreshToken string) error

	// Balance returns the balance of the principal owning the access token
	Balance(ctx context.Context, accessToken string) (decimal.Decimal, error)

	// Transfer moves amount to the principal registered under toEmail
	Transfer(ctx context.Context, accessToken, toEmail string, amount decimal.Decimal) error
}

// APIError is a non-2xx response from the service
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tessera: %d %s", e.Status, e.Message)
}

// statusErrors lists, per status, the core errors a response message can
// start with, most specific first. The last entry is the fallback.
var statusErrors = map[int][]error{
	http.StatusBadRequest:   {core.ErrInsufficientFunds, core.ErrInvalidInput},
	http.StatusUnauthorized: {core.ErrInvalidCredentials, core.ErrUnauthenticated},
	http.StatusForbidden: {
		core.ErrRevoked,
		core.ErrTokenExpired,
		core.ErrTokenMalformed,
		core.ErrTokenSignature,
		core.ErrInvalidToken,
		core.ErrForbidden,
	},
	http.StatusNotFound: {core.ErrNotFound},
	http.StatusConflict: {core.ErrDuplicateKey},
}

// Unwrap maps the response back onto the core error the server reported,
// falling back to the status class when the message is not recognized.
func (e *APIError) Unwrap() error {
	candidates, ok := statusErrors[e.Status]
	if !ok {
		return nil
	}
	for _, target := range candidates {
		if strings.HasPrefix(e.Message, target.Error()) {
			return target
		}
	}
	return candidates[len(candidates)-1]
}

// HTTPClient talks to a tessera server over HTTP
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewClient creates a client for the server at baseURL. A nil httpClient
// gets a client with a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Register creates a principal and returns its ID
func (c *HTTPClient) Register(ctx context.Context, email, password string, initialBalance decimal.Decimal) (int64, error) {
	req := struct {
		Email          string          `json:"email"`
		Password       string          `json:"password"`
		InitialBalance decimal.Decimal `json:"initialBalance"`
	}{email, password, initialBalance}

	var resp struct {
		UserID int64 `json:"userId"`
	}
	if err := c.do(ctx, http.MethodPost, "/register", "", req, &resp); err != nil {
		return 0, err
	}
	return resp.UserID, nil
}

// Login verifies the credentials and returns a token pair
func (c *HTTPClient) Login(ctx context.Context, email, password string) (core.TokenPair, error) {
	req := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{email, password}

	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		TokenType    string `json:"tokenType"`
		ExpiresIn    int64  `json:"expiresIn"`
	}
	if err := c.do(ctx, http.MethodPost, "/login", "", req, &resp); err != nil {
		return core.TokenPair{}, err
	}
	return core.TokenPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
	}, nil
}

// Refresh exchanges a refresh token for a new access token
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.do(ctx, http.MethodPost, "/token", "", map[string]string{"refreshToken": refreshToken}, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Logout revokes the refresh token
func (c *HTTPClient) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", "", map[string]string{"refreshToken": refreshToken}, nil)
}

// Balance returns the balance of the principal owning the access token
func (c *HTTPClient) Balance(ctx context.Context, accessToken string) (decimal.Decimal, error) {
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/balance", accessToken, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

// Transfer moves amount to the principal registered under toEmail
func (c *HTTPClient) Transfer(ctx context.Context, accessToken, toEmail string, amount decimal.Decimal) error {
	req := struct {
		ToEmail string          `json:"toEmail"`
		Amount  decimal.Decimal `json:"amount"`
	}{toEmail, amount}
	return c.do(ctx, http.MethodPost, "/transfer", accessToken, req, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
