package roblox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"horizon/config"
	"horizon/internal/ctxutil"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	cookieName    = ".ROBLOSECURITY"
	cookieWarning = "_|WARNING:-DO-NOT-SHARE-THIS.--Sharing-this-will-allow-someone-to-log-in-as-you-and-to-steal-your-ROBUX-and-items.|_"
	csrfHeader    = "X-Csrf-Token"

	// maxRateLimitWaits bounds how many 429 responses a single call absorbs.
	maxRateLimitWaits = 10
)

var (
	// ErrInvalidCookie is returned when the platform rejects the session cookie.
	ErrInvalidCookie = errors.New("roblox cookie is invalid or expired")

	// ErrRateLimited is returned once a call has been rate limited too many times.
	ErrRateLimited = errors.New("roblox rate limit exceeded")
)

// UnknownResponseError is returned when a call keeps failing with a status
// the session does not know how to handle.
type UnknownResponseError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("unknown response from %s: status=%d body=%s", e.URL, e.StatusCode, e.Body)
}

// IsFatal reports whether err means the session can no longer be used.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidCookie)
}

// Direction is a trade listing category.
type Direction string

const (
	Inbound   Direction = "Inbound"
	Outbound  Direction = "Outbound"
	Completed Direction = "Completed"
	Inactive  Direction = "Inactive"
)

// ParseDirection maps a case-insensitive name onto a Direction.
func ParseDirection(s string) (Direction, error) {
	for _, d := range []Direction{Inbound, Outbound, Completed, Inactive} {
		if strings.EqualFold(strings.TrimSpace(s), string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown trade direction %q", s)
}

// User is a platform user as returned by the trades and users APIs.
type User struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// TradeSummary is one entry of a trade listing.
type TradeSummary struct {
	ID       int64     `json:"id"`
	User     User      `json:"user"`
	Created  time.Time `json:"created"`
	IsActive bool      `json:"isActive"`
	Status   string    `json:"status"`
}

// UserAsset is one item inside a trade offer.
type UserAsset struct {
	ID                 int64  `json:"id"`
	SerialNumber       *int64 `json:"serialNumber"`
	AssetID            int64  `json:"assetId"`
	Name               string `json:"name"`
	RecentAveragePrice *int64 `json:"recentAveragePrice"`
	OriginalPrice      *int64 `json:"originalPrice"`
	AssetStock         *int64 `json:"assetStock"`
	MembershipType     string `json:"membershipType"`
}

// Offer is one party's side of a trade.
type Offer struct {
	User       User        `json:"user"`
	UserAssets []UserAsset `json:"userAssets"`
	Robux      int64       `json:"robux"`
}

// TradeDetail is the full trade document.
type TradeDetail struct {
	ID       int64     `json:"id"`
	Offers   []Offer   `json:"offers"`
	Created  time.Time `json:"created"`
	IsActive bool      `json:"isActive"`
	Status   string    `json:"status"`
}

type tradeListResponse struct {
	PreviousPageCursor string         `json:"previousPageCursor"`
	NextPageCursor     string         `json:"nextPageCursor"`
	Data               []TradeSummary `json:"data"`
}

// Session is an authenticated client for one account.
type Session struct {
	logger     *zap.Logger
	httpClient *http.Client
	limiter    *rate.Limiter
	cookie     string

	usersURL  string
	tradesURL string
	authURL   string

	maxAttempts int
	retryDelay  time.Duration

	mu        sync.Mutex
	csrfToken string
}

// NormalizeCookie strips any prefix from a pasted cookie and restores the
// standard warning prefix the platform expects.
func NormalizeCookie(cookie string) string {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return ""
	}
	parts := strings.Split(cookie, "_")
	return cookieWarning + parts[len(parts)-1]
}

func NewSession(logger *zap.Logger, cfg *config.Config, cookie string) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.Roblox.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.Roblox.RequestsPerSecond)
	}

	maxAttempts := cfg.Roblox.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	return &Session{
		logger:      logger,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(limit, 1),
		cookie:      NormalizeCookie(cookie),
		usersURL:    strings.TrimRight(cfg.Roblox.UsersURL, "/"),
		tradesURL:   strings.TrimRight(cfg.Roblox.TradesURL, "/"),
		authURL:     strings.TrimRight(cfg.Roblox.AuthURL, "/"),
		maxAttempts: maxAttempts,
		retryDelay:  cfg.Roblox.RetryDelay,
	}
}

// Authenticate returns the user the session cookie belongs to.
func (s *Session) Authenticate(ctx context.Context) (*User, error) {
	var user User
	if err := s.doGet(ctx, s.usersURL+"/v1/users/authenticated", &user); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return &user, nil
}

// ListTrades returns up to limit trades of the given direction, newest first.
// The page is requested at the next size the API accepts and trimmed back to
// limit.
func (s *Session) ListTrades(ctx context.Context, dir Direction, limit int) ([]TradeSummary, error) {
	url := fmt.Sprintf("%s/v1/trades/%s?limit=%d&sortOrder=Desc", s.tradesURL, dir, pageSize(limit))

	var resp tradeListResponse
	if err := s.doGet(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("list %s trades: %w", dir, err)
	}
	if limit > 0 && len(resp.Data) > limit {
		resp.Data = resp.Data[:limit]
	}
	return resp.Data, nil
}

// GetTrade returns the full document of one trade.
func (s *Session) GetTrade(ctx context.Context, id int64) (*TradeDetail, error) {
	var detail TradeDetail
	if err := s.doGet(ctx, fmt.Sprintf("%s/v1/trades/%d", s.tradesURL, id), &detail); err != nil {
		return nil, fmt.Errorf("get trade %d: %w", id, err)
	}
	return &detail, nil
}

// pageSize rounds limit up to one of the page sizes the trades API accepts.
func pageSize(limit int) int {
	for _, size := range []int{10, 25, 50, 100} {
		if limit <= size {
			return size
		}
	}
	return 100
}

func (s *Session) doGet(ctx context.Context, url string, dest any) error {
	attempts := 0
	rateLimited := 0

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		s.decorate(req)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			attempts++
			if attempts >= s.maxAttempts || ctx.Err() != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			s.logger.Debug("roblox request failed, retrying", zap.String("url", url), zap.Error(err))
			if err := ctxutil.Sleep(ctx, s.retryDelay); err != nil {
				return err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, dest); err != nil {
				return fmt.Errorf("decode json: %w", err)
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			return ErrInvalidCookie

		case resp.StatusCode == http.StatusTooManyRequests:
			rateLimited++
			if rateLimited > maxRateLimitWaits {
				return ErrRateLimited
			}
			s.logger.Debug("roblox rate limited", zap.String("url", url), zap.Duration("wait", s.retryDelay))
			if err := ctxutil.Sleep(ctx, s.retryDelay); err != nil {
				return err
			}

		case resp.StatusCode == http.StatusForbidden && resp.Header.Get(csrfHeader) != "":
			attempts++
			s.setCSRF(resp.Header.Get(csrfHeader))
			if attempts >= s.maxAttempts {
				return &UnknownResponseError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
			}

		default:
			attempts++
			if attempts >= s.maxAttempts {
				return &UnknownResponseError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
			}
			s.logger.Debug("unexpected roblox response, refreshing csrf token",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
			)
			if err := s.refreshCSRF(ctx); err != nil {
				s.logger.Debug("csrf refresh failed", zap.Error(err))
			}
			if err := ctxutil.Sleep(ctx, s.retryDelay); err != nil {
				return err
			}
		}
	}
}

// refreshCSRF asks the auth endpoint for a fresh token. The endpoint always
// answers 403 with the token in a header.
func (s *Session) refreshCSRF(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL+"/v2/logout", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.decorate(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	token := resp.Header.Get(csrfHeader)
	if token == "" {
		return fmt.Errorf("no csrf token in response: status=%d", resp.StatusCode)
	}
	s.setCSRF(token)
	return nil
}

func (s *Session) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", cookieName+"="+s.cookie)

	s.mu.Lock()
	token := s.csrfToken
	s.mu.Unlock()
	if token != "" {
		req.Header.Set(csrfHeader, token)
	}
}

func (s *Session) setCSRF(token string) {
	s.mu.Lock()
	s.csrfToken = token
	s.mu.Unlock()
}
