package rolimons

import (
	"context"
	"fmt"
	"horizon/config"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Positions inside an itemdetails entry:
// [name, acronym, rap, value, default_value, demand, trend, projected, hyped, rare]
const (
	fieldName  = 0
	fieldRAP   = 2
	fieldValue = 3
)

// Valuation is the external valuation of one asset.
type Valuation struct {
	Name string
	RAP  int64
	// Value is 0 when the asset has no external valuation.
	Value int64
}

// Snapshot is an immutable view of every known valuation.
type Snapshot struct {
	Items     map[int64]Valuation
	FetchedAt time.Time
}

// Lookup returns the valuation for assetID. A nil snapshot knows nothing.
func (s *Snapshot) Lookup(assetID int64) (Valuation, bool) {
	if s == nil {
		return Valuation{}, false
	}
	v, ok := s.Items[assetID]
	return v, ok
}

// Len returns the number of valued assets.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}

// Client fetches valuations from the Rolimons item API.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	url        string
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        cfg.Rolimons.ItemDetailsURL,
	}
}

// FetchSnapshot downloads and parses the full item list.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	snap, err := ParseItemDetails(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched rolimons valuations", zap.Int("items", snap.Len()))
	return snap, nil
}

// ParseItemDetails parses an itemdetails document. Non-positive values are
// stored as 0.
func ParseItemDetails(body []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode json: invalid document")
	}

	doc := gjson.ParseBytes(body)
	if success := doc.Get("success"); success.Exists() && !success.Bool() {
		return nil, fmt.Errorf("rolimons reported failure: %s", doc.Get("message").String())
	}

	items := doc.Get("items")
	if !items.IsObject() {
		return nil, fmt.Errorf("decode json: missing items object")
	}

	snap := &Snapshot{
		Items:     make(map[int64]Valuation),
		FetchedAt: time.Now(),
	}

	items.ForEach(func(key, value gjson.Result) bool {
		id, err := strconv.ParseInt(key.String(), 10, 64)
		if err != nil || !value.IsArray() {
			return true
		}
		fields := value.Array()
		if len(fields) <= fieldValue {
			return true
		}

		val := fields[fieldValue].Int()
		if val < 0 {
			val = 0
		}
		rap := fields[fieldRAP].Int()
		if rap < 0 {
			rap = 0
		}

		snap.Items[id] = Valuation{
			Name:  fields[fieldName].String(),
			RAP:   rap,
			Value: val,
		}
		return true
	})

	return snap, nil
}
