package thumbnails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"horizon/config"
	"horizon/internal/ctxutil"
	"image"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// maxBatch is the largest id list the thumbnails API accepts per call.
	maxBatch = 100

	downloadConcurrency = 4
)

type thumbnailEntry struct {
	TargetID int64  `json:"targetId"`
	State    string `json:"state"`
	ImageURL string `json:"imageUrl"`
}

type thumbnailResponse struct {
	Data []thumbnailEntry `json:"data"`
}

// Client resolves asset ids to decoded thumbnail images.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxRetries := cfg.Roblox.MaxAttempts
	if maxRetries < 1 {
		maxRetries = 3
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.Roblox.ThumbnailsURL, "/"),
		maxRetries: maxRetries,
		retryDelay: cfg.Roblox.RetryDelay,
	}
}

// FetchThumbnails returns one image per asset id that has a ready
// thumbnail. Assets still pending or blocked are left out of the map.
func (c *Client) FetchThumbnails(ctx context.Context, assetIDs []int64, size string) (map[int64]image.Image, error) {
	urls := make(map[int64]string, len(assetIDs))
	for start := 0; start < len(assetIDs); start += maxBatch {
		end := min(start+maxBatch, len(assetIDs))
		batch, err := c.resolveURLs(ctx, assetIDs[start:end], size)
		if err != nil {
			return nil, err
		}
		for id, u := range batch {
			urls[id] = u
		}
	}

	var (
		mu     sync.Mutex
		images = make(map[int64]image.Image, len(urls))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for id, u := range urls {
		g.Go(func() error {
			img, err := c.download(gctx, u)
			if err != nil {
				return fmt.Errorf("thumbnail for asset %d: %w", id, err)
			}
			mu.Lock()
			images[id] = img
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return images, nil
}

func (c *Client) resolveURLs(ctx context.Context, assetIDs []int64, size string) (map[int64]string, error) {
	ids := make([]string, len(assetIDs))
	for i, id := range assetIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	q := url.Values{}
	q.Set("assetIds", strings.Join(ids, ","))
	q.Set("size", size)
	q.Set("format", "Png")
	q.Set("isCircular", "false")
	endpoint := c.baseURL + "/v1/assets?" + q.Encode()

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp thumbnailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	urls := make(map[int64]string, len(resp.Data))
	for _, entry := range resp.Data {
		if entry.ImageURL == "" || (entry.State != "" && entry.State != "Completed") {
			c.logger.Warn("thumbnail not available",
				zap.Int64("assetId", entry.TargetID),
				zap.String("state", entry.State),
			)
			continue
		}
		urls[entry.TargetID] = entry.ImageURL
	}
	return urls, nil
}

func (c *Client) download(ctx context.Context, imageURL string) (image.Image, error) {
	body, err := c.get(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// get retries rate limits and server errors up to maxRetries times.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := ctxutil.Sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
			continue
		}
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, lastErr
}
