// Package gateway implements remote.Client over a JSON HTTP history gateway.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/remote"
)

const defaultRetryAfter = 5 * time.Second

// Client talks to a history gateway at BaseURL.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

// New creates a gateway client. httpClient may be nil.
func New(baseURL, token string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		log:        log,
	}
}

type historyResponse struct {
	Messages []model.Message `json:"messages"`
}

// History implements remote.HistoryClient.
func (c *Client) History(ctx context.Context, req remote.HistoryRequest) ([]model.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(req.Limit))
	if req.AfterID > 0 {
		q.Set("after_id", strconv.FormatInt(req.AfterID, 10))
	}
	if req.BeforeID > 0 {
		q.Set("before_id", strconv.FormatInt(req.BeforeID, 10))
	}
	order := "desc"
	if req.Ascending {
		order = "asc"
	}
	q.Set("order", order)

	endpoint := fmt.Sprintf("%s/v1/chats/%s/history?%s", c.baseURL, url.PathEscape(req.Chat), q.Encode())
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &remote.TransientError{Err: fmt.Errorf("decode history: %w", err)}
	}
	c.log.Debug("history page",
		zap.String("chat", req.Chat),
		zap.Int64("after_id", req.AfterID),
		zap.Int64("before_id", req.BeforeID),
		zap.Int("count", len(body.Messages)),
	)
	return body.Messages, nil
}

// OpenAttachment implements remote.AttachmentSource.
func (c *Client) OpenAttachment(ctx context.Context, att model.Attachment) (io.ReadCloser, error) {
	if att.Ref == "" {
		return nil, remote.Permanent(fmt.Errorf("attachment %s has no ref", att.ID))
	}
	endpoint := fmt.Sprintf("%s/v1/attachments/%s", c.baseURL, url.PathEscape(att.Ref))
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// get performs a GET and maps non-2xx responses onto the remote error
// taxonomy. On success the caller owns resp.Body.
func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, remote.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &remote.TransientError{Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	statusErr := fmt.Errorf("GET %s: %s: %s", req.URL.Path, resp.Status, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &remote.RateLimitError{Wait: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode >= 500:
		return nil, &remote.TransientError{Err: statusErr}
	default:
		return nil, remote.Permanent(statusErr)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

var _ remote.Client = (*Client)(nil)
