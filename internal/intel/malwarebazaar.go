package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/sirupsen/logrus"
)

// MalwareBazaarClient abuse.ch MalwareBazaar 样本库查询
type MalwareBazaarClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *logrus.Logger
}

// NewMalwareBazaarClient 创建客户端
func NewMalwareBazaarClient(endpoint, apiKey string, logger *logrus.Logger) *MalwareBazaarClient {
	return &MalwareBazaarClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
		logger:   logger,
	}
}

func (c *MalwareBazaarClient) Name() string {
	return "malwarebazaar"
}

// mbResponse get_info 响应中需要的部分
type mbResponse struct {
	QueryStatus string            `json:"query_status"`
	Data        []json.RawMessage `json:"data"`
}

func (c *MalwareBazaarClient) Lookup(ctx context.Context, digest domain.ContentDigest) (*domain.ServiceReport, error) {
	form := url.Values{}
	form.Set("query", "get_info")
	form.Set("hash", string(digest))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, permanentError("invalid request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.apiKey != "" {
		req.Header.Set("Auth-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transientError("transport error", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, permanentError("authentication rejected")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, permanentError("rate limited")
	case resp.StatusCode >= 500:
		return nil, transientError(fmt.Sprintf("upstream error (HTTP %d)", resp.StatusCode), nil)
	default:
		return nil, permanentError(fmt.Sprintf("unexpected response (HTTP %d)", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transientError("transport error", err)
	}
	var parsed mbResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, permanentError("malformed response body")
	}

	// 样本库是确证集合：收录即视为确认检出
	switch parsed.QueryStatus {
	case "ok":
		detections := len(parsed.Data)
		if detections == 0 {
			return &domain.ServiceReport{Service: c.Name(), Status: domain.IntelNotFound}, nil
		}
		c.logger.WithFields(logrus.Fields{
			"sha256":     digest,
			"detections": detections,
		}).Debug("MalwareBazaar sample found")
		return &domain.ServiceReport{
			Service:    c.Name(),
			Status:     domain.IntelFound,
			Detections: detections,
			Total:      detections,
		}, nil
	case "hash_not_found", "no_results":
		return &domain.ServiceReport{Service: c.Name(), Status: domain.IntelNotFound}, nil
	default:
		return nil, permanentError(fmt.Sprintf("query rejected (%s)", parsed.QueryStatus))
	}
}
