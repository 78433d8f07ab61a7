package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/sirupsen/logrus"
)

// VirusTotalClient VirusTotal v3 文件报告查询
type VirusTotalClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

// NewVirusTotalClient 创建客户端。baseURL 以 /files/ 结尾，摘要直接拼接。
func NewVirusTotalClient(baseURL, apiKey string, logger *logrus.Logger) *VirusTotalClient {
	return &VirusTotalClient{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		apiKey:  apiKey,
		client:  &http.Client{},
		logger:  logger,
	}
}

func (c *VirusTotalClient) Name() string {
	return "virustotal"
}

// vtResponse v3 报告响应中需要的部分
type vtResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
				Timeout    int `json:"timeout"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *VirusTotalClient) Lookup(ctx context.Context, digest domain.ContentDigest) (*domain.ServiceReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+string(digest), nil)
	if err != nil {
		return nil, permanentError("invalid request")
	}
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transientError("transport error", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to body parse
	case http.StatusNotFound:
		return &domain.ServiceReport{Service: c.Name(), Status: domain.IntelNotFound}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, permanentError("authentication rejected")
	case http.StatusTooManyRequests:
		return nil, permanentError("rate limited")
	default:
		if resp.StatusCode >= 500 {
			return nil, transientError(fmt.Sprintf("upstream error (HTTP %d)", resp.StatusCode), nil)
		}
		return nil, permanentError(fmt.Sprintf("unexpected response (HTTP %d)", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transientError("transport error", err)
	}
	var parsed vtResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, permanentError("malformed response body")
	}

	stats := parsed.Data.Attributes.LastAnalysisStats
	detections := stats.Malicious + stats.Suspicious
	total := stats.Malicious + stats.Suspicious + stats.Harmless + stats.Undetected + stats.Timeout
	if total < 1 {
		total = 1
	}

	c.logger.WithFields(logrus.Fields{
		"sha256":     digest,
		"detections": detections,
		"total":      total,
	}).Debug("VirusTotal report fetched")

	return &domain.ServiceReport{
		Service:    c.Name(),
		Status:     domain.IntelFound,
		Detections: detections,
		Total:      total,
	}, nil
}
