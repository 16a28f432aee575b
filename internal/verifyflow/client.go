package verifyflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Verification is the verify endpoint's answer.
type Verification struct {
	Success bool    `json:"success"`
	Valid   bool    `json:"valid"`
	QRCode  *QRCode `json:"qrCode,omitempty"`
	Message string  `json:"message,omitempty"`
}

type QRCode struct {
	CodeID       string `json:"codeId"`
	WebsiteURL   string `json:"websiteURL"`
	WebsiteTitle string `json:"websiteTitle"`
	ScanCount    int64  `json:"scanCount"`
}

// Client talks to the verify and scan-log endpoints.
type Client interface {
	Verify(ctx context.Context, codeID string) (*Verification, error)
	LogScan(ctx context.Context, codeID string) error
}

type HTTPClient struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

// NewHTTPClient returns a client for the server at baseURL. A nil hc uses a client
// with a 10s timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      hc,
		userAgent: "qrtrack-open/1.0",
	}
}

// Verify never returns an error for a non-success HTTP status: any answer the server
// gives that is not a valid code decodes to Valid=false.
func (c *HTTPClient) Verify(ctx context.Context, codeID string) (*Verification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/verify/"+url.PathEscape(codeID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", codeID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read verify response: %w", err)
	}

	var v Verification
	if err := json.Unmarshal(body, &v); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &Verification{}, nil
		}
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || v.QRCode == nil {
		v.Valid = false
	}
	return &v, nil
}

func (c *HTTPClient) LogScan(ctx context.Context, codeID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify/"+url.PathEscape(codeID)+"/scan", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("log scan %s: %w", codeID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("log scan %s: unexpected status %d", codeID, resp.StatusCode)
	}
	return nil
}
