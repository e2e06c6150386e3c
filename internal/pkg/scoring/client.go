package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

// ErrNotConfigured is returned when no scoring service URL is set
var ErrNotConfigured = errors.New("scoring service not configured")

// ErrInvalidResponse is returned for a 2xx reply the engine cannot act on
var ErrInvalidResponse = errors.New("scoring service returned an invalid response")

// Client calls the external risk-scoring service.
type Client struct {
	baseURL string
	ua      string
	http    *http.Client
}

// Profile is the borrower profile slice sent for scoring
type Profile struct {
	KYCLevel   string `json:"kycLevel"`
	City       string `json:"city"`
	Occupation string `json:"occupation"`
}

// Request is the scoring payload. Field names follow the scoring service's contract.
type Request struct {
	LoanID     string  `json:"loanId"`
	UserID     string  `json:"userId"`
	Amount     float64 `json:"amount"`
	TermWeeks  int     `json:"termWeeks"`
	Purpose    string  `json:"purpose"`
	Level      int     `json:"level"`
	Streak     int     `json:"streak"`
	TotalLoans int     `json:"totalLoans"`
	OnTimePaid int     `json:"onTimePaid"`
	LatePaid   int     `json:"latePaid"`
	Profile    Profile `json:"profile"`
}

// CounterOffer is an alternative the scorer proposes instead of the requested terms
type CounterOffer struct {
	Amount    decimal.Decimal `json:"amount"`
	TermWeeks int             `json:"termWeeks"`
	Reason    string          `json:"reason"`
}

// Response is the scorer's verdict
type Response struct {
	PD                 float64       `json:"pd"`
	Decision           string        `json:"decision"`
	Reasons            []string      `json:"reasons"`
	CounterOffer       *CounterOffer `json:"counter_offer"`
	CounterfactualHint *string       `json:"counterfactual_hint"`
	ModelVersion       string        `json:"model_version"`
}

// NewClient creates a new scoring client. An empty baseURL yields a client whose
// every call fails with ErrNotConfigured.
func NewClient(baseURL string, timeout time.Duration, ua string) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		ua:      ua,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Score posts the application to {baseURL}/score. The call is bounded by the client
// timeout and is never retried.
func (c *Client) Score(ctx context.Context, in Request) (*Response, error) {
	if c == nil || c.http == nil || strings.TrimSpace(c.baseURL) == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("scoring request error: %w", err)
	}

	endpoint := c.baseURL + "/score"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("scoring request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := out.validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Response) validate() error {
	if r.PD < 0 || r.PD > 1 {
		return fmt.Errorf("%w: pd %v out of range", ErrInvalidResponse, r.PD)
	}
	switch r.Decision {
	case "approve", "decline", "counter":
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidResponse, r.Decision)
	}
	return nil
}

// HTTPError is a non-200 reply from the scoring service
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("scoring http error: status=%d body=%s", e.StatusCode, e.Body)
}

func classifyRequestError(ctx context.Context, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("scoring timeout: %w", err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("scoring network error: %w", err)
	}
	return fmt.Errorf("scoring request error: %w", err)
}

// IsTimeout reports whether err came from the scoring call running out of time
func IsTimeout(err error) bool {
	return isTimeoutError(context.Background(), err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	return false
}
