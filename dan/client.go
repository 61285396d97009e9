package dan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/elnormous/contenttype"
)

// DefaultBaseURL is the staging wallet provider network.
const DefaultBaseURL = "https://dan.staging.biconomy.io"

// Default quorum of a distributed key.
const (
	DefaultPartiesNumber = 5
	DefaultThreshold     = 3
)

const maxResponseBytes = 1 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

// Client talks to the distributed account network.
type Client struct {
	baseURL  string
	http     *http.Client
	log      *slog.Logger
	now      func() time.Time
	parties  int
	thresh   int
	receipts *ReceiptVerifier
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithQuorum sets the default party count and threshold for new keys.
func WithQuorum(partiesNumber, threshold int) Option {
	return func(cl *Client) {
		cl.parties, cl.thresh = partiesNumber, threshold
	}
}

// WithReceiptVerifier makes GenerateSessionKey require and verify a receipt.
func WithReceiptVerifier(v *ReceiptVerifier) Option {
	return func(cl *Client) { cl.receipts = v }
}

// WithClock replaces time.Now for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
	}
}

// New returns a client for the network at baseURL. An empty baseURL selects
// DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		now:     time.Now,
		parties: DefaultPartiesNumber,
		thresh:  DefaultThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logctx.Wrap(c.log)
	return c
}

// BaseURL is the network the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// post sends body as JSON to path and decodes a success response into out.
func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("dan: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("dan: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dan: POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("dan: read %s response: %w", path, err)
	}
	c.log.DebugContext(ctx, "dan.http.response",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if !isJSON(resp.Header) {
		return &MalformedResponseError{Field: "Content-Type", Reason: fmt.Sprintf("unexpected media type %q", resp.Header.Get("Content-Type"))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &MalformedResponseError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func isJSON(h http.Header) bool {
	mt, err := contenttype.GetMediaType(&http.Request{Header: h})
	return err == nil && mt.Matches(jsonMediaType)
}

func decodeError(status int, raw []byte) error {
	var body ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		body = ErrorBody{Code: http.StatusText(status), Message: strings.TrimSpace(string(raw))}
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthenticationError{Reason: ReasonRejected, Status: status, Message: body.Message}
	case body.Code == CodeThresholdNotMet:
		return fmt.Errorf("%w: %s", ErrThresholdNotMet, body.Message)
	}
	return &RemoteError{Status: status, Code: body.Code, Message: body.Message}
}
