// Package verifier replays contracts against a running producer and checks
// that its responses honour them.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"contractkit/internal/contract"
)

// maxResponseBody bounds how much of a producer response is read.
const maxResponseBody = 10 * 1024 * 1024

// Result is the outcome of verifying one contract.
type Result struct {
	Contract    string        `json:"contract"`
	Fingerprint string        `json:"fingerprint"`
	Passed      bool          `json:"passed"`
	Status      int           `json:"status,omitempty"`
	Failures    []string      `json:"failures,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Report aggregates the results of one verification run.
type Report struct {
	RunID     string        `json:"run_id"`
	BaseURL   string        `json:"base_url"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Results   []Result      `json:"results"`
}

// OK reports whether every contract passed.
func (r Report) OK() bool {
	return r.Failed == 0
}

// Observer is notified of each result as it is produced.
type Observer func(Result)

// Verifier sends contract requests to a producer.
type Verifier struct {
	client   *http.Client
	baseURL  string
	observer Observer

	mu   sync.Mutex
	rand *rand.Rand
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithSeed makes matcher-generated request values reproducible.
func WithSeed(seed uint64) Option {
	return func(v *Verifier) {
		v.rand = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithObserver registers a callback invoked after each contract.
func WithObserver(o Observer) Option {
	return func(v *Verifier) {
		v.observer = o
	}
}

// New creates a verifier targeting baseURL (scheme, host and optional path prefix).
func New(client *http.Client, baseURL string, opts ...Option) *Verifier {
	if client == nil {
		client = http.DefaultClient
	}
	seed := uint64(time.Now().UnixNano())
	v := &Verifier{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		rand:    rand.New(rand.NewPCG(seed, seed)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyAll verifies contracts in order and aggregates the results.
func (v *Verifier) VerifyAll(ctx context.Context, contracts []*contract.Contract) Report {
	report := Report{
		RunID:     uuid.NewString(),
		BaseURL:   v.baseURL,
		StartedAt: time.Now().UTC(),
		Results:   make([]Result, 0, len(contracts)),
	}

	for _, c := range contracts {
		res := v.Verify(ctx, c)
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}
	report.Duration = time.Since(report.StartedAt)

	slog.Info("verification finished",
		"run_id", report.RunID,
		"base_url", report.BaseURL,
		"passed", report.Passed,
		"failed", report.Failed,
	)
	return report
}

// Verify sends the contract's request and checks the response. Transport
// failures are reported as failed results.
func (v *Verifier) Verify(ctx context.Context, c *contract.Contract) Result {
	start := time.Now()
	res := Result{Contract: c.Name, Fingerprint: c.Fingerprint()}

	failures, status := v.verify(ctx, c)
	res.Status = status
	res.Failures = failures
	res.Passed = len(failures) == 0
	res.Duration = time.Since(start)

	if res.Passed {
		slog.Debug("contract verified", "contract", c.Name, "status", status)
	} else {
		slog.Warn("contract failed", "contract", c.Name, "status", status, "failures", failures)
	}
	if v.observer != nil {
		v.observer(res)
	}
	return res
}

func (v *Verifier) verify(ctx context.Context, c *contract.Contract) ([]string, int) {
	req, err := v.buildRequest(ctx, c)
	if err != nil {
		return []string{err.Error()}, 0
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return []string{fmt.Sprintf("request failed: %v", err)}, 0
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return []string{fmt.Sprintf("failed to read response body: %v", err)}, resp.StatusCode
	}

	return checkResponse(c.Response, resp, body), resp.StatusCode
}

func (v *Verifier) buildRequest(ctx context.Context, c *contract.Contract) (*http.Request, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	path, err := c.Request.URL.Sample(v.rand)
	if err != nil {
		return nil, fmt.Errorf("cannot build request url: %w", err)
	}

	var body io.Reader
	if c.Request.Body != nil {
		payload := make(map[string]any, len(c.Request.Body))
		for field, value := range c.Request.Body {
			sample, err := value.Sample(v.rand)
			if err != nil {
				return nil, fmt.Errorf("cannot build request field %s: %w", field, err)
			}
			payload[field] = sample
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, v.baseURL+fmt.Sprint(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, value := range c.Request.Headers {
		req.Header.Set(name, value)
	}
	return req, nil
}

// checkResponse compares a producer response with the response side of a
// contract. Unset body and headers are not checked.
func checkResponse(want contract.Response, resp *http.Response, body []byte) []string {
	var failures []string

	if resp.StatusCode != want.Status {
		failures = append(failures, fmt.Sprintf("status: expected %d, got %d", want.Status, resp.StatusCode))
	}

	for _, name := range sortedKeys(want.Headers) {
		expected := want.Headers[name]
		actual := resp.Header.Get(name)
		switch {
		case actual == "":
			failures = append(failures, fmt.Sprintf("header %s: missing", name))
		case strings.EqualFold(name, "Content-Type") && contract.SameMediaType(expected, actual):
		case actual != expected:
			failures = append(failures, fmt.Sprintf("header %s: expected %q, got %q", name, expected, actual))
		}
	}

	if want.Body != nil {
		if !gjson.ValidBytes(body) {
			return append(failures, "body: not valid JSON")
		}
		doc := gjson.ParseBytes(body)
		for _, field := range sortedKeys(want.Body) {
			value := want.Body[field]
			got := doc.Get(contract.BodyPath(field))
			if !value.MatchesJSON(got) {
				if !got.Exists() {
					failures = append(failures, fmt.Sprintf("body $.%s: missing", field))
					continue
				}
				failures = append(failures, fmt.Sprintf("body $.%s: expected %s, got %s", field, value, got.Raw))
			}
		}
	}
	return failures
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
