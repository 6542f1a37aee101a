package hsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/railscore/internal/metrics"
)

// retryStatuses is the fixed set of provider statuses worth retrying:
// rate limiting plus the gateway/origin timeout family.
var retryStatuses = map[int]bool{
	429: true,
	502: true,
	503: true,
	504: true,
	520: true,
	522: true,
	524: true,
}

// bodySnippetLen bounds how much response body is kept for diagnostics.
const bodySnippetLen = 300

// Client executes HSP requests with bounded retry, exponential backoff and
// jitter. Requests are issued strictly one at a time; the serialized access
// pattern is what makes backoff against the provider meaningful.
type Client struct {
	cfg     Config
	metrics *http.Client // long read timeout for bulk queries
	details *http.Client // short read timeout for per-RID lookups
}

func NewClient(cfg Config) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		IdleConnTimeout:     cfg.IdleTimeout,
	}
	// The client deadline spans request write plus response read, so each
	// request class gets write timeout + its read timeout.
	return &Client{
		cfg:     cfg,
		metrics: &http.Client{Transport: transport, Timeout: cfg.WriteTimeout + cfg.MetricsReadTimeout},
		details: &http.Client{Transport: transport, Timeout: cfg.WriteTimeout + cfg.DetailsReadTimeout},
	}
}

// BackoffDelay is the pure schedule: base * 2^(attempt-1) for the 1-based
// attempt number. Jitter is layered on separately so this stays testable.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}

// retrySchedule implements backoff.BackOff with the provider's schedule plus
// up to 500ms of uniform jitter to avoid thundering-herd recontact.
type retrySchedule struct {
	base    time.Duration
	attempt int
}

func (r *retrySchedule) NextBackOff() time.Duration {
	r.attempt++
	return BackoffDelay(r.base, r.attempt) + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
}

func (r *retrySchedule) Reset() {
	r.attempt = 0
}

// post sends one JSON request, retrying retryable statuses and transport
// errors up to cfg.Retries attempts. Any other non-2xx status aborts
// immediately with a truncated body snippet; exhausting all attempts surfaces
// the last error.
func (c *Client) post(client *http.Client, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}

	var out []byte
	operation := func() error {
		req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

		t0 := time.Now()
		resp, err := client.Do(req)
		elapsed := time.Since(t0)
		if err != nil {
			// Connect/read timeouts and transport failures are transient.
			metrics.HSPAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
			log.Printf("hsp: POST %s failed after %.2fs: %v", endpoint, elapsed.Seconds(), err)
			return fmt.Errorf("post %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		metrics.HSPAPICallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		metrics.HSPAPILatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())

		if retryStatuses[resp.StatusCode] {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLen))
			log.Printf("hsp: retryable HTTP %d POST %s after %.2fs body=%q",
				resp.StatusCode, endpoint, elapsed.Seconds(), snippet)
			return fmt.Errorf("retryable status %d from %s", resp.StatusCode, endpoint)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLen))
			return backoff.Permanent(fmt.Errorf("post %s: status %d: %s", endpoint, resp.StatusCode, snippet))
		}

		out, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s body: %w", endpoint, err)
		}
		return nil
	}

	attempts := c.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	sched := &retrySchedule{base: c.cfg.BackoffBase}
	notify := func(err error, sleep time.Duration) {
		metrics.HSPAPIRetriesTotal.WithLabelValues(endpoint).Inc()
		log.Printf("hsp: sleeping %.2fs before retrying %s: %v", sleep.Seconds(), endpoint, err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithMaxRetries(sched, uint64(attempts-1)), notify); err != nil {
		return nil, err
	}
	return out, nil
}
