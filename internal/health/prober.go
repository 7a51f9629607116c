// Package health probes the application's health endpoint after a deploy.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Response is the health endpoint's JSON body.
type Response struct {
	Status      string `json:"status"`
	Environment string `json:"environment,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Healthy reports whether the application declared itself healthy.
func (r *Response) Healthy() bool {
	return r != nil && r.Status == "healthy"
}

// Prober retries the health endpoint with exponential backoff until it
// reports healthy or attempts are exhausted. The app usually needs a few
// seconds after a deploy before its first healthy answer.
type Prober struct {
	url      string
	attempts int
	client   *http.Client
	log      *zap.Logger
}

// NewProber returns a Prober for url with the given attempt budget (minimum 1).
func NewProber(url string, attempts int, log *zap.Logger) *Prober {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{
		url:      url,
		attempts: attempts,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Probe polls the endpoint until it answers healthy. Returns the last parsed
// response (possibly nil when the endpoint was never reached) and an error
// when no healthy answer arrived within the attempt budget.
func (p *Prober) Probe(ctx context.Context) (*Response, error) {
	if p.url == "" {
		return nil, errors.New("HEALTH_URL is not set")
	}

	var last *Response
	attempt := 0
	op := func() error {
		attempt++
		resp, err := p.once(ctx)
		if resp != nil {
			last = resp
		}
		if err != nil {
			p.log.Debug("health probe failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.attempts-1)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return last, fmt.Errorf("health endpoint not healthy after %d attempts: %w", attempt, err)
	}
	return last, nil
}

// once performs a single GET. Non-200 answers parse the body anyway so the
// application's own error message reaches the operator.
func (p *Prober) once(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("status %d: unparseable health body", httpResp.StatusCode)
	}
	if !r.Healthy() {
		msg := r.Error
		if msg == "" {
			msg = r.Status
		}
		return &r, fmt.Errorf("status %d: %s", httpResp.StatusCode, msg)
	}
	return &r, nil
}
