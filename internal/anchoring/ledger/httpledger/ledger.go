// Package httpledger anchors proof digests through a ledger gateway that
// exposes POST /transactions and GET /transactions/{ref}.
package httpledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vitalproof/internal/anchoring"
)

const ledgerID = "http"

type Ledger struct {
	baseURL string
	network string
	http    *http.Client
	limiter *rate.Limiter
}

type Option func(*Ledger)

// WithHTTPClient overrides the transport, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(l *Ledger) {
		if hc != nil {
			l.http = hc
		}
	}
}

// New returns a gateway client limited to perSecond requests with a burst of one.
func New(baseURL, network string, perSecond float64, opts ...Option) *Ledger {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	l := &Ledger{
		baseURL: strings.TrimRight(baseURL, "/"),
		network: network,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) ID() string { return ledgerID }

type submitRequest struct {
	Network string `json:"network"`
	ProofID string `json:"proof_id"`
	Digest  string `json:"digest"`
}

type transaction struct {
	Ref         string     `json:"ref"`
	Status      string     `json:"status"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

func (t transaction) confirmed() bool {
	return t.Status == "confirmed"
}

func (t transaction) confirmedAt() time.Time {
	if t.ConfirmedAt != nil {
		return *t.ConfirmedAt
	}
	return time.Now()
}

func (l *Ledger) Submit(ctx context.Context, entry anchoring.Entry) (anchoring.Submission, error) {
	body, err := json.Marshal(submitRequest{Network: l.network, ProofID: entry.ProofID, Digest: entry.Digest})
	if err != nil {
		return anchoring.Submission{}, fmt.Errorf("encode ledger request: %w", err)
	}
	var tx transaction
	if err := l.do(ctx, http.MethodPost, l.baseURL+"/transactions", body, &tx); err != nil {
		return anchoring.Submission{}, err
	}
	if tx.Ref == "" {
		return anchoring.Submission{}, fmt.Errorf("ledger response has no ref: %w", anchoring.ErrRejected)
	}
	sub := anchoring.Submission{Ref: tx.Ref, Confirmed: tx.confirmed()}
	if sub.Confirmed {
		sub.ConfirmedAt = tx.confirmedAt()
	}
	return sub, nil
}

func (l *Ledger) Confirmation(ctx context.Context, ref string) (anchoring.Confirmation, error) {
	var tx transaction
	if err := l.do(ctx, http.MethodGet, l.baseURL+"/transactions/"+url.PathEscape(ref), nil, &tx); err != nil {
		return anchoring.Confirmation{}, err
	}
	if !tx.confirmed() {
		return anchoring.Confirmation{}, nil
	}
	return anchoring.Confirmation{Confirmed: true, At: tx.confirmedAt()}, nil
}

// do waits for the limiter, then maps 4xx other than 429 to ErrRejected.
func (l *Ledger) do(ctx context.Context, method, target string, body []byte, out any) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ledger rate limit: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("ledger unavailable: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("ledger status %d: %w", resp.StatusCode, anchoring.ErrRejected)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}
