package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"payment-session-reconciler/internal/core/domain"
	"payment-session-reconciler/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	txsPath        = "/cosmos/tx/v1beta1/txs"
	breakerName    = "ledger"
	defaultLimit   = 50
	orderAscending = "ORDER_BY_ASC"
)

// Config configures the LCD client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	PageLimit int
	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client implements ports.LedgerClient against a Cosmos SDK LCD endpoint.
// It makes one HTTP attempt per call; retries happen on the caller's next
// poll tick.
type Client struct {
	http      *resty.Client
	breaker   *gobreaker.CircuitBreaker
	pageLimit int
	log       zerolog.Logger
}

// NewClient creates a ledger client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	limit := cfg.PageLimit
	if limit <= 0 {
		limit = defaultLimit
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0). // No automatic retries, the poll loop retries
			SetHeader("Accept", "application/json"),
		pageLimit: limit,
		log:       log,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A worker giving up on its own fetch says nothing about the ledger.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			c.log.Warn().
				Str("circuit", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return c
}

// FetchTransfers returns one page of transactions whose transfer events name
// address as recipient, oldest first. The cursor is a page number; it only
// advances past a full page, so a partially filled page is read again on the
// next call and new arrivals on it are not skipped. An empty or malformed
// cursor starts at the newest page of the address's history, never at its
// oldest. Every failure is wrapped in domain.ErrTransient.
func (c *Client) FetchTransfers(ctx context.Context, address, cursor string) ([]domain.LedgerTransaction, string, error) {
	page := 0 // tail
	if cursor != "" {
		if p, err := strconv.Atoi(cursor); err == nil && p > 0 {
			page = p
		} else {
			c.log.Warn().Str("cursor", cursor).Msg("ignoring malformed ledger cursor")
		}
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		if page == 0 {
			return c.fetchTail(ctx, address)
		}
		return c.fetchPage(ctx, address, page)
	})
	metrics.LedgerFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.LedgerFetches.WithLabelValues("breaker_open").Inc()
			return nil, cursor, fmt.Errorf("%w: circuit %s: %v", domain.ErrTransient, breakerName, err)
		}
		metrics.LedgerFetches.WithLabelValues("transient").Inc()
		return nil, cursor, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	metrics.LedgerFetches.WithLabelValues("ok").Inc()

	res := result.(pageResult)
	next := res.page
	if len(res.txs) >= c.pageLimit {
		next++
	}
	return res.txs, strconv.Itoa(next), nil
}

type pageResult struct {
	txs  []domain.LedgerTransaction
	page int
	last int // newest page according to the reported total
}

// fetchTail reads the newest page. The first request only learns the total
// when the history spans more than one page.
func (c *Client) fetchTail(ctx context.Context, address string) (pageResult, error) {
	first, err := c.fetchPage(ctx, address, 1)
	if err != nil || first.last <= 1 {
		return first, err
	}
	c.log.Debug().Str("address", address).Int("page", first.last).Msg("starting ledger scan at newest page")
	return c.fetchPage(ctx, address, first.last)
}

func (c *Client) fetchPage(ctx context.Context, address string, page int) (pageResult, error) {
	var body txsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":    fmt.Sprintf("transfer.recipient='%s'", address),
			"page":     strconv.Itoa(page),
			"limit":    strconv.Itoa(c.pageLimit),
			"order_by": orderAscending,
		}).
		SetResult(&body).
		Get(txsPath)
	if err != nil {
		return pageResult{}, fmt.Errorf("query ledger: %w", err)
	}
	if !resp.IsSuccess() {
		return pageResult{}, fmt.Errorf("query ledger: unexpected status %d", resp.StatusCode())
	}
	txs, err := body.toDomain()
	if err != nil {
		return pageResult{}, err
	}
	return pageResult{txs: txs, page: page, last: body.lastPage(c.pageLimit)}, nil
}

// State returns the current circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
