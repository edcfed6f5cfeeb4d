package reconciler

import (
	"errors"
	"fmt"
	"strings"

	"payment-session-reconciler/internal/core/domain"

	"github.com/shopspring/decimal"
)

// MatchMode selects how a transfer amount is compared with a session's
// expected amount.
type MatchMode string

const (
	// MatchPrefix accepts any transfer amount that starts with the expected
	// amount, so "25000000uxion" satisfies an expected "25000000".
	MatchPrefix MatchMode = "prefix"
	// MatchStrict splits each coin into number and denomination and requires
	// decimal equality plus the configured denomination.
	MatchStrict MatchMode = "strict"
)

var errEmptyExpectedAmount = errors.New("session has no expected amount")

// Matcher decides whether a ledger transaction pays a session. It holds no
// state beyond its configuration and is safe for concurrent use.
type Matcher struct {
	mode  MatchMode
	denom string
}

// NewMatcher returns a Matcher for mode. denom is only used by MatchStrict.
func NewMatcher(mode MatchMode, denom string) (*Matcher, error) {
	switch mode {
	case MatchPrefix:
	case MatchStrict:
		if denom == "" {
			return nil, fmt.Errorf("strict match mode requires a denomination")
		}
	default:
		return nil, fmt.Errorf("unknown match mode %q", mode)
	}
	return &Matcher{mode: mode, denom: denom}, nil
}

// Mode returns the configured match mode.
func (m *Matcher) Mode() MatchMode {
	return m.mode
}

// Match reports whether tx contains a transfer to the session's recipient
// for the expected amount. Rejected transactions never match. An error means
// the session itself cannot be evaluated.
func (m *Matcher) Match(tx domain.LedgerTransaction, session *domain.PaymentSession) (bool, error) {
	expected := strings.TrimSpace(session.ExpectedAmount)
	if expected == "" {
		return false, errEmptyExpectedAmount
	}

	var want decimal.Decimal
	if m.mode == MatchStrict {
		var err error
		want, err = decimal.NewFromString(expected)
		if err != nil {
			return false, fmt.Errorf("parse expected amount %q: %w", expected, err)
		}
	}

	if !tx.Success {
		return false, nil
	}

	for _, t := range tx.Transfers() {
		if t.Recipient != session.RecipientAddress {
			continue
		}
		if m.mode == MatchPrefix {
			if strings.HasPrefix(t.Amount, expected) {
				return true, nil
			}
			continue
		}
		if m.coinsContain(t.Amount, want) {
			return true, nil
		}
	}
	return false, nil
}

// coinsContain checks a coin list such as "100uatom,25000000uxion".
func (m *Matcher) coinsContain(amount string, want decimal.Decimal) bool {
	for _, coin := range strings.Split(amount, ",") {
		value, denom := splitCoin(strings.TrimSpace(coin))
		if denom != m.denom {
			continue
		}
		got, err := decimal.NewFromString(value)
		if err != nil {
			continue
		}
		if got.Equal(want) {
			return true
		}
	}
	return false
}

// splitCoin separates the leading numeric part of a coin from its
// denomination.
func splitCoin(coin string) (value, denom string) {
	i := 0
	for i < len(coin) && (coin[i] >= '0' && coin[i] <= '9' || coin[i] == '.') {
		i++
	}
	return coin[:i], coin[i:]
}
