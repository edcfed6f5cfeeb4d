package reconciler

import (
	"testing"

	"payment-session-reconciler/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatcher(t *testing.T) {
	_, err := NewMatcher(MatchPrefix, "")
	assert.NoError(t, err)

	_, err = NewMatcher(MatchStrict, "")
	assert.Error(t, err)

	m, err := NewMatcher(MatchStrict, "uxion")
	require.NoError(t, err)
	assert.Equal(t, MatchStrict, m.Mode())

	_, err = NewMatcher("fuzzy", "uxion")
	assert.Error(t, err)
}

func TestMatcher_Prefix(t *testing.T) {
	m, err := NewMatcher(MatchPrefix, "")
	require.NoError(t, err)
	session := &domain.PaymentSession{RecipientAddress: "xion1abc", ExpectedAmount: "25000000"}

	tests := []struct {
		name  string
		tx    domain.LedgerTransaction
		match bool
	}{
		{"exact amount with denom suffix", transferTx("h1", "xion1abc", "25000000uxion"), true},
		{"bare amount", transferTx("h2", "xion1abc", "25000000"), true},
		{"smaller amount", transferTx("h3", "xion1abc", "10000000uxion"), false},
		{"other recipient", transferTx("h4", "xion1zzz", "25000000uxion"), false},
		{"rejected transaction", func() domain.LedgerTransaction {
			tx := transferTx("h5", "xion1abc", "25000000uxion")
			tx.Success = false
			return tx
		}(), false},
		{"non-transfer event", domain.LedgerTransaction{
			Hash:    "h6",
			Success: true,
			Events: []domain.LedgerEvent{{
				Type: "coin_received",
				Attributes: []domain.EventAttribute{
					{Key: "receiver", Value: "xion1abc"},
					{Key: domain.AttributeAmount, Value: "25000000uxion"},
				},
			}},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(tt.tx, session)
			require.NoError(t, err)
			assert.Equal(t, tt.match, got)

			// Matching has no side effects.
			again, err := m.Match(tt.tx, session)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestMatcher_MultipleQualifyingEvents(t *testing.T) {
	m, _ := NewMatcher(MatchPrefix, "")
	session := &domain.PaymentSession{RecipientAddress: "xion1abc", ExpectedAmount: "25000000"}

	tx := transferTx("h1", "xion1other", "5uxion")
	tx.Events = append(tx.Events, transferTx("", "xion1abc", "25000000uxion").Events...)
	tx.Events = append(tx.Events, transferTx("", "xion1abc", "25000000uxion").Events...)

	got, err := m.Match(tx, session)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestMatcher_Strict(t *testing.T) {
	m, err := NewMatcher(MatchStrict, "uxion")
	require.NoError(t, err)
	session := &domain.PaymentSession{RecipientAddress: "xion1abc", ExpectedAmount: "25000000"}

	tests := []struct {
		name   string
		amount string
		match  bool
	}{
		{"same amount and denom", "25000000uxion", true},
		{"multi-coin list", "100uatom,25000000uxion", true},
		{"prefix of a larger amount", "250000000uxion", false},
		{"other denom", "25000000uatom", false},
		{"no denom", "25000000", false},
		{"garbage", "abcuxion", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(transferTx("h", "xion1abc", tt.amount), session)
			require.NoError(t, err)
			assert.Equal(t, tt.match, got)
		})
	}
}

func TestMatcher_InvalidExpectedAmount(t *testing.T) {
	prefix, _ := NewMatcher(MatchPrefix, "")
	_, err := prefix.Match(transferTx("h", "xion1abc", "1uxion"), &domain.PaymentSession{RecipientAddress: "xion1abc"})
	assert.Error(t, err)

	strict, _ := NewMatcher(MatchStrict, "uxion")
	_, err = strict.Match(transferTx("h", "xion1abc", "1uxion"), &domain.PaymentSession{RecipientAddress: "xion1abc", ExpectedAmount: "ten"})
	assert.Error(t, err)
}

func TestDedupTracker(t *testing.T) {
	d := NewDedupTracker()

	assert.True(t, d.Add("a"))
	assert.False(t, d.Add("a"))
	assert.True(t, d.Add("b"))
	assert.Equal(t, 2, d.Len())
	assert.False(t, d.Add("b"))
	assert.Equal(t, 2, d.Len())
}
