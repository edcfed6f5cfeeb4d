package domain

import "time"

// Ledger event types and attribute keys used by transfer matching.
const (
	EventTypeTransfer  = "transfer"
	AttributeRecipient = "recipient"
	AttributeSender    = "sender"
	AttributeAmount    = "amount"
)

// LedgerTransaction is one transaction returned by the external feed.
type LedgerTransaction struct {
	Hash      string        `json:"hash"`
	Height    int64         `json:"height"`
	Timestamp time.Time     `json:"timestamp"` // Block time, zero when the feed omits it
	Success   bool          `json:"success"`   // False for transactions the ledger rejected
	Events    []LedgerEvent `json:"events"`
}

// Predates reports whether tx was included in a block strictly before t.
// Block times carry whole seconds, so t is truncated before comparing.
// Transactions without a timestamp never predate anything.
func (tx LedgerTransaction) Predates(t time.Time) bool {
	if tx.Timestamp.IsZero() {
		return false
	}
	return tx.Timestamp.Before(t.Truncate(time.Second))
}

// LedgerEvent is a typed event with ordered key/value attributes.
type LedgerEvent struct {
	Type       string           `json:"type"`
	Attributes []EventAttribute `json:"attributes"`
}

// EventAttribute is a single key/value pair on a ledger event.
type EventAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Transfer is a recipient/amount pair extracted from a transfer event.
type Transfer struct {
	Sender    string
	Recipient string
	Amount    string
}

// Transfers flattens the transfer events of tx into recipient/amount pairs.
// Events may carry several recipient/amount pairs in sequence; each amount is
// paired with the most recent recipient (and sender) seen in the same event.
func (tx LedgerTransaction) Transfers() []Transfer {
	var out []Transfer
	for _, ev := range tx.Events {
		if ev.Type != EventTypeTransfer {
			continue
		}
		var cur Transfer
		for _, attr := range ev.Attributes {
			switch attr.Key {
			case AttributeSender:
				cur.Sender = attr.Value
			case AttributeRecipient:
				cur.Recipient = attr.Value
			case AttributeAmount:
				cur.Amount = attr.Value
				out = append(out, cur)
			}
		}
	}
	return out
}
