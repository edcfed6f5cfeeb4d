package ledger

import (
	"fmt"
	"strconv"
	"time"

	"payment-session-reconciler/internal/core/domain"
)

// txsResponse is the subset of GetTxsEventResponse the reconciler reads.
type txsResponse struct {
	TxResponses []txResponse `json:"tx_responses"`
	Total       string       `json:"total"`
}

type txResponse struct {
	Height    string  `json:"height"`
	TxHash    string  `json:"txhash"`
	Code      uint32  `json:"code"`
	Timestamp string  `json:"timestamp"` // RFC 3339 block time
	Events    []event `json:"events"`
}

type event struct {
	Type       string      `json:"type"`
	Attributes []attribute `json:"attributes"`
}

type attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r txsResponse) toDomain() ([]domain.LedgerTransaction, error) {
	txs := make([]domain.LedgerTransaction, 0, len(r.TxResponses))
	for _, tr := range r.TxResponses {
		if tr.TxHash == "" {
			return nil, fmt.Errorf("ledger returned a transaction without hash")
		}
		var height int64
		if tr.Height != "" {
			h, err := strconv.ParseInt(tr.Height, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse height of %s: %w", tr.TxHash, err)
			}
			height = h
		}

		var ts time.Time
		if tr.Timestamp != "" {
			t, err := time.Parse(time.RFC3339, tr.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("parse timestamp of %s: %w", tr.TxHash, err)
			}
			ts = t.UTC()
		}

		tx := domain.LedgerTransaction{
			Hash:      tr.TxHash,
			Height:    height,
			Timestamp: ts,
			Success:   tr.Code == 0,
			Events:    make([]domain.LedgerEvent, 0, len(tr.Events)),
		}
		for _, ev := range tr.Events {
			le := domain.LedgerEvent{
				Type:       ev.Type,
				Attributes: make([]domain.EventAttribute, 0, len(ev.Attributes)),
			}
			for _, a := range ev.Attributes {
				le.Attributes = append(le.Attributes, domain.EventAttribute{Key: a.Key, Value: a.Value})
			}
			tx.Events = append(tx.Events, le)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// lastPage is the page holding the newest of total transactions, or 1 when
// total is missing.
func (r txsResponse) lastPage(limit int) int {
	total, err := strconv.Atoi(r.Total)
	if err != nil || total <= 0 || limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
