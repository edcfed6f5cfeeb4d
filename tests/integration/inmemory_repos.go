package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"payment-session-reconciler/internal/core/domain"

	"github.com/google/uuid"
)

// ==================== In-Memory Session Repository ====================

type inMemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]domain.PaymentSession
	writes   int
	raceLost int
}

func newInMemorySessionRepo() *inMemorySessionRepo {
	return &inMemorySessionRepo{sessions: make(map[uuid.UUID]domain.PaymentSession)}
}

func (r *inMemorySessionRepo) Create(_ context.Context, s *domain.PaymentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *inMemorySessionRepo) Get(_ context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *inMemorySessionRepo) ConditionalSetTerminal(_ context.Context, u domain.TerminalUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[u.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Status != u.ExpectedStatus {
		r.raceLost++
		return domain.ErrRaceLost
	}
	s.Status = u.NewStatus
	s.TransactionHash = u.TransactionHash
	s.UpdatedAt = time.Now().UTC()
	r.sessions[u.SessionID] = s
	r.writes++
	return nil
}

func (r *inMemorySessionRepo) ListPendingBefore(_ context.Context, now time.Time) ([]domain.PaymentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentSession
	for _, s := range r.sessions {
		if s.Status == domain.SessionStatusPending && !s.CreatedAt.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *inMemorySessionRepo) status(id uuid.UUID) domain.SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id].Status
}

func (r *inMemorySessionRepo) counts() (writes, raceLost int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes, r.raceLost
}

// ==================== Fake LCD Endpoint ====================

// fakeLCD serves /cosmos/tx/v1beta1/txs from an in-memory transfer list.
type fakeLCD struct {
	mu     sync.Mutex
	txs    map[string][]lcdTx // by recipient
	hits   int
	server *httptest.Server
}

type lcdTx struct {
	Height    string     `json:"height"`
	TxHash    string     `json:"txhash"`
	Code      uint32     `json:"code"`
	Timestamp string     `json:"timestamp"`
	Events    []lcdEvent `json:"events"`
}

type lcdEvent struct {
	Type       string         `json:"type"`
	Attributes []lcdAttribute `json:"attributes"`
}

type lcdAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func newFakeLCD() *fakeLCD {
	l := &fakeLCD{txs: make(map[string][]lcdTx)}
	l.server = httptest.NewServer(http.HandlerFunc(l.serve))
	return l
}

// addTransfer records a transfer included in a block now.
func (l *fakeLCD) addTransfer(hash, recipient, amount string, code uint32) {
	l.addTransferAt(hash, recipient, amount, code, time.Now())
}

func (l *fakeLCD) addTransferAt(hash, recipient, amount string, code uint32, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs[recipient] = append(l.txs[recipient], lcdTx{
		Height:    strconv.Itoa(1000 + len(l.txs[recipient])),
		TxHash:    hash,
		Code:      code,
		Timestamp: at.UTC().Format(time.RFC3339),
		Events: []lcdEvent{{
			Type: "transfer",
			Attributes: []lcdAttribute{
				{Key: "recipient", Value: recipient},
				{Key: "sender", Value: "xion1sender"},
				{Key: "amount", Value: amount},
			},
		}},
	})
}

func (l *fakeLCD) hitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hits
}

func (l *fakeLCD) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/cosmos/tx/v1beta1/txs" {
		http.NotFound(w, r)
		return
	}
	query := r.URL.Query().Get("query")
	recipient := strings.TrimSuffix(strings.TrimPrefix(query, "transfer.recipient='"), "'")

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 100
	}

	l.mu.Lock()
	l.hits++
	all := l.txs[recipient]
	from, to := (page-1)*limit, page*limit
	if from > len(all) {
		from = len(all)
	}
	if to > len(all) {
		to = len(all)
	}
	txs := append([]lcdTx{}, all[from:to]...)
	total := len(all)
	l.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"tx_responses": txs,
		"total":        strconv.Itoa(total),
	})
}

func (l *fakeLCD) close() {
	l.server.Close()
}

// ==================== Recording Notifier ====================

type sentNotification struct {
	kind      string
	email     string
	txHash    string
	sessionID uuid.UUID
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) NotifyCompleted(_ context.Context, email, _, txHash string, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: "completed", email: email, txHash: txHash, sessionID: id})
	return nil
}

func (n *recordingNotifier) NotifyExpired(_ context.Context, email, _ string, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: "expired", email: email, sessionID: id})
	return nil
}

func (n *recordingNotifier) forSession(id uuid.UUID) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.sessionID == id {
			out = append(out, s)
		}
	}
	return out
}
