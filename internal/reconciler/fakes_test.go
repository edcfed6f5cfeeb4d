package reconciler

import (
	"context"
	"sync"
	"time"

	"payment-session-reconciler/internal/core/domain"

	"github.com/google/uuid"
)

// memStore is an in-memory session store with a real compare-and-swap.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]domain.PaymentSession
	writes   int // successful terminal writes
	raceLost int
	failWith error // returned by ConditionalSetTerminal when set
}

func newMemStore(sessions ...domain.PaymentSession) *memStore {
	s := &memStore{sessions: make(map[uuid.UUID]domain.PaymentSession)}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	return s
}

func (s *memStore) Create(_ context.Context, session *domain.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *memStore) ConditionalSetTerminal(_ context.Context, u domain.TerminalUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil && u.NewStatus != domain.SessionStatusFailed {
		return s.failWith
	}
	sess, ok := s.sessions[u.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if sess.Status != u.ExpectedStatus {
		s.raceLost++
		return domain.ErrRaceLost
	}
	sess.Status = u.NewStatus
	sess.TransactionHash = u.TransactionHash
	s.sessions[u.SessionID] = sess
	s.writes++
	return nil
}

func (s *memStore) ListPendingBefore(_ context.Context, now time.Time) ([]domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentSession
	for _, sess := range s.sessions {
		if sess.Status == domain.SessionStatusPending && !sess.CreatedAt.After(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *memStore) status(id uuid.UUID) domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].Status
}

func (s *memStore) hash(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].TransactionHash
}

func (s *memStore) counts() (writes, raceLost int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes, s.raceLost
}

type fetchResult struct {
	txs  []domain.LedgerTransaction
	next string
	err  error
}

// scriptedLedger replays results in order, then repeats the last one. When
// block is set, fetches wait for ctx cancellation instead.
type scriptedLedger struct {
	mu      sync.Mutex
	script  []fetchResult
	calls   int
	cursors []string
	addrs   []string
	block   bool
	delay   time.Duration // ignores ctx, for abandoned-worker tests
}

func (l *scriptedLedger) FetchTransfers(ctx context.Context, address string, cursor string) ([]domain.LedgerTransaction, string, error) {
	l.mu.Lock()
	l.calls++
	l.cursors = append(l.cursors, cursor)
	l.addrs = append(l.addrs, address)
	block, delay := l.block, l.delay
	var r fetchResult
	if len(l.script) > 0 {
		i := l.calls - 1
		if i >= len(l.script) {
			i = len(l.script) - 1
		}
		r = l.script[i]
	}
	l.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if block {
		<-ctx.Done()
		return nil, cursor, ctx.Err()
	}
	return r.txs, r.next, r.err
}

func (l *scriptedLedger) addresses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.addrs...)
}

func (l *scriptedLedger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type notification struct {
	kind      string
	email     string
	amount    string
	txHash    string
	sessionID uuid.UUID
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyCompleted(_ context.Context, email, amount, txHash string, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{"completed", email, amount, txHash, id})
	return nil
}

func (n *recordingNotifier) NotifyExpired(_ context.Context, email, amount string, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{"expired", email, amount, "", id})
	return nil
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

func transferTx(hash, recipient, amount string) domain.LedgerTransaction {
	return domain.LedgerTransaction{
		Hash:    hash,
		Success: true,
		Events: []domain.LedgerEvent{{
			Type: domain.EventTypeTransfer,
			Attributes: []domain.EventAttribute{
				{Key: domain.AttributeRecipient, Value: recipient},
				{Key: domain.AttributeSender, Value: "xion1sender"},
				{Key: domain.AttributeAmount, Value: amount},
			},
		}},
	}
}

func testSession(expiresIn time.Duration) domain.PaymentSession {
	customer := "customer@example.com"
	return *domain.NewPaymentSession("txn-1", "xion1abc", "25000000", "vendor@example.com", &customer, expiresIn, time.Now())
}
