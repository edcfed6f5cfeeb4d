package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"payment-session-reconciler/internal/core/domain"
	"payment-session-reconciler/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testPoll = 10 * time.Millisecond

func newTestWorker(t *testing.T, session domain.PaymentSession, repo *memStore, ledger *scriptedLedger, notifier *recordingNotifier) *Worker {
	t.Helper()
	matcher, err := NewMatcher(MatchPrefix, "")
	require.NoError(t, err)
	return NewWorker(session, WorkerDeps{
		Repo:     repo,
		Ledger:   ledger,
		Notifier: notifier,
		Matcher:  matcher,
	}, WorkerConfig{PollInterval: testPoll, WriteTimeout: time.Second}, zerolog.Nop())
}

// ==================== Worker.Run Tests ====================

func TestWorker_SuccessfulMatch(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)
	ledger := &scriptedLedger{script: []fetchResult{
		{txs: []domain.LedgerTransaction{transferTx("ABC123", "xion1abc", "25000000uxion")}, next: "1"},
	}}
	notifier := &recordingNotifier{}

	outcome := newTestWorker(t, session, store, ledger, notifier).Run(context.Background())

	assert.Equal(t, domain.OutcomeCompleted, outcome)
	assert.Equal(t, domain.SessionStatusCompleted, store.status(session.ID))
	assert.Equal(t, "ABC123", store.hash(session.ID))
	assert.Equal(t, 1, ledger.callCount(), "no polling after a match")

	sent := notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, notification{"completed", "vendor@example.com", "25000000", "ABC123", session.ID}, sent[0])
	assert.Equal(t, notification{"completed", "customer@example.com", "25000000", "ABC123", session.ID}, sent[1])
}

func TestWorker_StopsAtFirstMatchInPoll(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)
	ledger := &scriptedLedger{script: []fetchResult{{txs: []domain.LedgerTransaction{
		transferTx("first", "xion1abc", "25000000uxion"),
		transferTx("second", "xion1abc", "25000000uxion"),
	}}}}

	w := newTestWorker(t, session, store, ledger, &recordingNotifier{})
	outcome := w.Run(context.Background())

	assert.Equal(t, domain.OutcomeCompleted, outcome)
	assert.Equal(t, "first", store.hash(session.ID))
	assert.Equal(t, 1, w.seen.Len(), "second transaction never evaluated")
}

func TestWorker_IgnoresTransfersBeforeSession(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)

	yesterday := transferTx("YESTERDAY", "xion1abc", "25000000uxion")
	yesterday.Timestamp = session.CreatedAt.Add(-24 * time.Hour)
	sameSecond := transferTx("SAMESECOND", "xion1abc", "25000000uxion")
	sameSecond.Timestamp = session.CreatedAt.Truncate(time.Second)

	ledger := &scriptedLedger{script: []fetchResult{
		{txs: []domain.LedgerTransaction{yesterday}, next: "1"},
		{txs: []domain.LedgerTransaction{yesterday, sameSecond}, next: "1"},
	}}

	w := newTestWorker(t, session, store, ledger, &recordingNotifier{})
	outcome := w.Run(context.Background())

	assert.Equal(t, domain.OutcomeCompleted, outcome)
	assert.Equal(t, "SAMESECOND", store.hash(session.ID))
	assert.Equal(t, 2, ledger.callCount(), "an old transfer alone never settles the session")
}

func TestWorker_NoCustomerEmail(t *testing.T) {
	session := testSession(time.Minute)
	session.CustomerEmail = nil
	store := newMemStore(session)
	ledger := &scriptedLedger{script: []fetchResult{
		{txs: []domain.LedgerTransaction{transferTx("H", "xion1abc", "25000000uxion")}},
	}}
	notifier := &recordingNotifier{}

	outcome := newTestWorker(t, session, store, ledger, notifier).Run(context.Background())

	assert.Equal(t, domain.OutcomeCompleted, outcome)
	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "vendor@example.com", sent[0].email)
}

func TestWorker_AmountMismatchKeepsPolling(t *testing.T) {
	session := testSession(80 * time.Millisecond)
	store := newMemStore(session)
	ledger := &scriptedLedger{script: []fetchResult{
		{txs: []domain.LedgerTransaction{transferTx("LOW", "xion1abc", "10000000uxion")}},
	}}
	notifier := &recordingNotifier{}

	w := newTestWorker(t, session, store, ledger, notifier)
	outcome := w.Run(context.Background())

	assert.Equal(t, domain.OutcomeExpired, outcome)
	assert.Greater(t, ledger.callCount(), 1)
	assert.Equal(t, 1, w.seen.Len(), "LOW evaluated once across polls")
	assert.Equal(t, domain.SessionStatusExpired, store.status(session.ID))
	assert.Empty(t, store.hash(session.ID))

	sent := notifier.all()
	require.Len(t, sent, 1, "vendor only, once")
	assert.Equal(t, notification{"expired", "vendor@example.com", "25000000", "", session.ID}, sent[0])
}

func TestWorker_ExpiryTakesPrecedence(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerClient(ctrl) // any fetch fails the test
	repo := mocks.NewMockSessionRepository(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	session := testSession(10 * time.Minute)
	session.ExpiresAt = time.Now().Add(-time.Second)

	repo.EXPECT().ConditionalSetTerminal(gomock.Any(), domain.TerminalUpdate{
		SessionID:      session.ID,
		ExpectedStatus: domain.SessionStatusPending,
		NewStatus:      domain.SessionStatusExpired,
	}).Return(nil)
	notifier.EXPECT().NotifyExpired(gomock.Any(), "vendor@example.com", "25000000", session.ID).Return(nil)

	matcher, _ := NewMatcher(MatchPrefix, "")
	w := NewWorker(session, WorkerDeps{Repo: repo, Ledger: ledger, Notifier: notifier, Matcher: matcher},
		WorkerConfig{PollInterval: time.Hour}, zerolog.Nop())

	assert.Equal(t, domain.OutcomeExpired, w.Run(context.Background()))
}

func TestWorker_WaitsNoLongerThanExpiry(t *testing.T) {
	session := testSession(50 * time.Millisecond)
	store := newMemStore(session)
	ledger := &scriptedLedger{}

	matcher, _ := NewMatcher(MatchPrefix, "")
	w := NewWorker(session, WorkerDeps{Repo: store, Ledger: ledger, Notifier: &recordingNotifier{}, Matcher: matcher},
		WorkerConfig{PollInterval: time.Hour}, zerolog.Nop())

	start := time.Now()
	outcome := w.Run(context.Background())

	assert.Equal(t, domain.OutcomeExpired, outcome)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, ledger.callCount())
}

func TestWorker_TransientFailuresDoNotFailSession(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)
	transient := fmt.Errorf("%w: connection refused", domain.ErrTransient)
	ledger := &scriptedLedger{script: []fetchResult{
		{err: transient, next: "9"},
		{err: errors.New("unexpected EOF")},
		{err: transient},
		{txs: []domain.LedgerTransaction{transferTx("OK", "xion1abc", "25000000uxion")}, next: "2"},
	}}

	w := newTestWorker(t, session, store, ledger, &recordingNotifier{})
	outcome := w.Run(context.Background())

	assert.Equal(t, domain.OutcomeCompleted, outcome)
	assert.Equal(t, 4, ledger.callCount())
	assert.Equal(t, []string{"", "", "", ""}, ledger.cursors, "cursor never advances on failure")
	assert.Equal(t, "2", w.cursor)
}

func TestWorker_TransientFailuresUntilExpiry(t *testing.T) {
	session := testSession(60 * time.Millisecond)
	store := newMemStore(session)
	ledger := &scriptedLedger{script: []fetchResult{{err: domain.ErrTransient}}}

	outcome := newTestWorker(t, session, store, ledger, &recordingNotifier{}).Run(context.Background())

	assert.Equal(t, domain.OutcomeExpired, outcome)
	assert.Equal(t, domain.SessionStatusExpired, store.status(session.ID))
}

func TestWorker_CursorAdvances(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)
	ledger := &scriptedLedger{script: []fetchResult{
		{txs: []domain.LedgerTransaction{transferTx("A", "xion1abc", "1uxion")}, next: "2"},
		{txs: []domain.LedgerTransaction{transferTx("A", "xion1abc", "1uxion")}, next: "2"},
		{txs: []domain.LedgerTransaction{transferTx("B", "xion1abc", "25000000uxion")}, next: "3"},
	}}

	outcome := newTestWorker(t, session, store, ledger, &recordingNotifier{}).Run(context.Background())

	assert.Equal(t, domain.OutcomeCompleted, outcome)
	assert.Equal(t, []string{"", "2", "2"}, ledger.cursors)
}

func TestWorker_CancellationWritesNothing(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)
	ledger := &scriptedLedger{block: true}
	notifier := &recordingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	outcome := newTestWorker(t, session, store, ledger, notifier).Run(ctx)

	assert.Equal(t, domain.OutcomeCancelled, outcome)
	assert.Equal(t, domain.SessionStatusPending, store.status(session.ID))
	assert.Empty(t, notifier.all())
}

func TestWorker_CancelledDuringWait(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)
	ledger := &scriptedLedger{}

	matcher, _ := NewMatcher(MatchPrefix, "")
	w := NewWorker(session, WorkerDeps{Repo: store, Ledger: ledger, Notifier: &recordingNotifier{}, Matcher: matcher},
		WorkerConfig{PollInterval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	assert.Equal(t, domain.OutcomeCancelled, w.Run(ctx))
	assert.Equal(t, domain.SessionStatusPending, store.status(session.ID))
}

func TestWorker_StoreErrorFailsSession(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)
	store.failWith = errors.New("connection reset by peer")
	ledger := &scriptedLedger{script: []fetchResult{
		{txs: []domain.LedgerTransaction{transferTx("H", "xion1abc", "25000000uxion")}},
	}}
	notifier := &recordingNotifier{}

	outcome := newTestWorker(t, session, store, ledger, notifier).Run(context.Background())

	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.Equal(t, domain.SessionStatusFailed, store.status(session.ID))
	assert.Empty(t, store.hash(session.ID))
	assert.Empty(t, notifier.all())
}

func TestWorker_InvalidExpectedAmountFailsSession(t *testing.T) {
	session := testSession(time.Minute)
	session.ExpectedAmount = ""
	store := newMemStore(session)
	ledger := &scriptedLedger{script: []fetchResult{
		{txs: []domain.LedgerTransaction{transferTx("H", "xion1abc", "25000000uxion")}},
	}}

	outcome := newTestWorker(t, session, store, ledger, &recordingNotifier{}).Run(context.Background())

	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.Equal(t, domain.SessionStatusFailed, store.status(session.ID))
}

func TestWorker_RaceLostSkipsNotification(t *testing.T) {
	session := testSession(time.Minute)
	settled := session
	settled.Status = domain.SessionStatusCompleted
	settled.TransactionHash = "OTHER"
	store := newMemStore(settled)
	ledger := &scriptedLedger{script: []fetchResult{
		{txs: []domain.LedgerTransaction{transferTx("H", "xion1abc", "25000000uxion")}},
	}}
	notifier := &recordingNotifier{}

	outcome := newTestWorker(t, session, store, ledger, notifier).Run(context.Background())

	assert.Equal(t, domain.OutcomeRaceLost, outcome)
	assert.Equal(t, "OTHER", store.hash(session.ID))
	assert.Empty(t, notifier.all())
}

func TestWorker_AtMostOneCompletion(t *testing.T) {
	session := testSession(time.Minute)
	store := newMemStore(session)
	notifier := &recordingNotifier{}

	const n = 16
	outcomes := make([]domain.Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ledger := &scriptedLedger{script: []fetchResult{
				{txs: []domain.LedgerTransaction{transferTx(fmt.Sprintf("H%d", i), "xion1abc", "25000000uxion")}},
			}}
			outcomes[i] = newTestWorker(t, session, store, ledger, notifier).Run(context.Background())
		}(i)
	}
	wg.Wait()

	completed, lost := 0, 0
	for _, o := range outcomes {
		switch o {
		case domain.OutcomeCompleted:
			completed++
		case domain.OutcomeRaceLost:
			lost++
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, n-1, lost)

	writes, raceLost := store.counts()
	assert.Equal(t, 1, writes)
	assert.Equal(t, n-1, raceLost)
	assert.Len(t, notifier.all(), 2, "vendor and customer notified once")
}
