package integration

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	redisStorage "payment-session-reconciler/internal/adapter/storage/redis"
	"payment-session-reconciler/internal/core/domain"
	"payment-session-reconciler/internal/core/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDuplicateRecoveredWorkers simulates the crash-recovery race: several
// engine replicas without leases all pick up the same pending session. The
// conditional write must let exactly one of them complete it, and only the
// winner notifies.
func TestDuplicateRecoveredWorkers(t *testing.T) {
	app := newTestApp(t)

	customer := "buyer@example.com"
	session := domain.NewPaymentSession("order-race", recipient, "25000000", "vendor@example.com", &customer, time.Minute, time.Now())
	require.NoError(t, app.repo.Create(context.Background(), session))
	app.lcd.addTransfer("RACE", recipient, "25000000uxion", 0)

	const replicas = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[domain.Outcome]int{}
	)
	for i := 0; i < replicas; i++ {
		d := app.newDispatcher(t, nil)
		h, err := d.Submit(*session)
		require.NoError(t, err)

		wg.Add(1)
		go func(h ports.WorkerHandle) {
			defer wg.Done()
			<-h.Done()
			mu.Lock()
			outcomes[h.Outcome()]++
			mu.Unlock()
		}(h)
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[domain.OutcomeCompleted])
	assert.Equal(t, replicas-1, outcomes[domain.OutcomeRaceLost])

	writes, raceLost := app.repo.counts()
	assert.Equal(t, 1, writes)
	assert.Equal(t, replicas-1, raceLost)

	// Vendor and customer, once each.
	assert.Len(t, app.notifier.forSession(session.ID), 2)
}

// TestLeasePreventsDuplicateWorkers checks that replicas sharing Redis run a
// single worker per session.
func TestLeasePreventsDuplicateWorkers(t *testing.T) {
	app := newTestApp(t)

	session := domain.NewPaymentSession("order-lease", recipient, "25000000", "vendor@example.com", nil, time.Minute, time.Now())
	require.NoError(t, app.repo.Create(context.Background(), session))

	other := app.newDispatcher(t, redisStorage.NewLeaseStore(app.rdb))

	h, err := app.dispatcher.Submit(*session)
	require.NoError(t, err)

	_, err = other.Submit(*session)
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)

	// Once the first worker exits its lease is released.
	h.Cancel()
	<-h.Done()
	require.Eventually(t, func() bool {
		h2, err := other.Submit(*session)
		if err != nil {
			return false
		}
		h2.Cancel()
		return true
	}, time.Second, 10*time.Millisecond)
}

// TestConcurrentCreates opens many sessions in parallel through the API and
// pays each one with its own transfer.
func TestConcurrentCreates(t *testing.T) {
	app := newTestApp(t)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		amounts = map[uuid.UUID]string{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := sessionBody()
			body["expected_amount"] = strconv.Itoa(25000000 + i)
			code, resp := app.do(t, http.MethodPost, "/api/v1/sessions", body)
			if !assert.Equal(t, http.StatusCreated, code) {
				return
			}
			id, err := uuid.Parse(resp["data"].(map[string]interface{})["session_id"].(string))
			if assert.NoError(t, err) {
				mu.Lock()
				amounts[id] = body["expected_amount"].(string)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Len(t, amounts, n)

	for id, amount := range amounts {
		app.lcd.addTransfer("PAY-"+id.String(), recipient, amount+"uxion", 0)
	}

	require.Eventually(t, func() bool {
		for id := range amounts {
			if app.repo.status(id) != domain.SessionStatusCompleted {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)

	for id := range amounts {
		assert.Equal(t, "PAY-"+id.String(), app.sessionView(t, id)["transaction_hash"])
	}
}

// TestRecoveryAfterCrash_LeaseLapses simulates an instance killed without
// Shutdown: its lease stays in Redis. The restarted instance must pick the
// session up once that lease lapses and still settle the payment.
func TestRecoveryAfterCrash_LeaseLapses(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	session := domain.NewPaymentSession("order-crash", recipient, "25000000", "vendor@example.com", nil, time.Minute, time.Now())
	require.NoError(t, app.repo.Create(ctx, session))

	key := "lease:session:" + session.ID.String()
	require.NoError(t, app.mr.Set(key, "crashed-owner"))
	app.mr.SetTTL(key, testLeaseTTL)

	restarted := app.newDispatcher(t, redisStorage.NewLeaseStore(app.rdb))
	handles, err := restarted.RecoverAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, handles, "lease of the crashed instance is still live")

	app.mr.FastForward(testLeaseTTL)

	handles, err = restarted.RecoverAll(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 1)

	app.lcd.addTransfer("AFTERCRASH", recipient, "25000000uxion", 0)

	select {
	case <-handles[0].Done():
	case <-time.After(2 * time.Second):
		t.Fatal("recovered worker did not settle the session")
	}
	assert.Equal(t, domain.OutcomeCompleted, handles[0].Outcome())
	assert.Equal(t, domain.SessionStatusCompleted, app.repo.status(session.ID))
	assert.Len(t, app.notifier.forSession(session.ID), 1)
}

// TestRecoveryAfterRestart_SameOwnerReclaims checks that an instance with a
// stable id resumes its own sessions immediately after a restart.
func TestRecoveryAfterRestart_SameOwnerReclaims(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	session := domain.NewPaymentSession("order-restart", recipient, "25000000", "vendor@example.com", nil, time.Minute, time.Now())
	require.NoError(t, app.repo.Create(ctx, session))

	key := "lease:session:" + session.ID.String()
	require.NoError(t, app.mr.Set(key, "node-a"))
	app.mr.SetTTL(key, testLeaseTTL)

	restarted := app.newDispatcherAs(t, redisStorage.NewLeaseStore(app.rdb), "node-a")
	handles, err := restarted.RecoverAll(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 1)

	app.lcd.addTransfer("RESUMED", recipient, "25000000uxion", 0)

	select {
	case <-handles[0].Done():
	case <-time.After(2 * time.Second):
		t.Fatal("resumed worker did not settle the session")
	}
	assert.Equal(t, domain.OutcomeCompleted, handles[0].Outcome())
	assert.False(t, app.mr.Exists(key), "lease released after completion")
}
