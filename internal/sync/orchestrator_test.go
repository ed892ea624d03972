package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fieldops/fieldsync/internal/errors"
	"github.com/fieldops/fieldsync/internal/models"
	"github.com/fieldops/fieldsync/internal/platform"
)

// recordingNotifier captures notifications and optionally fails delivery
type recordingNotifier struct {
	mu       stdsync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, channel, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, text)
	return nil
}

func setupOrchestrator(t *testing.T, entities ...string) (*Orchestrator, *memStore, *scriptedFetcher, *recordingNotifier) {
	t.Helper()
	registry := platform.NewRegistry()
	for _, name := range entities {
		require.NoError(t, registry.Register(testDesc(name)))
	}

	store := newMemStore()
	fetcher := newScriptedFetcher()
	logger := testLogger()
	tracker := NewTracker(store, logger)
	loop := NewLoop(fetcher, store, tracker, &countingCreds{}, testSyncConfig(), logger)
	notifier := &recordingNotifier{}
	orch := NewOrchestrator(registry, tracker, loop, notifier, "#sync-alerts", testSyncConfig(), logger)
	return orch, store, fetcher, notifier
}

func resultFor(t *testing.T, summary *models.PassSummary, entity string) models.EntitySyncResult {
	t.Helper()
	for _, r := range summary.Results {
		if r.Entity == entity {
			return r
		}
	}
	t.Fatalf("no result for entity %s", entity)
	return models.EntitySyncResult{}
}

func TestOrchestrator_SyncTenantAllEntities(t *testing.T) {
	orch, store, fetcher, notifier := setupOrchestrator(t, "customers", "jobs")
	ctx := context.Background()

	fetcher.script("customers",
		fetchStep{page: &models.Page{Records: makeRecords("c", 4), HasMore: false}},
	)
	fetcher.script("jobs",
		fetchStep{page: &models.Page{Records: makeRecords("j", 2), HasMore: false}},
	)

	summary, err := orch.SyncTenant(ctx, testTenant, nil)
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.Failed())

	assert.Equal(t, models.EntityRunCompleted, resultFor(t, summary, "customers").Status)
	assert.Equal(t, int64(4), resultFor(t, summary, "customers").RecordsFetched)
	assert.Equal(t, models.EntityRunCompleted, resultFor(t, summary, "jobs").Status)

	for _, entity := range []string{"customers", "jobs"} {
		state, err := store.GetSyncState(ctx, testTenant, entity)
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusCompleted, state.Status)
	}

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "2 completed")
	assert.Contains(t, notifier.messages[0], testTenant)
}

func TestOrchestrator_FailureIsolation(t *testing.T) {
	orch, store, fetcher, _ := setupOrchestrator(t, "customers", "jobs", "invoices")
	ctx := context.Background()

	// customers fails permanently; the other two complete
	fetcher.script("customers",
		fetchStep{err: apperrors.NewValidationError("bad endpoint", nil)},
	)
	fetcher.script("jobs",
		fetchStep{page: &models.Page{Records: makeRecords("j", 3), HasMore: false}},
	)
	fetcher.script("invoices",
		fetchStep{page: &models.Page{Records: makeRecords("i", 5), HasMore: false}},
	)

	summary, err := orch.SyncTenant(ctx, testTenant, nil)
	require.NoError(t, err)
	assert.True(t, summary.Failed())

	assert.Equal(t, models.EntityRunFailed, resultFor(t, summary, "customers").Status)
	assert.NotEmpty(t, resultFor(t, summary, "customers").Error)
	assert.Equal(t, models.EntityRunCompleted, resultFor(t, summary, "jobs").Status)
	assert.Equal(t, models.EntityRunCompleted, resultFor(t, summary, "invoices").Status)

	state, err := store.GetSyncState(ctx, testTenant, "customers")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, state.Status)
	assert.NotEmpty(t, state.LastError)
	assert.Nil(t, state.LastFullSyncAt)
}

func TestOrchestrator_SkipsInProgressEntity(t *testing.T) {
	orch, store, fetcher, _ := setupOrchestrator(t, "customers", "jobs")
	ctx := context.Background()

	// Simulate a concurrent run holding the gate for customers
	store.states[store.key(testTenant, "customers")] = &models.SyncState{
		TenantID: testTenant,
		Entity:   "customers",
		Status:   models.SyncStatusInProgress,
	}
	fetcher.script("jobs",
		fetchStep{page: &models.Page{Records: makeRecords("j", 1), HasMore: false}},
	)

	summary, err := orch.SyncTenant(ctx, testTenant, nil)
	require.NoError(t, err)

	assert.Equal(t, models.EntityRunSkipped, resultFor(t, summary, "customers").Status)
	assert.Empty(t, resultFor(t, summary, "customers").Error)
	assert.Equal(t, models.EntityRunCompleted, resultFor(t, summary, "jobs").Status)
	// The held entity was never fetched
	assert.Equal(t, 0, fetcher.calls("customers"))
}

func TestOrchestrator_EntityFilter(t *testing.T) {
	orch, _, fetcher, _ := setupOrchestrator(t, "customers", "jobs")
	ctx := context.Background()

	fetcher.script("jobs",
		fetchStep{page: &models.Page{Records: makeRecords("j", 1), HasMore: false}},
	)

	summary, err := orch.SyncTenant(ctx, testTenant, []string{"jobs"})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "jobs", summary.Results[0].Entity)
	assert.Equal(t, 0, fetcher.calls("customers"))
}

func TestOrchestrator_UnknownEntityFailsOnlyItself(t *testing.T) {
	orch, _, fetcher, _ := setupOrchestrator(t, "customers")
	ctx := context.Background()

	fetcher.script("customers",
		fetchStep{page: &models.Page{Records: makeRecords("c", 1), HasMore: false}},
	)

	summary, err := orch.SyncTenant(ctx, testTenant, []string{"customers", "payments"})
	require.NoError(t, err)

	assert.Equal(t, models.EntityRunCompleted, resultFor(t, summary, "customers").Status)
	assert.Equal(t, models.EntityRunFailed, resultFor(t, summary, "payments").Status)
	assert.Contains(t, resultFor(t, summary, "payments").Error, "unknown entity type")
}

func TestOrchestrator_NotifierFailureIsSwallowed(t *testing.T) {
	orch, _, fetcher, notifier := setupOrchestrator(t, "customers")
	notifier.err = errors.New("webhook down")

	fetcher.script("customers",
		fetchStep{page: &models.Page{Records: makeRecords("c", 1), HasMore: false}},
	)

	summary, err := orch.SyncTenant(context.Background(), testTenant, nil)
	require.NoError(t, err)
	assert.False(t, summary.Failed())
}

func TestOrchestrator_EmptyTenantRejected(t *testing.T) {
	orch, _, _, _ := setupOrchestrator(t, "customers")
	_, err := orch.SyncTenant(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestOrchestrator_WatermarkMonotonicAcrossRuns(t *testing.T) {
	orch, store, fetcher, _ := setupOrchestrator(t, "customers")
	ctx := context.Background()

	fetcher.script("customers",
		fetchStep{page: &models.Page{Records: makeRecords("c", 2), HasMore: false}},
		fetchStep{page: &models.Page{Records: makeRecords("c", 1), HasMore: false}},
	)

	_, err := orch.SyncTenant(ctx, testTenant, nil)
	require.NoError(t, err)
	first, err := store.GetSyncState(ctx, testTenant, "customers")
	require.NoError(t, err)
	require.NotNil(t, first.LastFullSyncAt)

	time.Sleep(5 * time.Millisecond)

	_, err = orch.SyncTenant(ctx, testTenant, nil)
	require.NoError(t, err)
	second, err := store.GetSyncState(ctx, testTenant, "customers")
	require.NoError(t, err)
	require.NotNil(t, second.LastIncrementalSyncAt)

	// Second run is incremental; both watermarks only ever move forward
	assert.Equal(t, *first.LastFullSyncAt, *second.LastFullSyncAt)
	assert.True(t, !second.LastIncrementalSyncAt.Before(*first.LastFullSyncAt))
}
