package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"jetpredict-notifier/internal/dispatcher/config"
	"jetpredict-notifier/internal/dispatcher/dto"
	"jetpredict-notifier/internal/dispatcher/repository"
	"jetpredict-notifier/internal/entity"
	"jetpredict-notifier/pkg/logger"
	"jetpredict-notifier/pkg/push"
	"jetpredict-notifier/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/datatypes"
)

type fakePredictionRepo struct {
	due []dto.DueEntry
	err error
}

func (f *fakePredictionRepo) FindDue(_ context.Context, _, _ time.Time) ([]dto.DueEntry, error) {
	return f.due, f.err
}

type fakeUserRepo struct {
	users map[string]*entity.User
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*entity.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

type fakeMarkerRepo struct {
	mu              sync.Mutex
	acquired        map[string]bool
	lastRunRecorded bool
	err             error
}

func (f *fakeMarkerRepo) Acquire(_ context.Context, batchID uint, entryIndex int, day time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquired == nil {
		f.acquired = make(map[string]bool)
	}
	key := fmt.Sprintf("%d:%d:%s", batchID, entryIndex, day.Format("2006-01-02"))
	if f.acquired[key] {
		return false, nil
	}
	f.acquired[key] = true
	return true, nil
}

func (f *fakeMarkerRepo) RecordLastRun(ctx context.Context, _, _, _ int, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRunRecorded = true
	return nil
}

type fakeRunRepo struct {
	mu            sync.Mutex
	runs          []*entity.DispatchRun
	updatedStatus entity.RunStatus
}

func (f *fakeRunRepo) Create(_ context.Context, run *entity.DispatchRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.ID = uint(len(f.runs) + 1)
	f.runs = append(f.runs, run)
	return nil
}

// Update rejects writes on a done context, as gorm's WithContext does.
func (f *fakeRunRepo) Update(ctx context.Context, run *entity.DispatchRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedStatus = run.Status
	return nil
}

func (f *fakeRunRepo) FindByID(_ context.Context, _ uint) (*entity.DispatchRun, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRunRepo) FindRecent(_ context.Context, _ int) ([]entity.DispatchRun, error) {
	return nil, errors.New("not implemented")
}

type fakePushNotifier struct {
	mu         sync.Mutex
	sent       []push.Notification
	failTokens map[string]bool
}

func (f *fakePushNotifier) Send(_ context.Context, n push.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTokens[n.Token] {
		return errors.New("gateway rejected message")
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeTelegramNotifier struct {
	mu       sync.Mutex
	messages []string
	chatIDs  []int64
}

func (f *fakeTelegramNotifier) SendMessage(text string) error {
	return f.SendMessageUser(text, 0)
}

func (f *fakeTelegramNotifier) SendMessageUser(text string, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	f.chatIDs = append(f.chatIDs, chatID)
	return nil
}

type serviceFixture struct {
	svc      DispatcherService
	push     *fakePushNotifier
	telegram *fakeTelegramNotifier
	markers  *fakeMarkerRepo
	runs     *fakeRunRepo
}

func newFixture(t *testing.T, predictionRepo repository.PredictionRepository, users map[string]*entity.User) *serviceFixture {
	t.Helper()

	log, err := logger.New("debug", "json")
	require.NoError(t, err)

	pushNotifier := &fakePushNotifier{failTokens: make(map[string]bool)}
	telegramNotifier := &fakeTelegramNotifier{}
	markerRepo := &fakeMarkerRepo{}
	runRepo := &fakeRunRepo{}

	cfg := &config.Config{}
	cfg.Dispatcher.TimeZone = "UTC"

	svc, err := NewDispatcherService(cfg, log, predictionRepo, &fakeUserRepo{users: users}, markerRepo, runRepo, pushNotifier, telegramNotifier)
	require.NoError(t, err)

	return &serviceFixture{
		svc:      svc,
		push:     pushNotifier,
		telegram: telegramNotifier,
		markers:  markerRepo,
		runs:     runRepo,
	}
}

func dueEntry(batchID uint, idx int, owner, clock string, value float64) dto.DueEntry {
	return dto.DueEntry{
		BatchID:        batchID,
		EntryIndex:     idx,
		OwnerID:        owner,
		Time:           clock,
		PredictedValue: value,
		At:             time.Date(2025, 6, 15, 10, 5, 0, 0, time.UTC),
	}
}

func userWithToken(id, token string) *entity.User {
	return &entity.User{ID: id, PushToken: utils.ToPointer(token)}
}

func TestDispatchSendsMatchingEntries(t *testing.T) {
	f := newFixture(t, &fakePredictionRepo{due: []dto.DueEntry{
		dueEntry(1, 0, "u1", "10:05", 2.1),
	}}, map[string]*entity.User{
		"u1": userWithToken("u1", "tok1"),
	})

	summary, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, f.push.sent, 1)

	n := f.push.sent[0]
	assert.Equal(t, "tok1", n.Token)
	assert.Equal(t, "JetPredict Alert", n.Title)
	assert.Contains(t, n.Body, "2.10x")
	assert.Contains(t, n.Body, "10:05")
	assert.Equal(t, "10:05", n.Tag)
	assert.True(t, n.Renotify)
}

func TestDispatchSkipsDisabledUsers(t *testing.T) {
	disabled := userWithToken("u1", "tok1")
	disabled.NotificationPreferences = datatypes.JSON([]byte(`{"alerts_enabled": false}`))

	f := newFixture(t, &fakePredictionRepo{due: []dto.DueEntry{
		dueEntry(1, 0, "u1", "10:05", 2.0),
		dueEntry(1, 1, "u1", "10:05", 3.0),
	}}, map[string]*entity.User{"u1": disabled})

	summary, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 2, summary.Skipped)
	assert.Empty(t, f.push.sent)
}

func TestDispatchSkipsUsersWithoutDeliveryChannel(t *testing.T) {
	f := newFixture(t, &fakePredictionRepo{due: []dto.DueEntry{
		dueEntry(1, 0, "no-token", "10:05", 2.0),
		dueEntry(2, 0, "u2", "10:05", 5.0),
	}}, map[string]*entity.User{
		"no-token": {ID: "no-token"},
		"u2":       userWithToken("u2", "tok2"),
	})

	summary, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, f.push.sent, 1)
	assert.Equal(t, "tok2", f.push.sent[0].Token)
}

func TestDispatchSkipsUnknownUsers(t *testing.T) {
	f := newFixture(t, &fakePredictionRepo{due: []dto.DueEntry{
		dueEntry(1, 0, "ghost", "10:05", 2.0),
	}}, map[string]*entity.User{})

	summary, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
}

func TestDispatchIsolatesSendFailures(t *testing.T) {
	f := newFixture(t, &fakePredictionRepo{due: []dto.DueEntry{
		dueEntry(1, 0, "uA", "10:05", 2.0),
		dueEntry(2, 0, "uB", "10:05", 3.5),
	}}, map[string]*entity.User{
		"uA": userWithToken("uA", "tokA"),
		"uB": userWithToken("uB", "tokB"),
	})
	f.push.failTokens["tokA"] = true

	summary, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, f.push.sent, 1)
	assert.Equal(t, "tokB", f.push.sent[0].Token)
}

func TestDispatchZeroMatchRun(t *testing.T) {
	f := newFixture(t, &fakePredictionRepo{}, map[string]*entity.User{})

	summary, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, string(entity.RunStatusCompleted), summary.Status)
	assert.Equal(t, 0, summary.Matched)
	assert.Empty(t, f.push.sent)
}

func TestDispatchScanFailureEndsRun(t *testing.T) {
	f := newFixture(t, &fakePredictionRepo{err: errors.New("store unreachable")}, map[string]*entity.User{})

	_, err := f.svc.Dispatch(context.Background())
	require.Error(t, err)

	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, entity.RunStatusFailed, f.runs.runs[0].Status)
	assert.Empty(t, f.push.sent)
}

func TestDispatchHonorsExistingMarker(t *testing.T) {
	due := []dto.DueEntry{dueEntry(1, 0, "u1", "10:05", 2.0)}
	f := newFixture(t, &fakePredictionRepo{due: due}, map[string]*entity.User{
		"u1": userWithToken("u1", "tok1"),
	})

	first, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)

	// A neighboring run re-matching the same entry is a no-op.
	second, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, f.push.sent, 1)
}

func TestDispatchSendsDespiteMarkerStoreFailure(t *testing.T) {
	f := newFixture(t, &fakePredictionRepo{due: []dto.DueEntry{
		dueEntry(1, 0, "u1", "10:05", 2.0),
	}}, map[string]*entity.User{
		"u1": userWithToken("u1", "tok1"),
	})
	f.markers.err = errors.New("redis down")

	summary, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}

func TestDispatchPersistsTimeoutStatus(t *testing.T) {
	f := newFixture(t, &fakePredictionRepo{due: []dto.DueEntry{
		dueEntry(1, 0, "u1", "10:05", 2.0),
		dueEntry(2, 0, "u2", "10:05", 3.0),
	}}, map[string]*entity.User{
		"u1": userWithToken("u1", "tok1"),
		"u2": userWithToken("u2", "tok2"),
	})

	// A deadline already in the past models a run that ran out of time
	// mid-fan-out: the sends abort, but the terminal status and last-run
	// stats writes must still land.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-1*time.Millisecond))
	defer cancel()

	summary, err := f.svc.Dispatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, string(entity.RunStatusTimeout), summary.Status)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 0, summary.Sent)
	assert.Empty(t, f.push.sent)
	assert.Equal(t, entity.RunStatusTimeout, f.runs.updatedStatus)
	assert.True(t, f.markers.lastRunRecorded)
}

func TestDispatchFallsBackToTelegram(t *testing.T) {
	linked := &entity.User{ID: "u1", TelegramChatID: utils.ToPointer(int64(42))}

	f := newFixture(t, &fakePredictionRepo{due: []dto.DueEntry{
		dueEntry(1, 0, "u1", "10:05", 2.1),
	}}, map[string]*entity.User{"u1": linked})

	summary, err := f.svc.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Sent)
	assert.Empty(t, f.push.sent)
	require.Len(t, f.telegram.messages, 1)
	assert.Contains(t, f.telegram.messages[0], "2.10x")
	assert.Equal(t, int64(42), f.telegram.chatIDs[0])
}
