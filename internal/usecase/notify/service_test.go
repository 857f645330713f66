package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osiri-dispatch/internal/domain/entity"
)

type serviceFixture struct {
	svc      Service
	logs     *memLogs
	orgs     *memOrgs
	sender   *fakeSender
	channels *fakeChannels
	slack    *processor
}

func newServiceFixture(t *testing.T, resolver PendingCreator) *serviceFixture {
	t.Helper()
	logs := newMemLogs()
	orgs := newMemOrgs()
	sender := &fakeSender{}
	slack, _ := newTestProcessor(entity.PlatformSlack, testPlatformConfig(), sender, logs, orgs)

	ch := slackChannel("ch-1", "org-1")
	inactive := slackChannel("ch-off", "org-1")
	inactive.IsActive = false
	email := &entity.NotificationChannel{ID: "ch-mail", OrganizationID: "org-1", Platform: entity.PlatformEmail, ChannelIdentifier: "a@example.com", IsActive: true}
	unlinked := slackChannel("ch-unlinked", "org-1")
	unlinked.WorkspaceConnectionID = nil
	channels := &fakeChannels{
		byID:      map[string]*entity.NotificationChannel{"ch-1": ch, "ch-off": inactive, "ch-mail": email, "ch-unlinked": unlinked},
		byArticle: map[string][]*entity.NotificationChannel{"art-1": {ch}},
	}
	if resolver == nil {
		resolver = pendingFunc(func(context.Context) (PendingResult, error) { return PendingResult{}, nil })
	}

	registry := NewRegistry(slack)
	orch := NewOrchestrator(resolver, channels, logs, registry, DefaultOrchestratorConfig())
	svc := NewService(resolver, orch, channels, logs, registry)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return &serviceFixture{svc: svc, logs: logs, orgs: orgs, sender: sender, channels: channels, slack: slack}
}

func TestSendToChannel_Success(t *testing.T) {
	f := newServiceFixture(t, nil)

	res, err := f.svc.SendToChannel(context.Background(), "art-1", "ch-1")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.LogID)
	assert.Equal(t, 1, f.logs.successRows("art-1", "ch-1"))
}

func TestSendToChannel_Idempotent(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.SendToChannel(context.Background(), "art-1", "ch-1")
	require.NoError(t, err)

	_, err = f.svc.SendToChannel(context.Background(), "art-1", "ch-1")

	assert.ErrorIs(t, err, ErrAlreadyDelivered)
	article, _ := f.sender.calls()
	assert.Equal(t, 1, article, "second send never reaches the platform")
	assert.Equal(t, 1, f.logs.successRows("art-1", "ch-1"), "no second success row")
}

func TestSendToChannel_ReusesPendingRow(t *testing.T) {
	f := newServiceFixture(t, nil)
	pending := f.logs.seed(entity.NewPendingLog("art-1", f.channels.byID["ch-1"]))

	res, err := f.svc.SendToChannel(context.Background(), "art-1", "ch-1")

	require.NoError(t, err)
	assert.Equal(t, pending.ID, res.LogID)
	assert.Zero(t, f.logs.creates)
}

func TestSendToChannel_ReportsQuota(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.orgs.set(limitedOrg("org-1", 3, 3))

	res, err := f.svc.SendToChannel(context.Background(), "art-1", "ch-1")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Rate limit exceeded", res.Error)
	require.NotNil(t, res.RateLimitInfo)
	assert.Equal(t, 3, res.RateLimitInfo.Limit)
	assert.Equal(t, 1, f.logs.updatesWith(entity.LogSkipped))
}

func TestSendToChannel_ReportsFailure(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.sender.alwaysErr = errors.New("not_in_channel")

	res, err := f.svc.SendToChannel(context.Background(), "art-1", "ch-1")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Retryable)
	assert.Equal(t, "Failed after 3 attempts", res.Error)
	assert.Equal(t, 1, f.logs.updatesWith(entity.LogFailed))
}

func TestSendToChannel_PendingRowClaimedConcurrently(t *testing.T) {
	f := newServiceFixture(t, nil)
	pending := f.logs.seed(entity.NewPendingLog("art-1", f.channels.byID["ch-1"]))
	f.logs.beforeClaim = func(r *entity.NotificationLog) { r.Status = entity.LogProcessing }

	res, err := f.svc.SendToChannel(context.Background(), "art-1", "ch-1")

	assert.ErrorIs(t, err, ErrDeliveryInProgress)
	assert.True(t, IsClientError(err))
	assert.Equal(t, pending.ID, res.LogID)
	article, _ := f.sender.calls()
	assert.Zero(t, article)
	assert.Empty(t, f.logs.updates)
}

func TestSendToChannel_ConcurrentCallsSendOnce(t *testing.T) {
	f := newServiceFixture(t, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.SendToChannel(context.Background(), "art-1", "ch-1")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrAlreadyDelivered)
		}
	}
	article, _ := f.sender.calls()
	assert.Equal(t, 1, article)
	assert.Equal(t, 1, f.logs.successRows("art-1", "ch-1"))
}

func TestSendToChannel_Errors(t *testing.T) {
	tests := []struct {
		name      string
		channelID string
		want      error
	}{
		{"unknown channel", "ch-404", ErrChannelNotFound},
		{"inactive channel", "ch-off", ErrChannelInactive},
		{"no processor", "ch-mail", ErrNoProcessor},
		{"channel without workspace connection", "ch-unlinked", entity.ErrValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, nil)

			_, err := f.svc.SendToChannel(context.Background(), "art-1", tt.channelID)

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsClientError(err))
			article, _ := f.sender.calls()
			assert.Zero(t, article)
			assert.Zero(t, f.logs.creates, "no log row for a rejected send")
		})
	}
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(ErrChannelNotFound))
	assert.True(t, IsClientError(ErrAlreadyDelivered))
	assert.True(t, IsClientError(ErrBatchInProgress))
	assert.True(t, IsClientError(&entity.ValidationError{Field: "id", Message: "channel id is required"}))
	assert.False(t, IsClientError(&PersistenceError{Op: "get channel", Err: errors.New("x")}))
}

func TestRunBatch(t *testing.T) {
	var f *serviceFixture
	f = newServiceFixture(t, pendingFunc(func(context.Context) (PendingResult, error) {
		return PendingResult{Logs: []*entity.NotificationLog{
			f.logs.seed(entity.NewPendingLog("art-1", f.channels.byID["ch-1"])),
		}}, nil
	}))

	status := f.svc.RunBatch(context.Background(), nil)

	assert.True(t, status.Success)
	assert.Equal(t, 1, status.SuccessCount)
}

func TestTriggerBatch_RejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	f := newServiceFixture(t, pendingFunc(func(ctx context.Context) (PendingResult, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
		}
		return PendingResult{}, nil
	}))

	require.NoError(t, f.svc.TriggerBatch(context.Background()))
	<-started

	assert.ErrorIs(t, f.svc.TriggerBatch(context.Background()), ErrBatchInProgress)
	status := f.svc.RunBatch(context.Background(), nil)
	assert.False(t, status.Success)

	close(release)
	assert.Eventually(t, func() bool {
		return f.svc.TriggerBatch(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestTriggerBatch_SurvivesRequestCancellation(t *testing.T) {
	done := make(chan error, 1)
	f := newServiceFixture(t, pendingFunc(func(ctx context.Context) (PendingResult, error) {
		time.Sleep(20 * time.Millisecond)
		done <- ctx.Err()
		return PendingResult{}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.svc.TriggerBatch(ctx))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "background run outlives the request")
	case <-time.After(time.Second):
		t.Fatal("batch did not run")
	}
}

func TestShutdown_WaitsForInflight(t *testing.T) {
	finished := make(chan struct{})
	f := newServiceFixture(t, pendingFunc(func(context.Context) (PendingResult, error) {
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return PendingResult{}, nil
	}))
	require.NoError(t, f.svc.TriggerBatch(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))

	select {
	case <-finished:
	default:
		t.Fatal("Shutdown returned before the run finished")
	}
	assert.ErrorIs(t, f.svc.TriggerBatch(context.Background()), ErrServiceShutdown)
}

func TestShutdown_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	f := newServiceFixture(t, pendingFunc(func(context.Context) (PendingResult, error) {
		<-block
		return PendingResult{}, nil
	}))
	require.NoError(t, f.svc.TriggerBatch(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, f.svc.Shutdown(ctx), context.DeadlineExceeded)
}

func TestProcessorStats(t *testing.T) {
	f := newServiceFixture(t, nil)
	ch := f.channels.byID["ch-1"]
	f.slack.ProcessNotification(context.Background(), f.logs.seed(entity.NewPendingLog("art-9", ch)), ch)

	stats := f.svc.ProcessorStats()

	require.Contains(t, stats, entity.PlatformSlack)
	assert.Equal(t, 1, stats[entity.PlatformSlack].Success)
}
