package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/events"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/remote"
	"github.com/unclebandit/campaign-engine/internal/service"
	"github.com/unclebandit/campaign-engine/internal/store"
)

// --- Mocks ---

type MockRemote struct {
	mu          sync.Mutex
	createCalls int
	createErr   error
	nextJobID   string
	cancelled   []string
	cancelErr   error
}

func (m *MockRemote) CreateJob(ctx context.Context, p remote.CreateJobParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.nextJobID, nil
}

func (m *MockRemote) CancelJob(ctx context.Context, jobID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, jobID)
	if m.cancelErr != nil {
		return "", m.cancelErr
	}
	return "cancelled", nil
}

type MockSupervisor struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (m *MockSupervisor) Start(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, id)
}

func (m *MockSupervisor) Stop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, id)
}

func newTestService() (*service.CampaignService, *MockRemote, *MockSupervisor, *events.MemoryPublisher) {
	rem := &MockRemote{nextJobID: "job-1"}
	sup := &MockSupervisor{}
	pub := events.NewMemoryPublisher()
	svc := &service.CampaignService{
		Store:   store.New(nil, zap.NewNop()),
		Remote:  rem,
		Pollers: sup,
		Events:  pub,
		Logger:  zap.NewNop(),
	}
	return svc, rem, sup, pub
}

// readyCampaign adds a campaign with params and an attached list.
func readyCampaign(t *testing.T, svc *service.CampaignService) string {
	t.Helper()
	c, err := svc.AddCampaign()
	require.NoError(t, err)

	site, country := "Microsoft", "Italy"
	otp, daily := "TXT", "50000"
	_, err = svc.UpdateCampaign(c.ID, service.UpdateParams{
		Service: &site, Destination: &country, OTPType: &otp, DailyAmount: &daily,
	})
	require.NoError(t, err)
	require.NoError(t, svc.AttachList(c.ID, "500,000numberIT.xls", []byte("3900000001")))
	return c.ID
}

func startedCampaign(t *testing.T, svc *service.CampaignService) string {
	t.Helper()
	id := readyCampaign(t, svc)
	require.NoError(t, svc.Start(context.Background(), id))
	return id
}

// --- Tests ---

func TestAddCampaignIsIdleAndEmpty(t *testing.T) {
	svc, _, _, _ := newTestService()

	c, err := svc.AddCampaign()
	require.NoError(t, err)
	assert.Equal(t, model.StatusIdle, c.Status)
	assert.Equal(t, 0, c.Processed)
	assert.Nil(t, c.SourceListLabel)
	assert.Nil(t, c.RemoteJobID)
	assert.Empty(t, c.SourceListHistory)
}

func TestStartWithoutListFails(t *testing.T) {
	svc, rem, sup, _ := newTestService()
	c, _ := svc.AddCampaign()
	site, country := "Microsoft", "Italy"
	_, err := svc.UpdateCampaign(c.ID, service.UpdateParams{Service: &site, Destination: &country})
	require.NoError(t, err)

	err = svc.Start(context.Background(), c.ID)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))

	got, _ := svc.GetCampaign(c.ID)
	assert.Equal(t, model.StatusIdle, got.Status)
	assert.Equal(t, 0, rem.createCalls)
	assert.Empty(t, sup.started)
}

func TestStartCreatesJobAndRegistersPoller(t *testing.T) {
	svc, rem, sup, _ := newTestService()
	id := startedCampaign(t, svc)

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusInProgress, got.Status)
	require.NotNil(t, got.RemoteJobID)
	assert.Equal(t, "job-1", *got.RemoteJobID)
	// the payload was handed off, not retained
	assert.Nil(t, got.RawList)
	assert.Equal(t, 1, rem.createCalls)
	assert.Equal(t, []string{id}, sup.started)
}

func TestStartTwiceCreatesExactlyOneJob(t *testing.T) {
	svc, rem, sup, _ := newTestService()
	id := startedCampaign(t, svc)

	err := svc.Start(context.Background(), id)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	assert.Equal(t, 1, rem.createCalls)
	assert.Len(t, sup.started, 1)
}

func TestStartFailureRollsBackToIdle(t *testing.T) {
	svc, rem, _, _ := newTestService()
	rem.createErr = appErrors.NewValidation("siteName is required")
	id := readyCampaign(t, svc)

	err := svc.Start(context.Background(), id)
	require.Error(t, err)

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusIdle, got.Status)
	assert.Nil(t, got.RemoteJobID)
	// still editable, list still attached
	assert.NotNil(t, got.SourceListLabel)
	assert.NotNil(t, got.RawList)
}

func TestReconciliationFlow(t *testing.T) {
	svc, _, _, pub := newTestService()
	id := startedCampaign(t, svc)

	// first poll: still processing
	still := svc.ApplySnapshot(id, remote.JobStatusSnapshot{
		Status: "processing",
		Detail: remote.JobDetail{Completed: 10},
	})
	assert.True(t, still)
	got, _ := svc.GetCampaign(id)
	assert.Equal(t, 10, got.Processed)
	assert.Equal(t, model.StatusInProgress, got.Status)

	// second poll: terminal
	still = svc.ApplySnapshot(id, remote.JobStatusSnapshot{
		Status: "completed",
		Detail: remote.JobDetail{Completed: 50, Failed: 2},
	})
	assert.False(t, still)
	got, _ = svc.GetCampaign(id)
	assert.Equal(t, 52, got.Processed)
	assert.Equal(t, model.StatusCompleted, got.Status)

	var completed int
	for _, e := range pub.Events() {
		if e.Type == "campaign_completed" {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestProcessedNeverDecreases(t *testing.T) {
	svc, _, _, _ := newTestService()
	id := startedCampaign(t, svc)

	svc.ApplySnapshot(id, remote.JobStatusSnapshot{Status: "processing", Detail: remote.JobDetail{Completed: 100}})
	svc.ApplySnapshot(id, remote.JobStatusSnapshot{Status: "processing", Detail: remote.JobDetail{Completed: 40}})

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, 100, got.Processed)
}

func TestCancelledFlagCompletesCampaign(t *testing.T) {
	svc, _, _, _ := newTestService()
	id := startedCampaign(t, svc)

	still := svc.ApplySnapshot(id, remote.JobStatusSnapshot{
		Status:    "processing",
		Cancelled: true,
		Detail:    remote.JobDetail{Completed: 7, Cancelled: 3},
	})
	assert.False(t, still)
	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 10, got.Processed)
}

func TestPauseStopsPollerAndCancelsJob(t *testing.T) {
	svc, rem, sup, _ := newTestService()
	id := startedCampaign(t, svc)

	require.NoError(t, svc.Pause(context.Background(), id))

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusPaused, got.Status)
	// remote job id is retained so cancel targeted the right job
	require.NotNil(t, got.RemoteJobID)
	assert.Equal(t, []string{id}, sup.stopped)
	assert.Equal(t, []string{"job-1"}, rem.cancelled)
}

func TestPauseCompletesDespiteCancelFailure(t *testing.T) {
	svc, rem, sup, _ := newTestService()
	rem.cancelErr = appErrors.NewTransport("cancelJob", assert.AnError)
	id := startedCampaign(t, svc)

	require.NoError(t, svc.Pause(context.Background(), id))

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusPaused, got.Status)
	assert.Equal(t, []string{id}, sup.stopped)
}

func TestPauseRequiresInProgress(t *testing.T) {
	svc, _, _, _ := newTestService()
	id := readyCampaign(t, svc)

	err := svc.Pause(context.Background(), id)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestResumeRestartsPoller(t *testing.T) {
	svc, _, sup, _ := newTestService()
	id := startedCampaign(t, svc)
	require.NoError(t, svc.Pause(context.Background(), id))

	require.NoError(t, svc.Resume(context.Background(), id))

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusInProgress, got.Status)
	assert.Equal(t, []string{id, id}, sup.started)
}

func TestResumeRejectedWhenListExhausted(t *testing.T) {
	svc, _, _, _ := newTestService()
	id := startedCampaign(t, svc)
	svc.ApplySnapshot(id, remote.JobStatusSnapshot{Status: "processing", Detail: remote.JobDetail{Completed: 500000}})
	require.NoError(t, svc.Pause(context.Background(), id))

	err := svc.Resume(context.Background(), id)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusPaused, got.Status)
}

func TestArchiveMovesRecordExactlyOnce(t *testing.T) {
	svc, rem, _, _ := newTestService()
	id := startedCampaign(t, svc)
	require.NoError(t, svc.Pause(context.Background(), id))

	require.NoError(t, svc.Archive(context.Background(), id))

	_, ok := svc.GetCampaign(id)
	assert.False(t, ok)
	archived := svc.ListArchived()
	require.Len(t, archived, 1)
	assert.Equal(t, id, archived[0].ID)
	assert.Equal(t, model.StatusArchived, archived[0].Status)
	assert.NotNil(t, archived[0].ArchivedAt)
	// pause + archive both issued a best-effort cancel
	assert.Equal(t, []string{"job-1", "job-1"}, rem.cancelled)

	assert.Error(t, svc.Archive(context.Background(), id))
}

func TestPauseAndArchiveFromInProgress(t *testing.T) {
	svc, rem, sup, _ := newTestService()
	id := startedCampaign(t, svc)

	require.NoError(t, svc.PauseAndArchive(context.Background(), id))

	_, ok := svc.GetCampaign(id)
	assert.False(t, ok)
	require.Len(t, svc.ListArchived(), 1)
	assert.Equal(t, []string{id}, sup.stopped)
	assert.Equal(t, []string{"job-1"}, rem.cancelled)
}

func TestPauseAndArchiveRejectsIdle(t *testing.T) {
	svc, _, _, _ := newTestService()
	c, _ := svc.AddCampaign()

	err := svc.PauseAndArchive(context.Background(), c.ID)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestReplaceListKeepsHistoryAndProgress(t *testing.T) {
	svc, _, _, _ := newTestService()
	id := startedCampaign(t, svc)
	svc.ApplySnapshot(id, remote.JobStatusSnapshot{Status: "processing", Detail: remote.JobDetail{Completed: 123}})
	require.NoError(t, svc.Pause(context.Background(), id))

	require.NoError(t, svc.ReplaceList(context.Background(), id))

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusPaused, got.Status)
	assert.Nil(t, got.SourceListLabel)
	assert.Equal(t, []string{"500,000numberIT.xls"}, got.SourceListHistory)
	assert.Equal(t, 123, got.Processed)

	// attaching the next list grows the history
	require.NoError(t, svc.AttachList(id, "100,000numberES.xls", []byte("3400000001")))
	got, _ = svc.GetCampaign(id)
	assert.Equal(t, []string{"500,000numberIT.xls", "100,000numberES.xls"}, got.SourceListHistory)
}

func TestPauseAndReplaceListFromInProgress(t *testing.T) {
	svc, _, sup, _ := newTestService()
	id := startedCampaign(t, svc)

	require.NoError(t, svc.PauseAndReplaceList(context.Background(), id))

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusPaused, got.Status)
	assert.Nil(t, got.SourceListLabel)
	assert.Equal(t, []string{id}, sup.stopped)
}

func TestDeleteOnlyFromIdle(t *testing.T) {
	svc, _, _, _ := newTestService()
	c, _ := svc.AddCampaign()
	require.NoError(t, svc.Delete(c.ID))
	_, ok := svc.GetCampaign(c.ID)
	assert.False(t, ok)
	assert.Empty(t, svc.ListArchived())

	id := startedCampaign(t, svc)
	err := svc.Delete(id)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestUpdateRejectedWhileRunning(t *testing.T) {
	svc, _, _, _ := newTestService()
	id := startedCampaign(t, svc)

	site := "Google"
	_, err := svc.UpdateCampaign(id, service.UpdateParams{Service: &site})
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestStaleSnapshotIgnoredAfterPause(t *testing.T) {
	svc, _, _, _ := newTestService()
	id := startedCampaign(t, svc)
	require.NoError(t, svc.Pause(context.Background(), id))

	// a late response from a cancelled poller must not advance state
	still := svc.ApplySnapshot(id, remote.JobStatusSnapshot{
		Status: "processing",
		Detail: remote.JobDetail{Completed: 999},
	})
	assert.False(t, still)
	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusPaused, got.Status)
	assert.Equal(t, 0, got.Processed)
}

func TestMarkJobGoneCompletesCampaign(t *testing.T) {
	svc, _, _, _ := newTestService()
	id := startedCampaign(t, svc)
	svc.ApplySnapshot(id, remote.JobStatusSnapshot{Status: "processing", Detail: remote.JobDetail{Completed: 33}})

	svc.MarkJobGone(id)

	got, _ := svc.GetCampaign(id)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 33, got.Processed)
}

func TestRecoverPollers(t *testing.T) {
	svc, _, sup, _ := newTestService()

	jobID := "job-9"
	withJob := &model.Campaign{ID: "a", Status: model.StatusInProgress, RemoteJobID: &jobID}
	withoutJob := &model.Campaign{ID: "b", Status: model.StatusInProgress}
	idle := &model.Campaign{ID: "c", Status: model.StatusIdle}
	svc.Store.Seed([]*model.Campaign{withJob, withoutJob, idle}, nil)

	svc.RecoverPollers()

	assert.Equal(t, []string{"a"}, sup.started)
	got, _ := svc.GetCampaign("b")
	assert.Equal(t, model.StatusPaused, got.Status)
	got, _ = svc.GetCampaign("c")
	assert.Equal(t, model.StatusIdle, got.Status)
}
