// internal/service/campaign_service.go
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/events"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/remote"
	"github.com/unclebandit/campaign-engine/internal/store"
)

// RemoteClient is the slice of the backend adapter the lifecycle needs.
type RemoteClient interface {
	CreateJob(ctx context.Context, p remote.CreateJobParams) (string, error)
	CancelJob(ctx context.Context, jobID string) (string, error)
}

// PollerSupervisor registers and deregisters background status pollers.
type PollerSupervisor interface {
	Start(id string)
	Stop(id string)
}

// CampaignService owns the campaign state machine. Every UI intent and
// every poller reconciliation enters campaign state through here.
type CampaignService struct {
	Store   *store.CampaignStore
	Remote  RemoteClient
	Pollers PollerSupervisor
	Events  events.Publisher
	Logger  *zap.Logger

	// mu serializes intents so that read-check-act sequences spanning a
	// remote call (start in particular) cannot interleave.
	mu sync.Mutex
}

// UpdateParams carries the campaign parameters mutable while idle. Nil
// fields are left untouched.
type UpdateParams struct {
	Service     *string `json:"service"`
	Link        *string `json:"link"`
	Destination *string `json:"destination"`
	Proxy       *string `json:"proxy"`
	OTPType     *string `json:"otp_type"`
	DailyAmount *string `json:"daily_amount"`
}

// AddCampaign creates a blank idle campaign.
func (s *CampaignService) AddCampaign() (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &model.Campaign{
		ID:                uuid.NewString(),
		Status:            model.StatusIdle,
		SourceListHistory: []string{},
		CreatedAt:         time.Now(),
	}
	if err := s.Store.Put(c); err != nil {
		return nil, err
	}
	s.publish("campaign_added", c)
	return c, nil
}

// UpdateCampaign changes campaign parameters. Only idle campaigns are
// editable.
func (s *CampaignService) UpdateCampaign(id string, p UpdateParams) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return nil, appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusIdle {
		return nil, appErrors.NewValidation("campaign parameters are only editable while idle, current status is %s", c.Status)
	}
	return s.Store.Mutate(id, func(c *model.Campaign) {
		if p.Service != nil {
			c.Service = *p.Service
		}
		if p.Link != nil {
			c.Link = *p.Link
		}
		if p.Destination != nil {
			c.Destination = *p.Destination
		}
		if p.Proxy != nil {
			c.Proxy = *p.Proxy
		}
		if p.OTPType != nil {
			c.OTPType = *p.OTPType
		}
		if p.DailyAmount != nil {
			c.DailyAmount = *p.DailyAmount
		}
	})
}

// AttachList attaches a new source list. The label joins the append-only
// history; the payload stays in memory until start hands it to the backend.
func (s *CampaignService) AttachList(id, label string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusIdle && c.Status != model.StatusPaused {
		return appErrors.NewValidation("cannot attach a list while %s", c.Status)
	}
	_, err := s.Store.Mutate(id, func(c *model.Campaign) {
		c.SourceListLabel = &label
		c.SourceListHistory = append(c.SourceListHistory, label)
		c.RawList = payload
	})
	return err
}

// RemoveList detaches the current list without touching the history.
func (s *CampaignService) RemoveList(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusIdle && c.Status != model.StatusPaused {
		return appErrors.NewValidation("cannot remove the list while %s", c.Status)
	}
	_, err := s.Store.Mutate(id, func(c *model.Campaign) {
		c.SourceListLabel = nil
		c.RawList = nil
	})
	return err
}

// Start creates the remote job and moves the campaign to in_progress. On
// any failure the campaign stays idle and editable.
func (s *CampaignService) Start(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusIdle {
		return appErrors.NewValidation("campaign is %s, only idle campaigns can be started", c.Status)
	}
	if c.Service == "" || c.Destination == "" {
		return appErrors.NewValidation("service and destination are required")
	}
	if c.SourceListLabel == nil || len(c.RawList) == 0 {
		return appErrors.NewValidation("no source list attached")
	}

	jobID, err := s.Remote.CreateJob(ctx, remote.CreateJobParams{
		Site:        c.Service,
		Country:     c.Destination,
		OTPType:     c.OTPType,
		DailyAmount: c.DailyAmount,
		ListName:    *c.SourceListLabel,
		List:        c.RawList,
	})
	if err != nil {
		return err
	}

	updated, err := s.Store.Mutate(id, func(c *model.Campaign) {
		c.RemoteJobID = &jobID
		c.Status = model.StatusInProgress
		// the payload is owned by the backend now
		c.RawList = nil
	})
	if err != nil {
		return err
	}
	s.Pollers.Start(id)
	s.publish("campaign_started", updated)
	return nil
}

// Pause stops the poller immediately and moves the campaign to paused.
// The remote cancel is best-effort: a failure is logged at warn level and
// the local transition still completes.
func (s *CampaignService) Pause(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseLocked(ctx, id)
}

func (s *CampaignService) pauseLocked(ctx context.Context, id string) error {
	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusInProgress {
		return appErrors.NewValidation("campaign is %s, only in_progress campaigns can be paused", c.Status)
	}

	s.Pollers.Stop(id)
	updated, err := s.Store.Mutate(id, func(c *model.Campaign) {
		// a final snapshot may have completed the campaign in the meantime
		if c.Status == model.StatusInProgress {
			c.Status = model.StatusPaused
		}
	})
	if err != nil {
		return err
	}
	if updated.Status != model.StatusPaused {
		return nil
	}
	s.cancelRemote(ctx, updated)
	s.publish("campaign_paused", updated)
	return nil
}

// Resume moves a paused campaign back to in_progress and restarts its
// poller. A campaign that never reached the backend cannot be resumed;
// polling only happens when a remote job id exists.
func (s *CampaignService) Resume(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusPaused {
		return appErrors.NewValidation("campaign is %s, only paused campaigns can be resumed", c.Status)
	}
	if c.SourceListLabel == nil {
		return appErrors.NewValidation("no source list attached")
	}
	if ListExhausted(*c.SourceListLabel, c.Processed) {
		return appErrors.NewValidation("source list is exhausted, attach a new list or archive")
	}
	if c.RemoteJobID == nil {
		return appErrors.NewValidation("campaign has no remote job, start it instead")
	}

	updated, err := s.Store.Mutate(id, func(c *model.Campaign) {
		c.Status = model.StatusInProgress
	})
	if err != nil {
		return err
	}
	s.Pollers.Start(id)
	s.publish("campaign_resumed", updated)
	return nil
}

// Archive moves a paused or completed campaign into the archive
// collection. Archived campaigns are immutable afterwards.
func (s *CampaignService) Archive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusPaused && c.Status != model.StatusCompleted {
		return appErrors.NewValidation("campaign is %s, only paused or completed campaigns can be archived", c.Status)
	}
	return s.archiveLocked(ctx, id)
}

// PauseAndArchive is the compound intent: pause (if running) then archive,
// persisted as one step so no intermediate state is observable.
func (s *CampaignService) PauseAndArchive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status == model.StatusIdle {
		return appErrors.NewValidation("idle campaigns have no progress to archive, delete instead")
	}
	if c.Status == model.StatusInProgress {
		s.Pollers.Stop(id)
	}
	return s.archiveLocked(ctx, id)
}

func (s *CampaignService) archiveLocked(ctx context.Context, id string) error {
	archived, err := s.Store.MoveToArchive(id, time.Now())
	if err != nil {
		return err
	}
	s.cancelRemote(ctx, archived)
	s.publish("campaign_archived", archived)
	return nil
}

// ReplaceList clears the attached list of a paused campaign so a new one
// can be attached. History and processed count are kept.
func (s *CampaignService) ReplaceList(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusPaused {
		return appErrors.NewValidation("campaign is %s, only paused campaigns can replace their list", c.Status)
	}
	updated, err := s.Store.Mutate(id, func(c *model.Campaign) {
		c.SourceListLabel = nil
		c.RawList = nil
	})
	if err != nil {
		return err
	}
	s.publish("campaign_list_cleared", updated)
	return nil
}

// PauseAndReplaceList pauses a running campaign and clears its list as one
// persisted step.
func (s *CampaignService) PauseAndReplaceList(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusInProgress && c.Status != model.StatusPaused {
		return appErrors.NewValidation("campaign is %s, cannot replace its list", c.Status)
	}
	s.Pollers.Stop(id)
	updated, err := s.Store.Mutate(id, func(c *model.Campaign) {
		if c.Status == model.StatusInProgress {
			c.Status = model.StatusPaused
		}
		c.SourceListLabel = nil
		c.RawList = nil
	})
	if err != nil {
		return err
	}
	s.cancelRemote(ctx, updated)
	s.publish("campaign_list_cleared", updated)
	return nil
}

// Delete permanently removes an idle campaign. No archive entry is
// created.
func (s *CampaignService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.Store.Get(id)
	if !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	if c.Status != model.StatusIdle {
		return appErrors.NewValidation("campaign is %s, only idle campaigns can be deleted", c.Status)
	}
	return s.Store.Remove(id)
}

func (s *CampaignService) ListCampaigns() []*model.Campaign {
	return s.Store.List()
}

func (s *CampaignService) ListArchived() []*model.Campaign {
	return s.Store.ListArchived()
}

func (s *CampaignService) GetCampaign(id string) (*model.Campaign, bool) {
	return s.Store.Get(id)
}

// cancelRemote issues a best-effort cancel for the campaign's remote job.
// Failures leave an orphaned job behind; that is logged for operational
// visibility, never surfaced.
func (s *CampaignService) cancelRemote(ctx context.Context, c *model.Campaign) {
	if c.RemoteJobID == nil {
		return
	}
	if _, err := s.Remote.CancelJob(ctx, *c.RemoteJobID); err != nil && !appErrors.IsNotFound(err) {
		s.Logger.Warn("failed to cancel remote job, it may be orphaned",
			zap.String("campaign_id", c.ID), zap.String("job_id", *c.RemoteJobID), zap.Error(err))
	}
}

func (s *CampaignService) publish(eventType string, c *model.Campaign) {
	if s.Events == nil {
		return
	}
	err := s.Events.Publish(events.Event{
		CampaignID: c.ID,
		Type:       eventType,
		Status:     c.Status,
		Processed:  c.Processed,
		At:         time.Now(),
	})
	if err != nil {
		s.Logger.Warn("failed to publish lifecycle event",
			zap.String("campaign_id", c.ID), zap.String("type", eventType), zap.Error(err))
	}
}

// ---------------------- poller reconciliation ----------------------

// PollTarget implements poller.Reconciler.
func (s *CampaignService) PollTarget(id string) (string, bool) {
	c, ok := s.Store.Get(id)
	if !ok || c.Status != model.StatusInProgress || c.RemoteJobID == nil {
		return "", false
	}
	return *c.RemoteJobID, true
}

// ApplySnapshot merges one successful snapshot. The backend is
// authoritative: processed is replaced, not added to, but never lowered.
// A terminal remote status or the cancelled flag completes the campaign.
// Returns false once the campaign is no longer in progress so the poller
// releases its slot.
func (s *CampaignService) ApplySnapshot(id string, snap remote.JobStatusSnapshot) bool {
	total := snap.Total()
	updated, err := s.Store.Mutate(id, func(c *model.Campaign) {
		if c.Status != model.StatusInProgress {
			// an intent won the race, this snapshot is stale
			return
		}
		if total >= c.Processed {
			c.Processed = total
		} else {
			s.Logger.Warn("snapshot would lower processed count, keeping local value",
				zap.String("campaign_id", id), zap.Int("local", c.Processed), zap.Int("snapshot", total))
		}
		if snap.Terminal() {
			c.Status = model.StatusCompleted
		}
	})
	if err != nil {
		return false
	}
	if updated.Status == model.StatusCompleted {
		s.publish("campaign_completed", updated)
	}
	return updated.Status == model.StatusInProgress
}

// MarkJobGone implements poller.Reconciler: the backend forgot the job, so
// no further progress can arrive. Processed is kept as-is.
func (s *CampaignService) MarkJobGone(id string) {
	updated, err := s.Store.Mutate(id, func(c *model.Campaign) {
		if c.Status == model.StatusInProgress {
			c.Status = model.StatusCompleted
		}
	})
	if err != nil {
		return
	}
	if updated.Status == model.StatusCompleted {
		s.publish("campaign_completed", updated)
	}
}

// RecoverPollers restores pollers after a restart. Campaigns persisted as
// in_progress with a remote job resume polling; in_progress without one is
// the detectable inconsistency and is demoted to paused.
func (s *CampaignService) RecoverPollers() {
	for _, c := range s.Store.List() {
		if c.Status != model.StatusInProgress {
			continue
		}
		if c.RemoteJobID != nil {
			s.Logger.Info("restarting poller after restart", zap.String("campaign_id", c.ID))
			s.Pollers.Start(c.ID)
			continue
		}
		s.Logger.Warn("campaign was in_progress with no remote job, demoting to paused",
			zap.String("campaign_id", c.ID))
		if _, err := s.Store.Mutate(c.ID, func(c *model.Campaign) {
			c.Status = model.StatusPaused
		}); err != nil {
			s.Logger.Error("failed to demote campaign", zap.String("campaign_id", c.ID), zap.Error(err))
		}
	}
}
