package store

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
)

// Persister writes campaign records to durable storage. The raw list
// payload is stripped before a record reaches the persister.
type Persister interface {
	SaveCampaign(c *model.Campaign) error
	DeleteCampaign(id string) error
}

// CampaignStore is the authoritative in-memory table of active and
// archived campaigns. All mutations go through Mutate/MoveToArchive/Remove,
// which apply atomically under the store lock; that lock is what serializes
// writes per campaign id.
type CampaignStore struct {
	mu        sync.Mutex
	active    map[string]*model.Campaign
	archived  map[string]*model.Campaign
	persister Persister
	logger    *zap.Logger
}

func New(p Persister, logger *zap.Logger) *CampaignStore {
	return &CampaignStore{
		active:    make(map[string]*model.Campaign),
		archived:  make(map[string]*model.Campaign),
		persister: p,
		logger:    logger,
	}
}

// Seed loads previously persisted campaigns. Meant for startup only; it
// does not write back to the persister.
func (s *CampaignStore) Seed(active, archived []*model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range active {
		s.active[c.ID] = c.Clone()
	}
	for _, c := range archived {
		s.archived[c.ID] = c.Clone()
	}
}

func (s *CampaignStore) Get(id string) (*model.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (s *CampaignStore) GetArchived(id string) (*model.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.archived[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// List returns copies of the active campaigns, newest first.
func (s *CampaignStore) List() []*model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.active)
}

func (s *CampaignStore) ListArchived() []*model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.archived)
}

func sorted(m map[string]*model.Campaign) []*model.Campaign {
	out := make([]*model.Campaign, 0, len(m))
	for _, c := range m {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Put inserts a new campaign. The id must be unique across both the
// active and archived collections.
func (s *CampaignStore) Put(c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[c.ID]; ok {
		return appErrors.NewValidation("campaign %s already exists", c.ID)
	}
	if _, ok := s.archived[c.ID]; ok {
		return appErrors.NewValidation("campaign %s already archived", c.ID)
	}
	s.active[c.ID] = c.Clone()
	s.persist(s.active[c.ID])
	return nil
}

// Mutate applies fn to the current record and replaces it atomically,
// then persists the result. Returns a copy of the new record.
func (s *CampaignStore) Mutate(id string, fn func(*model.Campaign)) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[id]
	if !ok {
		return nil, appErrors.NewValidation("campaign %s not found", id)
	}
	fn(c)
	s.persist(c)
	return c.Clone(), nil
}

func (s *CampaignStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; !ok {
		return appErrors.NewValidation("campaign %s not found", id)
	}
	delete(s.active, id)
	if s.persister != nil {
		if err := s.persister.DeleteCampaign(id); err != nil {
			s.logger.Error("failed to delete persisted campaign", zap.String("campaign_id", id), zap.Error(err))
		}
	}
	return nil
}

// MoveToArchive stamps archivedAt, marks the record archived and moves it
// from the active to the archive collection as a single persisted step.
func (s *CampaignStore) MoveToArchive(id string, ts time.Time) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[id]
	if !ok {
		return nil, appErrors.NewValidation("campaign %s not found", id)
	}
	c.Status = model.StatusArchived
	at := ts
	c.ArchivedAt = &at
	c.RawList = nil
	delete(s.active, id)
	s.archived[id] = c
	s.persist(c)
	return c.Clone(), nil
}

// persist writes the record minus the transient payload. Persistence
// failures are logged, not propagated: memory stays authoritative.
func (s *CampaignStore) persist(c *model.Campaign) {
	if s.persister == nil {
		return
	}
	cp := c.Clone()
	cp.RawList = nil
	if err := s.persister.SaveCampaign(cp); err != nil {
		s.logger.Error("failed to persist campaign", zap.String("campaign_id", c.ID), zap.Error(err))
	}
}
