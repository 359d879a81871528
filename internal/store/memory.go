package store

import (
	"context"
	"sync"
	"time"

	"github.com/nailglow/api/internal/model"
)

// Memory implements JobStore, CreditStore and SiteStore with mutex-guarded
// maps. Used by the test suites; the server always runs on Redis.
type Memory struct {
	mu           sync.Mutex
	jobs         map[string]*model.GenerationJob
	userJobs     map[string][]string
	balances     map[string]*model.CreditBalance
	reservations map[string]*model.Reservation
	sites        map[string]*model.Site
	versions     map[string]map[string]*model.SiteVersion
	pointers     map[string]*model.HistoryPointer
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:         make(map[string]*model.GenerationJob),
		userJobs:     make(map[string][]string),
		balances:     make(map[string]*model.CreditBalance),
		reservations: make(map[string]*model.Reservation),
		sites:        make(map[string]*model.Site),
		versions:     make(map[string]map[string]*model.SiteVersion),
		pointers:     make(map[string]*model.HistoryPointer),
	}
}

// Jobs

func (m *Memory) CreateJob(_ context.Context, job *model.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	m.userJobs[job.UserID] = append(m.userJobs[job.UserID], job.ID)
	return nil
}

func (m *Memory) GetJob(_ context.Context, jobID string) (*model.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) UpdateJob(_ context.Context, jobID string, mutate func(*model.GenerationJob) error) (*model.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	cp := *job
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	m.jobs[jobID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) ListJobsByUser(_ context.Context, userID string) ([]*model.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.userJobs[userID]
	jobs := make([]*model.GenerationJob, 0, len(ids))
	for _, id := range ids {
		if job, ok := m.jobs[id]; ok {
			cp := *job
			jobs = append(jobs, &cp)
		}
	}
	return jobs, nil
}

// Credits

func (m *Memory) GetBalance(_ context.Context, userID string) (*model.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return nil, ErrBalanceNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) PutBalance(_ context.Context, balance *model.CreditBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *balance
	m.balances[balance.UserID] = &cp
	return nil
}

func (m *Memory) AddCredits(_ context.Context, userID string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		b = &model.CreditBalance{
			UserID: userID,
			Tier:   model.TierFree,
			Status: model.SubscriptionActive,
		}
		m.balances[userID] = b
	}
	b.Credits += amount
	b.UpdatedAt = time.Now()
	return b.Credits, nil
}

func (m *Memory) DebitCredits(_ context.Context, userID string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return 0, ErrBalanceNotFound
	}
	if b.Credits < amount {
		return b.Credits, model.ErrInsufficientCredits
	}
	b.Credits -= amount
	b.UpdatedAt = time.Now()
	return b.Credits, nil
}

func (m *Memory) CreateReservation(_ context.Context, res *model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *res
	m.reservations[res.ID] = &cp
	return nil
}

func (m *Memory) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	cp := *res
	return &cp, nil
}

func (m *Memory) TransitionReservation(_ context.Context, id string, from, to model.ReservationState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[id]
	if !ok {
		return false, ErrReservationNotFound
	}
	if res.State != from {
		return false, nil
	}
	res.State = to
	return true, nil
}

// Sites

func (m *Memory) CreateSite(_ context.Context, site *model.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *site
	m.sites[site.ID] = &cp
	return nil
}

func (m *Memory) GetSite(_ context.Context, siteID string) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	site, ok := m.sites[siteID]
	if !ok {
		return nil, model.ErrSiteNotFound
	}
	cp := *site
	return &cp, nil
}

func (m *Memory) PutVersion(_ context.Context, version *model.SiteVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[version.SiteID] == nil {
		m.versions[version.SiteID] = make(map[string]*model.SiteVersion)
	}
	cp := *version
	m.versions[version.SiteID][version.ID] = &cp
	return nil
}

func (m *Memory) GetVersion(_ context.Context, siteID, versionID string) (*model.SiteVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[siteID][versionID]
	if !ok {
		return nil, model.ErrVersionNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *Memory) GetPointer(_ context.Context, siteID string) (*model.HistoryPointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pointers[siteID]
	if !ok {
		return nil, model.ErrSiteNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) PutPointer(_ context.Context, siteID string, pointer *model.HistoryPointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pointer
	m.pointers[siteID] = &cp
	return nil
}
