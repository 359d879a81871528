package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/store"
)

const starterTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{name}}</title>
<style>
body{font-family:system-ui,sans-serif;margin:0;color:#2d2a32;background:#fdf6f9}
header{padding:4rem 2rem;text-align:center;background:linear-gradient(135deg,#f9d4e0,#e8c7f7)}
h1{margin:0;font-size:2.5rem}
section{max-width:720px;margin:0 auto;padding:2rem}
.cta{display:inline-block;margin-top:1.5rem;padding:.75rem 2rem;border-radius:2rem;background:#c2186a;color:#fff;text-decoration:none}
</style>
</head>
<body>
<header>
<h1>{{name}}</h1>
<p>Nail artistry, by appointment.</p>
<a class="cta" href="#contact">Book now</a>
</header>
<section id="services">
<h2>Services</h2>
<p>Gel sets, chrome finishes, hand-painted art and more.</p>
</section>
<section id="contact">
<h2>Contact</h2>
<p>DM to book your slot.</p>
</section>
</body>
</html>`

// HistoryService manages a technician site's linear edit timeline:
// customize appends versions, undo/redo/navigate move the pointer. All
// mutations on one site are serialized so concurrent edits cannot fork
// the pointer state.
type HistoryService struct {
	sites store.SiteStore

	mu    sync.Mutex
	locks map[string]*siteLock
}

// siteLock counts its holders so the entry can be dropped from the map
// when the last one releases it.
type siteLock struct {
	sync.Mutex
	refs int
}

func NewHistoryService(sites store.SiteStore) *HistoryService {
	return &HistoryService{
		sites: sites,
		locks: make(map[string]*siteLock),
	}
}

func (s *HistoryService) acquireSite(siteID string) *siteLock {
	s.mu.Lock()
	l, ok := s.locks[siteID]
	if !ok {
		l = &siteLock{}
		s.locks[siteID] = l
	}
	l.refs++
	s.mu.Unlock()
	l.Lock()
	return l
}

func (s *HistoryService) releaseSite(siteID string, l *siteLock) {
	l.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, siteID)
	}
	s.mu.Unlock()
}

// CreateSite provisions a site with its root version holding the starter
// template and points the history at it.
func (s *HistoryService) CreateSite(ctx context.Context, ownerID, name string) (*model.Site, *model.SiteVersion, error) {
	now := time.Now()
	root := &model.SiteVersion{
		ID:        uuid.New().String(),
		Prompt:    "",
		Content:   renderStarter(name),
		CreatedAt: now,
	}
	site := &model.Site{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Name:          name,
		RootVersionID: root.ID,
		CreatedAt:     now,
	}
	root.SiteID = site.ID

	if err := s.sites.CreateSite(ctx, site); err != nil {
		return nil, nil, err
	}
	if err := s.sites.PutVersion(ctx, root); err != nil {
		return nil, nil, err
	}
	pointer := &model.HistoryPointer{CurrentID: root.ID}
	if err := s.sites.PutPointer(ctx, site.ID, pointer); err != nil {
		return nil, nil, err
	}
	return site, root, nil
}

func renderStarter(name string) string {
	return strings.ReplaceAll(starterTemplate, "{{name}}", name)
}

// Customize appends a new version derived from the current one. The
// generate closure receives the current content and produces the new
// content; it runs under the site lock so two prompts cannot branch from
// the same parent. A customize after undos discards the redo tail.
func (s *HistoryService) Customize(ctx context.Context, siteID, prompt string, generate func(ctx context.Context, currentContent string) (string, error)) (*model.SiteVersion, error) {
	lock := s.acquireSite(siteID)
	defer s.releaseSite(siteID, lock)

	pointer, err := s.sites.GetPointer(ctx, siteID)
	if err != nil {
		return nil, err
	}
	current, err := s.sites.GetVersion(ctx, siteID, pointer.CurrentID)
	if err != nil {
		return nil, err
	}

	content, err := generate(ctx, current.Content)
	if err != nil {
		return nil, err
	}

	version := &model.SiteVersion{
		ID:        uuid.New().String(),
		SiteID:    siteID,
		ParentID:  current.ID,
		Prompt:    prompt,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.sites.PutVersion(ctx, version); err != nil {
		return nil, err
	}
	next := &model.HistoryPointer{CurrentID: version.ID}
	if err := s.sites.PutPointer(ctx, siteID, next); err != nil {
		return nil, err
	}
	return version, nil
}

// Undo steps the pointer to the current version's parent. The departing
// version becomes the redo tip unless a redo tail already exists.
func (s *HistoryService) Undo(ctx context.Context, siteID string) (*model.SiteVersion, error) {
	lock := s.acquireSite(siteID)
	defer s.releaseSite(siteID, lock)

	pointer, err := s.sites.GetPointer(ctx, siteID)
	if err != nil {
		return nil, err
	}
	current, err := s.sites.GetVersion(ctx, siteID, pointer.CurrentID)
	if err != nil {
		return nil, err
	}
	if current.ParentID == "" {
		return nil, model.ErrNoPreviousVersion
	}
	parent, err := s.sites.GetVersion(ctx, siteID, current.ParentID)
	if err != nil {
		return nil, err
	}
	next := &model.HistoryPointer{CurrentID: parent.ID, RedoTipID: pointer.RedoTipID}
	if next.RedoTipID == "" {
		next.RedoTipID = current.ID
	}
	if err := s.sites.PutPointer(ctx, siteID, next); err != nil {
		return nil, err
	}
	return parent, nil
}

// Redo steps forward along the undone chain. The forward child is found by
// walking parent links back from the redo tip until a version whose parent
// is the current one.
func (s *HistoryService) Redo(ctx context.Context, siteID string) (*model.SiteVersion, error) {
	lock := s.acquireSite(siteID)
	defer s.releaseSite(siteID, lock)

	pointer, err := s.sites.GetPointer(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if pointer.RedoTipID == "" {
		return nil, model.ErrNoNextVersion
	}

	child, err := s.forwardChild(ctx, siteID, pointer.RedoTipID, pointer.CurrentID)
	if err != nil {
		return nil, err
	}

	next := &model.HistoryPointer{CurrentID: child.ID}
	if child.ID != pointer.RedoTipID {
		next.RedoTipID = pointer.RedoTipID
	}
	if err := s.sites.PutPointer(ctx, siteID, next); err != nil {
		return nil, err
	}
	return child, nil
}

func (s *HistoryService) forwardChild(ctx context.Context, siteID, tipID, currentID string) (*model.SiteVersion, error) {
	version, err := s.sites.GetVersion(ctx, siteID, tipID)
	if err != nil {
		return nil, err
	}
	for {
		if version.ParentID == currentID {
			return version, nil
		}
		if version.ParentID == "" {
			return nil, model.ErrNoNextVersion
		}
		version, err = s.sites.GetVersion(ctx, siteID, version.ParentID)
		if err != nil {
			return nil, err
		}
	}
}

// Navigate jumps directly to a version in the site's timeline. A direct
// jump abandons any redo tail.
func (s *HistoryService) Navigate(ctx context.Context, siteID, versionID string) (*model.SiteVersion, error) {
	lock := s.acquireSite(siteID)
	defer s.releaseSite(siteID, lock)

	version, err := s.sites.GetVersion(ctx, siteID, versionID)
	if err != nil {
		return nil, err
	}
	next := &model.HistoryPointer{CurrentID: version.ID}
	if err := s.sites.PutPointer(ctx, siteID, next); err != nil {
		return nil, err
	}
	return version, nil
}

// Current returns the version the pointer sits on.
func (s *HistoryService) Current(ctx context.Context, siteID string) (*model.SiteVersion, error) {
	pointer, err := s.sites.GetPointer(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return s.sites.GetVersion(ctx, siteID, pointer.CurrentID)
}

// History walks the parent chain from the current version back to the root
// and returns it oldest first, with the current version flagged.
func (s *HistoryService) History(ctx context.Context, siteID string) ([]model.SiteVersionResponse, error) {
	pointer, err := s.sites.GetPointer(ctx, siteID)
	if err != nil {
		return nil, err
	}

	var chain []model.SiteVersionResponse
	id := pointer.CurrentID
	for id != "" {
		version, err := s.sites.GetVersion(ctx, siteID, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, model.SiteVersionResponse{
			VersionID: version.ID,
			SiteID:    version.SiteID,
			ParentID:  version.ParentID,
			Prompt:    version.Prompt,
			CreatedAt: version.CreatedAt,
			Current:   version.ID == pointer.CurrentID,
		})
		id = version.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
