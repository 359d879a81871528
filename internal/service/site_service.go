package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/store"
)

// SiteGenerator produces a rewritten site page from an edit instruction.
type SiteGenerator interface {
	GenerateSiteContent(ctx context.Context, prompt, currentContent string) (string, error)
	IsConfigured() bool
}

// SiteService exposes the technician site operations: creation, prompt
// driven customization with credit billing, and version navigation.
type SiteService struct {
	sites     store.SiteStore
	history   *HistoryService
	credits   *CreditService
	generator SiteGenerator

	costPerCustomize int
	genTimeout       time.Duration
}

func NewSiteService(sites store.SiteStore, history *HistoryService, credits *CreditService, generator SiteGenerator, costPerCustomize int, genTimeout time.Duration) *SiteService {
	return &SiteService{
		sites:            sites,
		history:          history,
		credits:          credits,
		generator:        generator,
		costPerCustomize: costPerCustomize,
		genTimeout:       genTimeout,
	}
}

// CreateSite provisions a site for the caller with the starter page.
func (s *SiteService) CreateSite(ctx context.Context, ownerID, name string) (*model.SiteCreateResponse, error) {
	site, root, err := s.history.CreateSite(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	return &model.SiteCreateResponse{
		SiteID:        site.ID,
		Name:          site.Name,
		RootVersionID: root.ID,
		CreatedAt:     site.CreatedAt,
	}, nil
}

func (s *SiteService) ownedSite(ctx context.Context, userID, siteID string) (*model.Site, error) {
	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site.OwnerID != userID {
		return nil, model.ErrNotOwner
	}
	return site, nil
}

// Customize applies a prompt to the site's current version. Credits are
// reserved up front, committed when the new version lands and refunded if
// generation fails. The AI call is bounded by the configured timeout.
func (s *SiteService) Customize(ctx context.Context, userID, siteID, prompt string) (*model.SiteVersionResponse, error) {
	if _, err := s.ownedSite(ctx, userID, siteID); err != nil {
		return nil, err
	}

	reservation, err := s.credits.Authorize(ctx, userID, s.costPerCustomize)
	if err != nil {
		return nil, err
	}

	version, err := s.history.Customize(ctx, siteID, prompt, func(ctx context.Context, currentContent string) (string, error) {
		genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
		defer cancel()
		return s.generateContent(genCtx, prompt, currentContent)
	})
	if err != nil {
		if refundErr := s.credits.Refund(ctx, reservation); refundErr != nil {
			log.Printf("Failed to refund reservation %s: %v", reservation.ID, refundErr)
		}
		return nil, err
	}

	if err := s.credits.Commit(ctx, reservation); err != nil {
		log.Printf("Failed to commit reservation %s: %v", reservation.ID, err)
	}

	return &model.SiteVersionResponse{
		VersionID: version.ID,
		SiteID:    siteID,
		ParentID:  version.ParentID,
		Prompt:    version.Prompt,
		Content:   version.Content,
		CreatedAt: version.CreatedAt,
		Current:   true,
	}, nil
}

func (s *SiteService) generateContent(ctx context.Context, prompt, currentContent string) (string, error) {
	if s.generator == nil || !s.generator.IsConfigured() {
		return mockCustomize(prompt, currentContent), nil
	}
	content, err := s.generator.GenerateSiteContent(ctx, prompt, currentContent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrGenerationFailed, err)
	}
	return content, nil
}

// mockCustomize stamps the instruction into the page so the edit loop
// works end to end without an API key.
func mockCustomize(prompt, currentContent string) string {
	marker := fmt.Sprintf("<!-- edit: %s -->", prompt)
	if idx := strings.LastIndex(currentContent, "</body>"); idx >= 0 {
		return currentContent[:idx] + marker + "\n" + currentContent[idx:]
	}
	return currentContent + "\n" + marker
}

// Navigate moves the site's history pointer. Exactly one of versionID or
// action drives the move.
func (s *SiteService) Navigate(ctx context.Context, userID, siteID string, req *model.SiteNavigateRequest) (*model.SiteVersionResponse, error) {
	if _, err := s.ownedSite(ctx, userID, siteID); err != nil {
		return nil, err
	}

	var (
		version *model.SiteVersion
		err     error
	)
	switch {
	case req.VersionID != "":
		version, err = s.history.Navigate(ctx, siteID, req.VersionID)
	case req.Action == model.NavigateUndo:
		version, err = s.history.Undo(ctx, siteID)
	case req.Action == model.NavigateRedo:
		version, err = s.history.Redo(ctx, siteID)
	default:
		return nil, model.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &model.SiteVersionResponse{
		VersionID: version.ID,
		SiteID:    siteID,
		ParentID:  version.ParentID,
		Prompt:    version.Prompt,
		Content:   version.Content,
		CreatedAt: version.CreatedAt,
		Current:   true,
	}, nil
}

// History returns the active timeline, root first.
func (s *SiteService) History(ctx context.Context, userID, siteID string) (*model.SiteHistoryResponse, error) {
	if _, err := s.ownedSite(ctx, userID, siteID); err != nil {
		return nil, err
	}
	versions, err := s.history.History(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return &model.SiteHistoryResponse{
		SiteID:   siteID,
		Versions: versions,
	}, nil
}

// Current returns the site's current version with content, for rendering.
func (s *SiteService) Current(ctx context.Context, userID, siteID string) (*model.SiteVersionResponse, error) {
	if _, err := s.ownedSite(ctx, userID, siteID); err != nil {
		return nil, err
	}
	version, err := s.history.Current(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return &model.SiteVersionResponse{
		VersionID: version.ID,
		SiteID:    siteID,
		ParentID:  version.ParentID,
		Prompt:    version.Prompt,
		Content:   version.Content,
		CreatedAt: version.CreatedAt,
		Current:   true,
	}, nil
}
