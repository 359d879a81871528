package model

import "time"

// SiteCreateRequest is the body for POST /api/sites.
type SiteCreateRequest struct {
	Name string `json:"name" validate:"required,min=2,max=80"`
}

// SiteCreateResponse returns the new site and its root version.
type SiteCreateResponse struct {
	SiteID        string    `json:"siteId"`
	Name          string    `json:"name"`
	RootVersionID string    `json:"rootVersionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SiteCustomizeRequest is the body for POST /api/sites/:siteId/customize.
type SiteCustomizeRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
}

// Navigation actions
const (
	NavigateUndo = "undo"
	NavigateRedo = "redo"
)

// SiteNavigateRequest moves the live pointer. Exactly one of VersionID or
// Action must be set; the handler rejects everything else.
type SiteNavigateRequest struct {
	VersionID string `json:"versionId,omitempty"`
	Action    string `json:"action,omitempty"`
}

// SiteVersionResponse is the projection of one version returned by
// customize, navigate and history endpoints.
type SiteVersionResponse struct {
	VersionID string    `json:"versionId"`
	SiteID    string    `json:"siteId"`
	ParentID  string    `json:"parentId,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Content   string    `json:"content,omitempty"`
	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"createdAt"`
}

// SiteHistoryResponse lists versions from the root to the current one.
type SiteHistoryResponse struct {
	SiteID   string                `json:"siteId"`
	Versions []SiteVersionResponse `json:"versions"`
}
