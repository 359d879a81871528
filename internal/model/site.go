package model

import "time"

// Site is a technician's marketing site. It anchors a version history whose
// root is created together with the site.
type Site struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"ownerId"`
	Name          string    `json:"name"`
	RootVersionID string    `json:"rootVersionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SiteVersion is one immutable snapshot of generated site content. Versions
// form parent-linked chains; only the root has an empty ParentID. The prompt
// is empty for the root as well.
type SiteVersion struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"siteId"`
	ParentID  string    `json:"parentId,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryPointer marks which version is live for a site. RedoTipID remembers
// the far end of the chain the pointer walked back from, so redo can retrace
// it; a fresh customize or direct navigation clears it.
type HistoryPointer struct {
	CurrentID string `json:"currentId"`
	RedoTipID string `json:"redoTipId,omitempty"`
}
