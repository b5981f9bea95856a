package storage

import (
	"time"

	"cav/asset-vault/internal/domain"
)

// UpdatePatch describes a partial asset mutation. Nil pointer fields are
// left untouched; Tags are merged into the existing map, never swapped.
type UpdatePatch struct {
	Filename       *string           `json:"filename,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	IsFavorite     *bool             `json:"is_favorite,omitempty"`
	ToggleFavorite bool              `json:"toggle_favorite,omitempty"`
	IsArchived     *bool             `json:"is_archived,omitempty"`
	SetTeam        *bool             `json:"set_team,omitempty"`
	TeamKey        string            `json:"team_key,omitempty"`

	// History entry written for this mutation. Action defaults to
	// "updated".
	Action   string `json:"action,omitempty"`
	Details  string `json:"details,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

// Apply folds the patch into the asset and appends exactly one history
// entry. All backends mutate through this so the merge semantics cannot
// drift between them.
func (p UpdatePatch) Apply(a *domain.Asset) {
	now := time.Now().UTC()

	if p.Filename != nil && *p.Filename != "" {
		a.Filename = *p.Filename
	}
	a.MergeTags(p.Tags)
	if p.IsFavorite != nil {
		a.IsFavorite = *p.IsFavorite
	}
	if p.ToggleFavorite {
		a.IsFavorite = !a.IsFavorite
	}
	if p.IsArchived != nil {
		a.IsArchived = *p.IsArchived
		if a.IsArchived {
			a.ArchivedAt = &now
		} else {
			a.ArchivedAt = nil
		}
	}
	if p.SetTeam != nil {
		a.IsTeam = *p.SetTeam
		if a.IsTeam && p.TeamKey != "" {
			a.TeamKey = p.TeamKey
		}
	}

	action := p.Action
	if action == "" {
		action = "updated"
	}
	a.AppendHistory(action, p.UserName, p.Details)
	a.UpdatedAt = now
}
