package domain

import "time"

// Market is the Gamma metadata cached for a condition id.
type Market struct {
	ConditionID string
	Slug        string
	Title       string
	Category    string
	EndDate     time.Time
	UpdatedAt   time.Time
}

// Label devuelve el título si existe, o el slug, o el condition id truncado.
func (m Market) Label() string {
	switch {
	case m.Title != "":
		return m.Title
	case m.Slug != "":
		return m.Slug
	case len(m.ConditionID) > 12:
		return m.ConditionID[:12] + "..."
	}
	return m.ConditionID
}
