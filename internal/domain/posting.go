package domain

import (
	"encoding/json"
	"time"
)

// Source names one external posting source. The known-source set is fixed
// through configuration; adding a source means registering a new adapter.
type Source string

const (
	SourceTopDev       Source = "topdev"
	SourceVietnamWorks Source = "vietnamworks"
)

// Posting is the uniform record every source adapter normalizes into.
// Fields a source does not provide stay empty, never placeholder strings.
type Posting struct {
	ID                int64
	Source            Source
	ExternalID        string
	Title             string
	Company           string
	Locations         []string
	Description       string // tag-stripped
	DetailURL         string
	PostedAt          *time.Time
	SalaryText        string
	ExperienceLevel   string
	YearsOfExperience string
	Industry          string
	RequiredSkills    []string
	Benefits          string
	RawPayload        json.RawMessage // source payload kept for audit
}

// Key identifies a posting within a single extraction run. Sources without
// a stable external id fall back to the detail URL.
func (p Posting) Key() string {
	if p.ExternalID != "" {
		return string(p.Source) + ":" + p.ExternalID
	}
	return string(p.Source) + ":" + p.DetailURL
}
