package domain

import "time"

// WorkExperience is one employment entry on a candidate profile.
type WorkExperience struct {
	Title   string
	Company string
	Years   float64
}

// CandidateProfile is read-only input and is never mutated by this engine.
type CandidateProfile struct {
	ID         int64
	Name       string
	Address    string
	Industries []string
	Skills     []string
	Experience []WorkExperience
}

// TotalYears sums the profile's employment entries.
func (p CandidateProfile) TotalYears() float64 {
	var total float64
	for _, e := range p.Experience {
		total += e.Years
	}
	return total
}

// MatchResult scores one posting against one profile. Results below the
// caller's minimum threshold are never produced.
type MatchResult struct {
	ProfileID      int64
	PostingID      int64
	Score          float64
	MatchedSkills  []string
	ExperienceNote string
	ComputedAt     time.Time
}
