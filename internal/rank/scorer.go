package rank

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"jobmatch-engine/internal/domain"
)

// Criterion weights. A criterion whose inputs are missing on either side
// drops out of both the numerator and the denominator, so a posting with
// thin data is not punished down to zero.
const (
	weightSkills     = 0.40
	weightExperience = 0.30
	weightLocation   = 0.20
	weightIndustry   = 0.10
)

type Scorer struct {
	now func() time.Time
}

func New() *Scorer {
	return &Scorer{now: time.Now}
}

// Score ranks postings against one profile. Deterministic for fixed inputs:
// descending score, ties broken by ascending posting id. Results below
// minScore are dropped, not zeroed.
func (s *Scorer) Score(profile domain.CandidateProfile, postings []domain.Posting, minScore float64) []domain.MatchResult {
	computedAt := s.now().UTC()

	var out []domain.MatchResult
	for _, p := range postings {
		if m, ok := s.scoreOne(profile, p, minScore, computedAt); ok {
			out = append(out, m)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PostingID < out[j].PostingID
	})
	return out
}

func (s *Scorer) scoreOne(profile domain.CandidateProfile, p domain.Posting, minScore float64, computedAt time.Time) (domain.MatchResult, bool) {
	var num, den float64
	var matched []string
	var note string

	if len(profile.Skills) > 0 && len(p.RequiredSkills) > 0 {
		matched = skillOverlap(profile.Skills, p.RequiredSkills)
		sub := float64(len(matched)) / float64(len(p.RequiredSkills))
		num += sub * weightSkills
		den += weightSkills
	}

	if required, ok := requiredYears(p); ok {
		if have := profile.TotalYears(); len(profile.Experience) > 0 {
			sub := 1.0
			if have < required {
				sub = have / required
			}
			num += sub * weightExperience
			den += weightExperience
			note = fmt.Sprintf("%.1f years against %.1f required", have, required)
		}
	}

	if profile.Address != "" && len(p.Locations) > 0 {
		sub := 0.0
		for _, loc := range p.Locations {
			if containsEither(profile.Address, loc) {
				sub = 1.0
				break
			}
		}
		num += sub * weightLocation
		den += weightLocation
	}

	if len(profile.Industries) > 0 && p.Industry != "" {
		sub := 0.0
		for _, ind := range profile.Industries {
			if containsEither(ind, p.Industry) {
				sub = 1.0
				break
			}
		}
		num += sub * weightIndustry
		den += weightIndustry
	}

	if den == 0 {
		return domain.MatchResult{}, false
	}
	score := num / den
	if score < minScore {
		return domain.MatchResult{}, false
	}

	return domain.MatchResult{
		ProfileID:      profile.ID,
		PostingID:      p.ID,
		Score:          score,
		MatchedSkills:  matched,
		ExperienceNote: note,
		ComputedAt:     computedAt,
	}, true
}

// skillOverlap returns the case-insensitive intersection, lower-cased and
// sorted so equal inputs always produce equal output.
func skillOverlap(profileSkills, postingSkills []string) []string {
	have := map[string]bool{}
	for _, s := range profileSkills {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}

	seen := map[string]bool{}
	var out []string
	for _, s := range postingSkills {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" || seen[k] || !have[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func containsEither(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// levelYears maps an experience-level label to the years it usually stands
// for when the posting states no explicit number.
var levelYears = []struct {
	needle string
	years  float64
}{
	{"intern", 0.5},
	{"fresher", 0.5},
	{"junior", 1},
	{"middle", 3},
	{"mid", 3},
	{"senior", 5},
	{"lead", 7},
	{"manager", 7},
	{"director", 10},
}

// requiredYears derives the posting's experience requirement, preferring an
// explicit years figure over the level label.
func requiredYears(p domain.Posting) (float64, bool) {
	if y, ok := firstNumber(p.YearsOfExperience); ok && y > 0 {
		return y, true
	}
	level := strings.ToLower(p.ExperienceLevel)
	if level == "" {
		return 0, false
	}
	for _, l := range levelYears {
		if strings.Contains(level, l.needle) {
			return l.years, true
		}
	}
	return 0, false
}

func firstNumber(s string) (float64, bool) {
	var (
		num     float64
		frac    float64
		div     float64 = 1
		started bool
		inFrac  bool
	)
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			started = true
			if inFrac {
				div *= 10
				frac = frac*10 + float64(r-'0')
			} else {
				num = num*10 + float64(r-'0')
			}
		case r == '.' && started && !inFrac:
			inFrac = true
		default:
			if started {
				return num + frac/div, true
			}
		}
	}
	if started {
		return num + frac/div, true
	}
	return 0, false
}
