package vietnamworks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/scrape/types"
	"jobmatch-engine/internal/scrape/util"
)

const (
	defaultBaseURL = "https://ms.vietnamworks.com"
	searchPath     = "/job-search/v1.0/search"
	siteOrigin     = "https://www.vietnamworks.com"

	defaultHitsPerPage = 50
)

type Config struct {
	BaseURL     string // override for tests
	HitsPerPage int
}

type Source struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter
}

func New(cfg Config, limiter *util.HostLimiter) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HitsPerPage <= 0 {
		cfg.HitsPerPage = defaultHitsPerPage
	}
	return &Source{
		cfg:     cfg,
		hc:      &http.Client{Timeout: 25 * time.Second},
		limiter: limiter,
	}
}

func (s *Source) Name() string { return string(domain.SourceVietnamWorks) }

// ListPage issues the search request. The response document's shape is not
// contractually stable, so the hits array is located defensively. The search
// is a single request; there is no next page.
func (s *Source) ListPage(ctx context.Context, token types.PageToken) (types.Page, error) {
	var out types.Page

	u := s.cfg.BaseURL + searchPath
	if err := s.limiter.WaitURL(ctx, u); err != nil {
		return out, err
	}

	payload := map[string]any{
		"query":       "",
		"hitsPerPage": s.cfg.HitsPerPage,
		"page":        0,
		"order":       []map[string]string{{"field": "relevant", "value": "asc"}},
		"retrieveFields": []string{
			"jobId", "jobTitle", "jobUrl", "companyName", "workingLocations",
			"skills", "jobLevelVI", "industriesV3", "prettySalary", "salaryMin",
			"salaryMax", "benefits", "jobDescription", "createdOn",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return out, domain.ParseError(err, "encode search payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return out, domain.TransportError(err, "build search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Origin", siteOrigin)
	req.Header.Set("Referer", siteOrigin+"/")

	resp, err := s.hc.Do(req)
	if err != nil {
		return out, domain.TransportError(err, "search request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, domain.TransportError(nil, "search status %d", resp.StatusCode)
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return out, domain.ParseError(err, "decode search response")
	}

	hits, ok := locateHits(doc)
	if !ok {
		return out, domain.ParseError(nil, "no hits array in search response")
	}

	for _, hit := range hits {
		m, ok := hit.(map[string]any)
		if !ok {
			out.Skipped++
			continue
		}
		p, ok := normalize(m)
		if !ok {
			out.Skipped++
			continue
		}
		out.Postings = append(out.Postings, p)
	}
	return out, nil
}

// locateHits digs the result list out of whatever shape the search endpoint
// returned: a known key holding a list, a known key holding {items: [...]},
// or the document itself being a list.
func locateHits(doc any) ([]any, bool) {
	if list, ok := doc.([]any); ok {
		return list, true
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range []string{"data", "jobs", "hits", "results"} {
		switch v := m[key].(type) {
		case []any:
			return v, true
		case map[string]any:
			if items, ok := v["items"].([]any); ok {
				return items, true
			}
		}
	}
	return nil, false
}

func normalize(hit map[string]any) (domain.Posting, bool) {
	id := scalar(hit["jobId"])
	detailURL := scalar(hit["jobUrl"])
	if id == "" && detailURL == "" {
		return domain.Posting{}, false
	}

	raw, _ := json.Marshal(hit)

	p := domain.Posting{
		Source:          domain.SourceVietnamWorks,
		ExternalID:      id,
		Title:           util.CleanText(scalar(hit["jobTitle"])),
		Company:         util.CleanText(scalar(hit["companyName"])),
		Locations:       workingLocations(hit["workingLocations"]),
		Description:     util.StripHTML(scalar(hit["jobDescription"])),
		DetailURL:       detailURL,
		PostedAt:        createdOn(hit["createdOn"]),
		SalaryText:      salaryText(hit),
		ExperienceLevel: util.CleanText(scalar(hit["jobLevelVI"])),
		Industry:        industries(hit["industriesV3"]),
		RequiredSkills:  skills(hit["skills"]),
		Benefits:        benefits(hit["benefits"]),
		RawPayload:      raw,
	}
	return p, true
}

var embedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)window\.__NUXT__\s*=\s*(\{.*?\});?\s*</script>`),
}

// Detail fetches the posting page and digs the experience requirement out of
// the JSON blob embedded in the rendered document. Missing markers leave the
// fields absent; only a failed fetch drops the record.
func (s *Source) Detail(ctx context.Context, p *domain.Posting) error {
	if p.DetailURL == "" {
		return nil
	}
	if err := s.limiter.WaitURL(ctx, p.DetailURL); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.DetailURL, nil)
	if err != nil {
		return domain.RecordError(err, "build detail request")
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Referer", siteOrigin+"/")

	resp, err := s.hc.Do(req)
	if err != nil {
		return domain.RecordError(err, "fetch detail page")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return domain.RecordError(nil, "detail page status %d", resp.StatusCode)
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.RecordError(err, "read detail page")
	}

	embed, ok := findEmbeddedJSON(html)
	if !ok {
		return nil
	}

	level, years := requirementFields(embed)
	if level != "" {
		p.ExperienceLevel = level
	}
	if years != "" {
		p.YearsOfExperience = years
	}
	return nil
}

// findEmbeddedJSON collects candidate script bodies in document order and
// returns the first one that is valid JSON.
func findEmbeddedJSON(html []byte) ([]byte, bool) {
	var candidates [][]byte

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html)); err == nil {
		doc.Find(`script#__NEXT_DATA__, script[type="application/json"]`).Each(func(_ int, sel *goquery.Selection) {
			if text := strings.TrimSpace(sel.Text()); text != "" {
				candidates = append(candidates, []byte(text))
			}
		})
	}
	for _, re := range embedPatterns {
		for _, m := range re.FindAllSubmatch(html, -1) {
			candidates = append(candidates, m[1])
		}
	}

	for _, c := range candidates {
		if json.Valid(c) {
			return c, true
		}
	}
	return nil, false
}

// requirementFields locates the experience-level and required-years markers,
// first under jobRequirement, then anywhere in the document. First match in
// document order wins.
func requirementFields(embed []byte) (level, years string) {
	scope := embed
	if jr, ok := util.FindFirstKey(embed, "jobRequirement"); ok {
		scope = jr
	}

	if raw, ok := util.FindFirstKey(scope, "jobLevel"); ok {
		level, _ = util.ScalarString(raw)
	}
	if raw, ok := util.FindFirstKey(scope, "yearsOfExperience"); ok {
		years, _ = util.ScalarString(raw)
	}

	// markers can sit outside jobRequirement on some layouts
	if level == "" && len(scope) != len(embed) {
		if raw, ok := util.FindFirstKey(embed, "jobLevel"); ok {
			level, _ = util.ScalarString(raw)
		}
	}
	if years == "" && len(scope) != len(embed) {
		if raw, ok := util.FindFirstKey(embed, "yearsOfExperience"); ok {
			years, _ = util.ScalarString(raw)
		}
	}
	return level, years
}

func scalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	}
	return ""
}

func workingLocations(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		addr := scalar(m["address"])
		if addr == "" {
			addr = scalar(m["cityNameVI"])
		}
		if loc := util.NormalizeLocation(addr); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

func skills(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := util.CleanText(scalar(m["skillName"]))
		if name == "" {
			continue
		}
		k := strings.ToLower(name)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, name)
	}
	return out
}

func industries(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	var names []string
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name := util.CleanText(scalar(m["industryV3NameVI"])); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func benefits(v any) string {
	switch b := v.(type) {
	case string:
		return util.StripHTML(b)
	case []any:
		var parts []string
		for _, item := range b {
			switch e := item.(type) {
			case string:
				if t := util.StripHTML(e); t != "" {
					parts = append(parts, t)
				}
			case map[string]any:
				t := scalar(e["benefitValue"])
				if t == "" {
					t = scalar(e["benefitName"])
				}
				if t = util.StripHTML(t); t != "" {
					parts = append(parts, t)
				}
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func salaryText(hit map[string]any) string {
	if pretty := util.CleanText(scalar(hit["prettySalary"])); pretty != "" {
		return pretty
	}
	min, okMin := hit["salaryMin"].(float64)
	max, okMax := hit["salaryMax"].(float64)
	if !okMin && !okMax {
		return ""
	}
	if min == 0 && max == 0 {
		return ""
	}
	return util.CleanText(fmt.Sprintf("%.0f - %.0f", min, max))
}

func createdOn(v any) *time.Time {
	s := strings.TrimSpace(scalar(v))
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
