package topdev

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/scrape/types"
	"jobmatch-engine/internal/scrape/util"
)

const defaultBaseURL = "https://api.topdev.vn"

// jobFields mirrors the field selection the public board UI requests.
const jobFields = "id,slug,title,salary,company,skills_str,job_levels_str," +
	"addresses,detail_url,job_url,published,requirements_arr,benefits,content"

type Config struct {
	BaseURL string // override for tests
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
	return &Source{
		cfg:     cfg,
		hc:      &http.Client{Timeout: 20 * time.Second},
		limiter: limiter,
	}
}

func (s *Source) Name() string { return string(domain.SourceTopDev) }

type listResponse struct {
	Data []json.RawMessage `json:"data"`
}

type job struct {
	ID      json.Number `json:"id"`
	Title   string      `json:"title"`
	Company struct {
		Slug          string `json:"slug"`
		IndustriesStr string `json:"industries_str"`
	} `json:"company"`
	Addresses    json.RawMessage `json:"addresses"`
	Content      string          `json:"content"`
	DetailURL    string          `json:"detail_url"`
	JobURL       string          `json:"job_url"`
	Published    string          `json:"published"`
	Salary       json.RawMessage `json:"salary"`
	JobLevelsStr string          `json:"job_levels_str"`
	SkillsStr    string          `json:"skills_str"`
	Benefits     json.RawMessage `json:"benefits"`
}

// ListPage fetches one page of the jobs API. The token is the page index;
// an empty data array ends the listing.
func (s *Source) ListPage(ctx context.Context, token types.PageToken) (types.Page, error) {
	var out types.Page

	page := 1
	if token != types.FirstPage {
		n, err := strconv.Atoi(string(token))
		if err != nil {
			return out, domain.ParseError(err, "bad page token %q", token)
		}
		page = n
	}

	u := fmt.Sprintf("%s/td/v2/jobs?fields[job]=%s&page=%d&locale=en_US&ordering=jobs_new",
		s.cfg.BaseURL, jobFields, page)

	if err := s.limiter.WaitURL(ctx, u); err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return out, domain.TransportError(err, "build request")
	}
	req.Header.Set("User-Agent", "jobmatch-engine/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return out, domain.TransportError(err, "get jobs page %d", page)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, domain.TransportError(nil, "jobs page %d status %d", page, resp.StatusCode)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return out, domain.ParseError(err, "decode jobs page %d", page)
	}

	for _, raw := range body.Data {
		p, ok := normalize(raw)
		if !ok {
			out.Skipped++
			continue
		}
		out.Postings = append(out.Postings, p)
	}

	if len(body.Data) > 0 {
		out.Next = types.PageToken(strconv.Itoa(page + 1))
	}
	return out, nil
}

func normalize(raw json.RawMessage) (domain.Posting, bool) {
	var j job
	if err := json.Unmarshal(raw, &j); err != nil {
		return domain.Posting{}, false
	}

	detailURL := j.DetailURL
	if detailURL == "" {
		detailURL = j.JobURL
	}
	if j.ID.String() == "" && detailURL == "" {
		return domain.Posting{}, false
	}

	p := domain.Posting{
		Source:          domain.SourceTopDev,
		ExternalID:      j.ID.String(),
		Title:           util.CleanText(j.Title),
		Company:         util.CleanText(j.Company.Slug),
		Locations:       locations(j.Addresses),
		Description:     util.StripHTML(j.Content),
		DetailURL:       detailURL,
		PostedAt:        parseTime(j.Published),
		SalaryText:      salaryText(j.Salary),
		ExperienceLevel: util.CleanText(j.JobLevelsStr),
		Industry:        util.CleanText(j.Company.IndustriesStr),
		RequiredSkills:  util.SplitSkills(j.SkillsStr),
		Benefits:        benefitsText(j.Benefits),
		RawPayload:      raw,
	}
	return p, true
}

// locations copes with the shapes the API has been seen returning: a plain
// string, a list of strings, or a list of address objects.
func locations(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if loc := util.NormalizeLocation(one); loc != "" {
			return []string{loc}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		var out []string
		for _, m := range many {
			if loc := util.NormalizeLocation(m); loc != "" {
				out = append(out, loc)
			}
		}
		return out
	}

	var objs []struct {
		Address     string `json:"address"`
		FullAddress string `json:"full_address"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		var out []string
		for _, o := range objs {
			addr := o.FullAddress
			if addr == "" {
				addr = o.Address
			}
			if loc := util.NormalizeLocation(addr); loc != "" {
				out = append(out, loc)
			}
		}
		return out
	}
	return nil
}

func salaryText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return util.CleanText(s)
	}

	var obj struct {
		Value    string `json:"value"`
		From     int    `json:"from"`
		To       int    `json:"to"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.Value != "" {
		return util.CleanText(obj.Value)
	}
	if obj.From == 0 && obj.To == 0 {
		return ""
	}
	return util.CleanText(fmt.Sprintf("%d - %d %s", obj.From, obj.To, obj.Currency))
}

func benefitsText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return util.StripHTML(s)
	}

	var objs []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return ""
	}
	var parts []string
	for _, o := range objs {
		v := o.Value
		if v == "" {
			v = o.Name
		}
		if v = util.StripHTML(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "; ")
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
