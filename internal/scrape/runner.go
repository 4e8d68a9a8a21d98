package scrape

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/scrape/types"
)

// Runner drives a registered source through its pages: pagination, the
// per-record detail stage, run-local dedupe, cap truncation and the
// politeness delay between requests. Pages within one run are sequential;
// separate runs are free to execute in parallel.
type Runner struct {
	logger  *zap.Logger
	delay   time.Duration
	jitter  time.Duration
	sources map[string]types.Source
}

func NewRunner(logger *zap.Logger, delay, jitter time.Duration) *Runner {
	return &Runner{
		logger:  logger,
		delay:   delay,
		jitter:  jitter,
		sources: make(map[string]types.Source),
	}
}

func (r *Runner) Register(s types.Source) {
	r.sources[s.Name()] = s
}

func (r *Runner) Lookup(name string) (types.Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Known returns the registered source names, sorted.
func (r *Runner) Known() []string {
	out := make([]string, 0, len(r.sources))
	for name := range r.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run paginates source until exhaustion or max records, whichever comes
// first. A cap of N yields at most N records even if the last page would
// overshoot. Transport and parse failures abort the run; malformed records
// are skipped and tallied. Cancellation is honored at page and record
// boundaries only.
func (r *Runner) Run(ctx context.Context, source string, max int, progress types.ProgressFunc) (types.RunResult, error) {
	res := types.RunResult{Source: source}

	src, ok := r.sources[source]
	if !ok {
		return res, domain.ValidationError("unknown source %q", source)
	}
	if max < 1 {
		return res, domain.ValidationError("max records must be >= 1, got %d", max)
	}
	if progress == nil {
		progress = func(int, int, string) {}
	}

	detail, hasDetail := src.(types.DetailFetcher)
	seen := make(map[string]bool)
	token := types.FirstPage

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if res.Pages > 0 {
			if err := r.pause(ctx); err != nil {
				return res, err
			}
		}

		page, err := src.ListPage(ctx, token)
		if err != nil {
			return res, fmt.Errorf("list page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		res.Skipped += page.Skipped

		if len(page.Postings) == 0 {
			break
		}

		for _, p := range page.Postings {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			key := p.Key()
			if key == string(p.Source)+":" {
				// neither external id nor detail URL; nothing to identify it by
				res.Skipped++
				continue
			}
			if seen[key] {
				continue
			}
			seen[key] = true

			if hasDetail {
				if err := r.pause(ctx); err != nil {
					return res, err
				}
				if err := detail.Detail(ctx, &p); err != nil {
					if domain.IsKind(err, domain.KindRecord) {
						r.logger.Debug("record skipped at detail stage",
							zap.String("source", source), zap.String("key", key), zap.Error(err))
						res.Skipped++
						continue
					}
					return res, fmt.Errorf("detail for %s: %w", key, err)
				}
			}

			res.Postings = append(res.Postings, p)
			progress(len(res.Postings), max, fmt.Sprintf("page %d", res.Pages))
			if len(res.Postings) >= max {
				return res, nil
			}
		}

		if page.Next == types.FirstPage {
			break
		}
		token = page.Next
	}

	return res, nil
}

// pause observes the configured delay between requests, with jitter.
func (r *Runner) pause(ctx context.Context) error {
	d := r.delay
	if r.jitter > 0 {
		d += rand.N(r.jitter)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
