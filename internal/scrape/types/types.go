package types

import (
	"context"

	"jobmatch-engine/internal/domain"
)

// PageToken is an opaque cursor into a source's listing. The zero value asks
// for the first page; an empty Next means the listing is exhausted.
type PageToken string

const FirstPage PageToken = ""

// Page is one listing page after normalization. Skipped counts records the
// adapter dropped as malformed; dropping a record never fails the page.
type Page struct {
	Postings []domain.Posting
	Skipped  int
	Next     PageToken
}

// Source is the capability set every adapter implements. Transports differ
// wildly between sources; the contract does not.
type Source interface {
	Name() string
	ListPage(ctx context.Context, token PageToken) (Page, error)
}

// DetailFetcher is the optional second stage for sources whose listing is
// too thin and needs a per-record detail fetch.
type DetailFetcher interface {
	Detail(ctx context.Context, p *domain.Posting) error
}

// RunResult is one finished adapter run. Order of Postings preserves
// page-then-position order of the source.
type RunResult struct {
	Source   string
	Postings []domain.Posting
	Pages    int
	Skipped  int
}

// ProgressFunc receives coarse progress at record boundaries.
type ProgressFunc func(current, total int, status string)
