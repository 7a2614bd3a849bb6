package budget

import (
	"context"
	"errors"

	"github.com/hrdash/hrdash/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// Master returns the master row of a division, or nil when none exists yet.
func (s *Service) Master(ctx context.Context, div Division) (*MasterBudget, error) {
	if err := s.EnsureSchema(ctx, div); err != nil {
		return nil, err
	}
	return optionalMaster(s.repo.GetMaster(ctx, div))
}

func optionalMaster(m MasterBudget, err error) (*MasterBudget, error) {
	if errors.Is(err, ErrMasterNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListEntries returns one page of entries with the master row.
func (s *Service) ListEntries(ctx context.Context, div Division, req ListRequest) (EntryPage, error) {
	if err := s.EnsureSchema(ctx, div); err != nil {
		return EntryPage{}, err
	}
	if req.Limit <= 0 {
		req.Limit = defaultPageSize
	}
	if req.Limit > maxPageSize {
		req.Limit = maxPageSize
	}
	paging := shared.NewPagination(req.Page, req.Limit, 0)
	filter := ListFilter{Search: req.Search, Limit: paging.PerPage, Offset: paging.Offset()}

	var (
		page  EntryPage
		total int
		err   error
	)
	if page.Master, err = optionalMaster(s.repo.GetMaster(ctx, div)); err != nil {
		return EntryPage{}, err
	}
	if div.Style == StyleTermin {
		page.Projects, total, err = s.repo.ListProjects(ctx, div, filter)
	} else {
		page.Absorptions, total, err = s.repo.ListAbsorptions(ctx, div, filter)
	}
	if err != nil {
		return EntryPage{}, err
	}
	page.Pagination = shared.NewPagination(paging.Page, paging.PerPage, total)
	return page, nil
}

// History returns history rows newest first. A non-positive limit returns all.
func (s *Service) History(ctx context.Context, div Division, limit int) ([]HistoryRecord, error) {
	if err := s.EnsureSchema(ctx, div); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, div, limit)
}

// FilterOptions returns the distinct periods or project names of a division.
func (s *Service) FilterOptions(ctx context.Context, div Division) ([]string, error) {
	if err := s.EnsureSchema(ctx, div); err != nil {
		return nil, err
	}
	options, err := s.repo.FilterOptions(ctx, div)
	if err != nil {
		return nil, err
	}
	if options == nil {
		options = []string{}
	}
	return options, nil
}

// Summary returns the master row, every entry and the summary totals. The
// result is served from the summary cache when one is attached.
func (s *Service) Summary(ctx context.Context, div Division) (SummaryReport, error) {
	if err := s.EnsureSchema(ctx, div); err != nil {
		return SummaryReport{}, err
	}
	if s.cache == nil {
		return s.buildSummary(ctx, div)
	}
	return s.cache.Fetch(ctx, div, func(ctx context.Context) (SummaryReport, error) {
		return s.buildSummary(ctx, div)
	})
}

func (s *Service) buildSummary(ctx context.Context, div Division) (SummaryReport, error) {
	report := SummaryReport{Division: div.Slug, Style: div.Style}
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r Reader) error {
		var err error
		if report.Master, err = optionalMaster(r.GetMaster(ctx, div)); err != nil {
			return err
		}
		if div.Style == StyleTermin {
			report.Projects, _, err = r.ListProjects(ctx, div, ListFilter{})
			return err
		}
		report.Absorptions, _, err = r.ListAbsorptions(ctx, div, ListFilter{})
		return err
	})
	if err != nil {
		return SummaryReport{}, err
	}
	if div.Style == StyleTermin {
		report.Totals = SummarizeProjects(report.Master, report.Projects)
	} else {
		report.Totals = SummarizeAbsorptions(report.Master, report.Absorptions)
	}
	return report, nil
}
