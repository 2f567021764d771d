package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/biblio-hub/apiserver/types"
	"go.uber.org/zap"
)

// Source names used for fetch results and logs.
const (
	srcAdmins     = "users.admin"
	srcLibrarians = "users.librarian"
	srcReaders    = "users.reader"
	srcBooks      = "books"
	srcLoans      = "loans"
	srcRequests   = "requests"
)

// Sources binds the engine to its upstream collections. Any source may be
// nil, in which case its collection is treated as empty; a nil Books source
// still assembles (an empty catalog is not a fetch failure).
type Sources struct {
	Admins     Source
	Librarians Source
	Readers    Source
	Books      Source
	Loans      Source
	Requests   Source
}

// Service computes dashboard snapshots on demand and on a timer.
//
// Each computation fetches fresh collections and produces a brand-new
// snapshot; concurrent refreshes are not cancelled, the later one to start
// wins (requests are idempotent reads, so last-write-wins is safe).
type Service struct {
	sources Sources
	fetcher *Fetcher
	norm    *Normalizer
	agg     *Aggregator
	log     *zap.Logger
	now     func() time.Time

	gen       atomic.Uint64
	mu        sync.Mutex
	latest    *types.StatisticsSnapshot
	latestGen uint64
}

// NewService constructs the statistics service around the given sources.
func NewService(sources Sources, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		sources: sources,
		fetcher: NewFetcher(log),
		norm:    NewNormalizer(),
		agg:     NewAggregator(),
		log:     log,
		now:     time.Now,
	}
}

// NewServiceAt constructs a Service with an injected clock, for tests.
func NewServiceAt(sources Sources, log *zap.Logger, now func() time.Time) *Service {
	s := NewService(sources, log)
	s.now = now
	s.norm = NewNormalizerAt(now)
	s.agg = NewAggregatorAt(now)
	return s
}

// Latest returns the current snapshot, computing one if none exists yet.
func (s *Service) Latest(ctx context.Context) (types.StatisticsSnapshot, error) {
	s.mu.Lock()
	if s.latest != nil {
		snapshot := *s.latest
		s.mu.Unlock()
		return snapshot, nil
	}
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh computes a fresh snapshot and installs it unless a newer refresh
// already finished.
func (s *Service) Refresh(ctx context.Context) (types.StatisticsSnapshot, error) {
	generation := s.gen.Add(1)

	snapshot, err := s.Compute(ctx)
	if err != nil {
		return types.StatisticsSnapshot{}, err
	}

	s.mu.Lock()
	if generation >= s.latestGen {
		s.latest = &snapshot
		s.latestGen = generation
	}
	s.mu.Unlock()
	return snapshot, nil
}

// Run recomputes the snapshot on the given interval until the context is
// cancelled. Failed refreshes keep the previous snapshot; dashboard
// staleness is tolerable.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.log.Warn("scheduled snapshot refresh failed", zap.Error(err))
			}
		}
	}
}

// Compute fetches every source concurrently, reconciles the collections and
// assembles one snapshot. Partial failures degrade locally; only a failed
// book fetch rejects the computation.
func (s *Service) Compute(ctx context.Context) (types.StatisticsSnapshot, error) {
	results := s.fetcher.FetchAll(ctx, map[string]Source{
		srcAdmins:     s.sources.Admins,
		srcLibrarians: s.sources.Librarians,
		srcReaders:    s.sources.Readers,
		srcBooks:      s.sources.Books,
		srcLoans:      s.sources.Loans,
		srcRequests:   s.sources.Requests,
	})

	bookResult := results[srcBooks]
	if !bookResult.OK() {
		return types.StatisticsSnapshot{}, fmt.Errorf("%w: %v", ErrBooksUnavailable, bookResult.Err)
	}

	books := make([]types.Book, 0, len(bookResult.Records))
	for _, rec := range bookResult.Records {
		books = append(books, s.norm.Book(rec))
	}
	totalCopies := TotalCopies(books)

	// A failed role source contributes nothing; the other partitions keep
	// their records.
	users := make([]types.User, 0)
	synthetic := 0
	for name, role := range map[string]types.Role{
		srcAdmins:     types.RoleAdmin,
		srcLibrarians: types.RoleLibrarian,
		srcReaders:    types.RoleReader,
	} {
		result := results[name]
		if !result.OK() {
			continue
		}
		for _, rec := range result.Records {
			user, synthesized := s.norm.User(rec, role)
			if synthesized {
				synthetic++
			}
			users = append(users, user)
		}
	}
	if synthetic > 0 {
		s.log.Warn("synthesized ids for directory records with no known id field",
			zap.Int("count", synthetic))
	}

	loanResult := results[srcLoans]
	requestResult := results[srcRequests]

	loans := make([]types.Loan, 0, len(loanResult.Records))
	for _, rec := range loanResult.Records {
		loans = append(loans, s.norm.Loan(rec))
	}
	requests := make([]types.Loan, 0, len(requestResult.Records))
	for _, rec := range requestResult.Records {
		requests = append(requests, s.norm.Loan(rec))
	}

	loanOrigin := types.OriginMeasured
	counts := s.agg.CountLoans(loans)
	if !loanResult.OK() {
		counts = EstimateLoans(totalCopies)
		loanOrigin = types.OriginEstimated
	}
	reserved := ReservedCount(requests)
	if !requestResult.OK() {
		reserved = EstimateReserved(totalCopies)
		loanOrigin = types.OriginEstimated
	}

	merged := mergeLoans(loans, requests)

	trendOrigin := types.OriginMeasured
	var trend []types.TrendPoint
	if loanResult.OK() {
		trend = s.agg.MonthTrend(merged)
	} else {
		trend = s.agg.SyntheticTrend(totalCopies)
		trendOrigin = types.OriginEstimated
	}

	activity := s.agg.RecentActivity(merged, books)

	return Assemble(AssembleInput{
		TotalTitles:      len(books),
		TotalCopies:      totalCopies,
		Loans:            counts,
		Reserved:         reserved,
		LoanOrigin:       loanOrigin,
		RoleCounts:       s.agg.RoleCounts(users),
		NewRegistrations: s.agg.NewRegistrations(users),
		Genres:           GenreDistribution(books),
		Trend:            trend,
		TrendOrigin:      trendOrigin,
		Activity:         activity,
		Now:              s.now(),
	}), nil
}

// mergeLoans combines the loan and request collections for the series that
// span both. A store-backed deployment surfaces every pending row in both
// collections, so records sharing a real id are kept once. Records with no
// id (id-less upstream payloads normalize to 0) are always kept.
func mergeLoans(loans, requests []types.Loan) []types.Loan {
	merged := make([]types.Loan, 0, len(loans)+len(requests))
	seen := make(map[int]bool, len(loans))
	for _, loan := range loans {
		if loan.ID != 0 {
			seen[loan.ID] = true
		}
		merged = append(merged, loan)
	}
	for _, request := range requests {
		if request.ID != 0 && seen[request.ID] {
			continue
		}
		merged = append(merged, request)
	}
	return merged
}
