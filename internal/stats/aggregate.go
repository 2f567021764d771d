package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/biblio-hub/apiserver/types"
)

const (
	// trendMonths is the fixed width of the month-trend window.
	trendMonths = 6

	// activityLimit bounds the recent-activity feed.
	activityLimit = 10

	// activityFloor is the minimum feed length; shorter feeds are padded
	// with synthetic system entries so dashboards are never empty.
	activityFloor = 5
)

// Degraded-mode fractions applied to the total copy count when the loan
// sub-fetch fails. These are documented estimates, not hidden guesses; the
// snapshot tags them with OriginEstimated.
const (
	estBorrowedPercent = 30
	estReservedPercent = 10
	estLatePercent     = 5
	estReturnedPercent = 20
)

// LoanCounts holds the loan-derived portion of a snapshot.
type LoanCounts struct {
	Borrowed      int
	PendingReturn int
	Late          int
	Returned      int
}

// Aggregator turns normalized collections into counts, distributions and
// trends. Its methods are deterministic for a fixed clock: re-running them
// on the same input produces identical results.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator constructs an Aggregator using the real clock.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// NewAggregatorAt constructs an Aggregator with an injected clock.
func NewAggregatorAt(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{now: now}
}

// RoleCounts partitions users by role. Unknown roles are ignored: they are
// neither counted nor an error.
func (a *Aggregator) RoleCounts(users []types.User) map[types.Role]int {
	counts := make(map[types.Role]int, len(types.Roles))
	for _, role := range types.Roles {
		counts[role] = 0
	}
	for _, user := range users {
		if user.Role.Valid() {
			counts[user.Role]++
		}
	}
	return counts
}

// NewRegistrations counts accounts created in the current calendar month.
func (a *Aggregator) NewRegistrations(users []types.User) int {
	month := a.now().Format("2006-01")
	count := 0
	for _, user := range users {
		if !user.CreatedAt.IsZero() && user.CreatedAt.Format("2006-01") == month {
			count++
		}
	}
	return count
}

// TotalCopies sums copy counts over the catalog.
func TotalCopies(books []types.Book) int {
	total := 0
	for _, book := range books {
		if book.TotalCopies > 0 {
			total += book.TotalCopies
		}
	}
	return total
}

// CountLoans derives the loan counts from the loan collection. A loan is
// late iff it has a deadline in the past and has not been returned; a loan
// with no deadline is never late.
func (a *Aggregator) CountLoans(loans []types.Loan) LoanCounts {
	now := a.now()
	var counts LoanCounts
	for _, loan := range loans {
		if loan.Returned {
			counts.Returned++
			continue
		}
		if loan.Status != types.LoanAccepted {
			continue
		}
		counts.Borrowed++
		if loan.Late(now) {
			counts.Late++
		} else {
			counts.PendingReturn++
		}
	}
	return counts
}

// ReservedCount counts pending requests in the request collection.
func ReservedCount(requests []types.Loan) int {
	count := 0
	for _, request := range requests {
		if request.Status == types.LoanPending && !request.Returned {
			count++
		}
	}
	return count
}

// EstimateLoans substitutes deterministic fraction-of-catalog estimates for
// the loan counts when the loan service is unavailable.
func EstimateLoans(totalCopies int) LoanCounts {
	borrowed := totalCopies * estBorrowedPercent / 100
	late := totalCopies * estLatePercent / 100
	return LoanCounts{
		Borrowed:      borrowed,
		Late:          late,
		PendingReturn: maxInt(0, borrowed-late),
		Returned:      totalCopies * estReturnedPercent / 100,
	}
}

// EstimateReserved substitutes a deterministic estimate for the reserved
// count when the request service is unavailable.
func EstimateReserved(totalCopies int) int {
	return totalCopies * estReservedPercent / 100
}

// Availability derives the available-copy count; it is never negative.
func Availability(totalCopies, borrowed, reserved int) int {
	return maxInt(0, totalCopies-borrowed-reserved)
}

// GenreDistribution groups books by genre, descending by count. Ties keep
// first-seen order; books without a genre are excluded rather than bucketed
// under an "unknown" label.
func GenreDistribution(books []types.Book) []types.GenreCount {
	index := make(map[string]int)
	genres := make([]types.GenreCount, 0)
	for _, book := range books {
		if book.Genre == "" {
			continue
		}
		at, seen := index[book.Genre]
		if !seen {
			index[book.Genre] = len(genres)
			genres = append(genres, types.GenreCount{Genre: book.Genre})
			at = len(genres) - 1
		}
		genres[at].Count++
	}
	sort.SliceStable(genres, func(i, j int) bool {
		return genres[i].Count > genres[j].Count
	})
	return genres
}

// MonthTrend buckets loans by request month over the fixed window of the
// six most recent calendar months, ending at the current month.
func (a *Aggregator) MonthTrend(loans []types.Loan) []types.TrendPoint {
	points := a.trendWindow()
	byMonth := make(map[string]int, trendMonths)
	for _, loan := range loans {
		if !loan.RequestedAt.IsZero() {
			// The window is built in UTC; bucket in UTC as well so
			// offset timestamps near a month boundary land correctly.
			byMonth[loan.RequestedAt.UTC().Format("2006-01")]++
		}
	}
	for i := range points {
		points[i].Loans = byMonth[points[i].Month]
	}
	return points
}

// SyntheticTrend produces a labeled placeholder series derived from the
// catalog size, used when no per-month loan data is available. The series
// is deterministic: a ramp distributing roughly 30% of the copy count over
// the window, weighted toward recent months.
func (a *Aggregator) SyntheticTrend(totalCopies int) []types.TrendPoint {
	points := a.trendWindow()
	base := totalCopies * estBorrowedPercent / 100
	weightSum := trendMonths * (trendMonths + 1) / 2
	for i := range points {
		points[i].Loans = base * (i + 1) / weightSum
	}
	return points
}

func (a *Aggregator) trendWindow() []types.TrendPoint {
	now := a.now()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	points := make([]types.TrendPoint, 0, trendMonths)
	for i := trendMonths - 1; i >= 0; i-- {
		month := current.AddDate(0, -i, 0)
		points = append(points, types.TrendPoint{
			Month: month.Format("2006-01"),
			Label: month.Format("Jan"),
		})
	}
	return points
}

// RecentActivity builds the bounded activity feed: the most recent loans by
// request time, newest first, classified by status, padded with synthetic
// system entries when fewer than the floor exist.
func (a *Aggregator) RecentActivity(loans []types.Loan, books []types.Book) []types.ActivityEntry {
	titles := make(map[int]string, len(books))
	for _, book := range books {
		titles[book.ID] = book.Title
	}

	sorted := make([]types.Loan, len(loans))
	copy(sorted, loans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RequestedAt.After(sorted[j].RequestedAt)
	})
	if len(sorted) > activityLimit {
		sorted = sorted[:activityLimit]
	}

	entries := make([]types.ActivityEntry, 0, maxInt(len(sorted), activityFloor))
	for _, loan := range sorted {
		entries = append(entries, activityEntry(loan, titles[loan.BookID]))
	}
	for i := 0; len(entries) < activityFloor; i++ {
		entries = append(entries, types.ActivityEntry{
			Kind:    types.ActivitySystem,
			Message: systemMessages[i%len(systemMessages)],
			At:      a.now(),
		})
	}
	return entries
}

var systemMessages = []string{
	"Catalog synchronized",
	"Dashboard refreshed",
	"Collections reconciled",
	"Directory synchronized",
	"Snapshot recomputed",
}

func activityEntry(loan types.Loan, title string) types.ActivityEntry {
	if title == "" {
		title = fmt.Sprintf("book #%d", loan.BookID)
	}

	kind := types.ActivityReserve
	verb := "reserved"
	at := loan.RequestedAt
	switch {
	case loan.Returned:
		kind = types.ActivityReturn
		verb = "returned"
		if loan.ReturnedAt != nil {
			at = *loan.ReturnedAt
		}
	case loan.Status == types.LoanAccepted:
		kind = types.ActivityBorrow
		verb = "borrowed"
	case loan.Status == types.LoanRefused:
		kind = types.ActivityRefused
		verb = "refused"
	}

	return types.ActivityEntry{
		Kind:    kind,
		Message: fmt.Sprintf("%q %s", title, verb),
		LoanID:  loan.ID,
		BookID:  loan.BookID,
		At:      at,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
