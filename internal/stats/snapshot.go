package stats

import (
	"errors"
	"time"

	"github.com/biblio-hub/apiserver/types"
)

// ErrBooksUnavailable is returned when the book collection itself could not
// be fetched. Every other upstream failure degrades locally; without the
// catalog there is nothing meaningful to assemble.
var ErrBooksUnavailable = errors.New("book collection unavailable")

// AssembleInput carries the aggregator outputs into one snapshot.
type AssembleInput struct {
	TotalTitles      int
	TotalCopies      int
	Loans            LoanCounts
	Reserved         int
	LoanOrigin       types.DataOrigin
	RoleCounts       map[types.Role]int
	NewRegistrations int
	Genres           []types.GenreCount
	Trend            []types.TrendPoint
	TrendOrigin      types.DataOrigin
	Activity         []types.ActivityEntry
	Now              time.Time
}

// Assemble combines aggregator outputs into one immutable snapshot. It is a
// pure function of its input: no I/O, no clock reads. Every count in the
// result is non-negative and every list field is a non-nil slice.
func Assemble(in AssembleInput) types.StatisticsSnapshot {
	snapshot := types.StatisticsSnapshot{
		TotalTitles:      clamp(in.TotalTitles),
		TotalBooks:       clamp(in.TotalCopies),
		AvailableBooks:   Availability(in.TotalCopies, in.Loans.Borrowed, in.Reserved),
		BorrowedBooks:    clamp(in.Loans.Borrowed),
		ReservedBooks:    clamp(in.Reserved),
		PendingReturn:    clamp(in.Loans.PendingReturn),
		LateReturn:       clamp(in.Loans.Late),
		ReturnedBooks:    clamp(in.Loans.Returned),
		NewRegistrations: clamp(in.NewRegistrations),
		AdminCount:       clamp(in.RoleCounts[types.RoleAdmin]),
		LibrarianCount:   clamp(in.RoleCounts[types.RoleLibrarian]),
		ReaderCount:      clamp(in.RoleCounts[types.RoleReader]),
		LoanOrigin:       origin(in.LoanOrigin),
		Genres:           in.Genres,
		Trend:            in.Trend,
		TrendOrigin:      origin(in.TrendOrigin),
		RecentActivity:   in.Activity,
		LastUpdated:      in.Now,
	}

	if snapshot.Genres == nil {
		snapshot.Genres = []types.GenreCount{}
	}
	if snapshot.Trend == nil {
		snapshot.Trend = []types.TrendPoint{}
	}
	if snapshot.RecentActivity == nil {
		snapshot.RecentActivity = []types.ActivityEntry{}
	}
	return snapshot
}

func origin(o types.DataOrigin) types.DataOrigin {
	if o == types.OriginEstimated {
		return types.OriginEstimated
	}
	return types.OriginMeasured
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
