package types

import "time"

// DataOrigin tags a snapshot section as computed from real collections or
// substituted by a documented degraded-mode estimate. Consumers can use it
// to visually distinguish real from placeholder data.
type DataOrigin string

const (
	// OriginMeasured marks values computed from fetched collections.
	OriginMeasured DataOrigin = "measured"

	// OriginEstimated marks values substituted after an upstream failure.
	OriginEstimated DataOrigin = "estimated"
)

// GenreCount is one entry of the genre distribution.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

// TrendPoint is one month bucket of the loan trend.
type TrendPoint struct {
	// Month is the calendar month in YYYY-MM form.
	Month string `json:"month"`

	// Label is the short month name for display ("Jan", "Feb", ...).
	Label string `json:"label"`

	// Loans is the number of loans requested in that month.
	Loans int `json:"loans"`
}

// ActivityKind classifies a recent-activity entry.
type ActivityKind string

// Activity kinds. System entries are synthetic padding so dashboards are
// never empty.
const (
	ActivityBorrow  ActivityKind = "borrow"
	ActivityReturn  ActivityKind = "return"
	ActivityReserve ActivityKind = "reserve"
	ActivityRefused ActivityKind = "refused"
	ActivitySystem  ActivityKind = "system"
)

// ActivityEntry is one row of the recent-activity feed.
type ActivityEntry struct {
	Kind    ActivityKind `json:"kind"`
	Message string       `json:"message"`
	LoanID  int          `json:"loan_id,omitempty"`
	BookID  int          `json:"book_id,omitempty"`
	At      time.Time    `json:"at"`
}

// StatisticsSnapshot is the immutable output of one statistics computation.
//
// Every field is derivable from the source collections; the snapshot is a
// cache, not a ledger. A snapshot is superseded wholesale by the next one.
type StatisticsSnapshot struct {
	// TotalTitles is the number of catalog entries.
	TotalTitles int `json:"total_titles"`

	// TotalBooks is the sum of copies over the whole catalog.
	TotalBooks int `json:"total_books"`

	// AvailableBooks is max(0, TotalBooks - BorrowedBooks - ReservedBooks).
	AvailableBooks int `json:"available_books"`

	// BorrowedBooks is the number of accepted, unreturned loans.
	BorrowedBooks int `json:"borrowed_books"`

	// ReservedBooks is the number of pending loan requests.
	ReservedBooks int `json:"reserved_books"`

	// PendingReturn is the number of borrowed books not yet overdue.
	PendingReturn int `json:"pending_return"`

	// LateReturn is the number of borrowed books past their deadline.
	LateReturn int `json:"late_return"`

	// ReturnedBooks is the number of loans that have been returned.
	ReturnedBooks int `json:"returned_books"`

	// NewRegistrations is the number of accounts created in the current
	// calendar month.
	NewRegistrations int `json:"new_registrations"`

	// AdminCount, LibrarianCount and ReaderCount partition the known users
	// by role. Unknown roles are not counted.
	AdminCount     int `json:"admin_count"`
	LibrarianCount int `json:"librarian_count"`
	ReaderCount    int `json:"reader_count"`

	// LoanOrigin tags the loan-derived counts above as measured or, when
	// the loan sub-fetch failed, estimated from catalog size.
	LoanOrigin DataOrigin `json:"loan_origin"`

	// Genres is the genre distribution, descending by count, ties in
	// first-seen order. Books without a genre are excluded.
	Genres []GenreCount `json:"genres"`

	// Trend is the fixed six-month loan trend ending at the current month.
	Trend []TrendPoint `json:"trend"`

	// TrendOrigin tags the trend series as measured or synthetic.
	TrendOrigin DataOrigin `json:"trend_origin"`

	// RecentActivity is the bounded activity feed, newest first.
	RecentActivity []ActivityEntry `json:"recent_activity"`

	// LastUpdated is the assembly timestamp.
	LastUpdated time.Time `json:"last_updated"`
}
