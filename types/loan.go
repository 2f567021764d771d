package types

import "time"

// LoanStatus is the moderation state of a loan request.
type LoanStatus string

// Loan lifecycle states. A loan is created pending by a reader's request and
// moves to accepted or refused by librarian action.
const (
	LoanPending  LoanStatus = "pending"
	LoanAccepted LoanStatus = "accepted"
	LoanRefused  LoanStatus = "refused"
)

// Valid reports whether the status is one of the known states.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanPending, LoanAccepted, LoanRefused:
		return true
	}
	return false
}

// Loan represents a loan request and, once accepted, the loan itself.
//
// Returned flips to true at most once, and only after the loan has been
// accepted.
type Loan struct {
	// ID is the unique identifier of the loan.
	ID int `json:"id" db:"id"`

	// BookID identifies the borrowed book.
	BookID int `json:"book_id" db:"book_id"`

	// ReaderID identifies the reader who requested the loan. Reader IDs
	// live in the reader role partition.
	ReaderID string `json:"reader_id" db:"reader_id"`

	// Status is the moderation state of the request.
	Status LoanStatus `json:"status" db:"status"`

	// RequestedAt is the timestamp when the reader filed the request.
	RequestedAt time.Time `json:"requested_at" db:"requested_at"`

	// DueAt is the return deadline set on acceptance. A loan with no DueAt
	// is never considered late.
	DueAt *time.Time `json:"due_at,omitempty" db:"due_at"`

	// Returned reports whether the book has come back.
	Returned bool `json:"returned" db:"returned"`

	// ReturnedAt is the timestamp of the return, when Returned is true.
	ReturnedAt *time.Time `json:"returned_at,omitempty" db:"returned_at"`

	// UpdatedAt is the timestamp of the most recent lifecycle transition.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Late reports whether the loan is overdue at the given instant. A returned
// loan is never late, regardless of its deadline.
func (l Loan) Late(now time.Time) bool {
	return l.DueAt != nil && l.DueAt.Before(now) && !l.Returned
}
