package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/biblio-hub/apiserver/types"
)

// LoanRepository handles persistence for loan requests and loans.
type LoanRepository struct {
	db *sql.DB
}

func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanColumns = `id, book_id, reader_id, status, requested_at, due_at, returned, returned_at, updated_at`

func scanLoan(row interface{ Scan(...any) error }) (types.Loan, error) {
	var loan types.Loan
	var dueAt, returnedAt sql.NullTime
	err := row.Scan(
		&loan.ID,
		&loan.BookID,
		&loan.ReaderID,
		&loan.Status,
		&loan.RequestedAt,
		&dueAt,
		&loan.Returned,
		&returnedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return types.Loan{}, err
	}
	if dueAt.Valid {
		loan.DueAt = &dueAt.Time
	}
	if returnedAt.Valid {
		loan.ReturnedAt = &returnedAt.Time
	}
	return loan, nil
}

func (r *LoanRepository) Get(ctx context.Context, id int) (types.Loan, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1`
	loan, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Loan{}, ErrNotFound
		}
		return types.Loan{}, err
	}
	return loan, nil
}

func (r *LoanRepository) Create(ctx context.Context, loan types.Loan) (types.Loan, error) {
	now := time.Now()
	if loan.RequestedAt.IsZero() {
		loan.RequestedAt = now
	}
	loan.UpdatedAt = now

	const query = `
		INSERT INTO loans (book_id, reader_id, status, requested_at, due_at, returned, returned_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		loan.BookID,
		loan.ReaderID,
		loan.Status,
		loan.RequestedAt,
		loan.DueAt,
		loan.Returned,
		loan.ReturnedAt,
		loan.UpdatedAt,
	).Scan(&loan.ID); err != nil {
		return types.Loan{}, err
	}
	return loan, nil
}

func (r *LoanRepository) Update(ctx context.Context, loan types.Loan) (types.Loan, error) {
	loan.UpdatedAt = time.Now()

	const query = `
		UPDATE loans
		SET status = $1,
			due_at = $2,
			returned = $3,
			returned_at = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		loan.Status,
		loan.DueAt,
		loan.Returned,
		loan.ReturnedAt,
		loan.UpdatedAt,
		loan.ID,
	)
	if err != nil {
		return types.Loan{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Loan{}, err
	}
	if affected == 0 {
		return types.Loan{}, ErrNotFound
	}
	return loan, nil
}

func (r *LoanRepository) list(ctx context.Context, query string, args ...any) ([]types.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := make([]types.Loan, 0)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// ListActive returns accepted, unreturned loans.
func (r *LoanRepository) ListActive(ctx context.Context) ([]types.Loan, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = 'accepted' AND NOT returned
		ORDER BY requested_at DESC`
	return r.list(ctx, query)
}

// ListPending returns loan requests awaiting librarian action.
func (r *LoanRepository) ListPending(ctx context.Context) ([]types.Loan, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = 'pending'
		ORDER BY requested_at`
	return r.list(ctx, query)
}

// ListHistory returns every loan, newest request first.
func (r *LoanRepository) ListHistory(ctx context.Context) ([]types.Loan, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		ORDER BY requested_at DESC`
	return r.list(ctx, query)
}

// ListByReader returns a reader's loans, newest request first.
func (r *LoanRepository) ListByReader(ctx context.Context, readerID string) ([]types.Loan, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE reader_id = $1
		ORDER BY requested_at DESC`
	return r.list(ctx, query, readerID)
}
