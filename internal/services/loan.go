package services

import (
	"context"
	"errors"
	"time"

	"github.com/biblio-hub/apiserver/internal/mq"
	"github.com/biblio-hub/apiserver/types"
	"go.uber.org/zap"
)

// Loan workflow errors.
var (
	ErrNotPending      = errors.New("loan is not pending")
	ErrNotBorrowed     = errors.New("loan is not an accepted, unreturned loan")
	ErrAlreadyReturned = errors.New("loan already returned")
	ErrNotLoanOwner    = errors.New("loan belongs to another reader")
)

// defaultLoanPeriod is the deadline applied on acceptance when the request
// did not name one.
const defaultLoanPeriod = 14 * 24 * time.Hour

// LoanRepository defines persistence operations for loans.
type LoanRepository interface {
	Get(ctx context.Context, id int) (types.Loan, error)
	Create(ctx context.Context, loan types.Loan) (types.Loan, error)
	Update(ctx context.Context, loan types.Loan) (types.Loan, error)
	ListActive(ctx context.Context) ([]types.Loan, error)
	ListPending(ctx context.Context) ([]types.Loan, error)
	ListHistory(ctx context.Context) ([]types.Loan, error)
	ListByReader(ctx context.Context, readerID string) ([]types.Loan, error)
}

// LoanService drives the loan-request workflow: request, accept or refuse,
// return. Each transition publishes a loan event when a broker is wired;
// publication failures are logged, never surfaced to the caller.
type LoanService struct {
	repo   LoanRepository
	books  BookRepository
	events *mq.LoanEvents
	log    *zap.Logger
}

func NewLoanService(repo LoanRepository, books BookRepository, events *mq.LoanEvents, log *zap.Logger) *LoanService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoanService{repo: repo, books: books, events: events, log: log}
}

// Request files a pending loan request for a reader.
func (s *LoanService) Request(ctx context.Context, readerID string, bookID int, dueAt *time.Time) (types.Loan, error) {
	if _, err := s.books.Get(ctx, bookID); err != nil {
		return types.Loan{}, err
	}

	loan, err := s.repo.Create(ctx, types.Loan{
		BookID:      bookID,
		ReaderID:    readerID,
		Status:      types.LoanPending,
		RequestedAt: time.Now(),
		DueAt:       dueAt,
	})
	if err != nil {
		return types.Loan{}, err
	}
	s.publish(ctx, mq.LoanRequested, loan)
	return loan, nil
}

// Accept approves a pending request, setting the default deadline when the
// request named none.
func (s *LoanService) Accept(ctx context.Context, id int) (types.Loan, error) {
	loan, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Loan{}, err
	}
	if loan.Status != types.LoanPending {
		return types.Loan{}, ErrNotPending
	}

	loan.Status = types.LoanAccepted
	if loan.DueAt == nil {
		due := time.Now().Add(defaultLoanPeriod)
		loan.DueAt = &due
	}
	updated, err := s.repo.Update(ctx, loan)
	if err != nil {
		return types.Loan{}, err
	}
	s.publish(ctx, mq.LoanAccepted, updated)
	return updated, nil
}

// Refuse rejects a pending request.
func (s *LoanService) Refuse(ctx context.Context, id int) (types.Loan, error) {
	loan, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Loan{}, err
	}
	if loan.Status != types.LoanPending {
		return types.Loan{}, ErrNotPending
	}

	loan.Status = types.LoanRefused
	updated, err := s.repo.Update(ctx, loan)
	if err != nil {
		return types.Loan{}, err
	}
	s.publish(ctx, mq.LoanRefused, updated)
	return updated, nil
}

// Return flips the returned flag, exactly once, on an accepted loan. When
// readerID is non-empty the loan must belong to that reader.
func (s *LoanService) Return(ctx context.Context, id int, readerID string) (types.Loan, error) {
	loan, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Loan{}, err
	}
	if readerID != "" && loan.ReaderID != readerID {
		return types.Loan{}, ErrNotLoanOwner
	}
	if loan.Returned {
		return types.Loan{}, ErrAlreadyReturned
	}
	if loan.Status != types.LoanAccepted {
		return types.Loan{}, ErrNotBorrowed
	}

	now := time.Now()
	loan.Returned = true
	loan.ReturnedAt = &now
	updated, err := s.repo.Update(ctx, loan)
	if err != nil {
		return types.Loan{}, err
	}
	s.publish(ctx, mq.LoanReturned, updated)
	return updated, nil
}

func (s *LoanService) Get(ctx context.Context, id int) (types.Loan, error) {
	return s.repo.Get(ctx, id)
}

func (s *LoanService) ListActive(ctx context.Context) ([]types.Loan, error) {
	return s.repo.ListActive(ctx)
}

func (s *LoanService) ListPending(ctx context.Context) ([]types.Loan, error) {
	return s.repo.ListPending(ctx)
}

func (s *LoanService) ListHistory(ctx context.Context) ([]types.Loan, error) {
	return s.repo.ListHistory(ctx)
}

func (s *LoanService) ListByReader(ctx context.Context, readerID string) ([]types.Loan, error) {
	return s.repo.ListByReader(ctx, readerID)
}

func (s *LoanService) publish(ctx context.Context, kind mq.LoanEventKind, loan types.Loan) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, kind, loan); err != nil {
		s.log.Warn("loan event publication failed",
			zap.String("kind", string(kind)),
			zap.Int("loan_id", loan.ID),
			zap.Error(err))
	}
}
