package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/biblio-hub/apiserver/types"
)

// LoanEventChannel is the broker channel carrying loan lifecycle events.
const LoanEventChannel = "loan.events"

// LoanEventKind names a loan lifecycle transition.
type LoanEventKind string

const (
	LoanRequested LoanEventKind = "loan.requested"
	LoanAccepted  LoanEventKind = "loan.accepted"
	LoanRefused   LoanEventKind = "loan.refused"
	LoanReturned  LoanEventKind = "loan.returned"
)

// LoanEvent is the JSON payload published on each loan transition.
type LoanEvent struct {
	Kind     LoanEventKind `json:"kind"`
	LoanID   int           `json:"loan_id"`
	BookID   int           `json:"book_id"`
	ReaderID string        `json:"reader_id"`
	At       time.Time     `json:"at"`
}

// LoanEvents publishes and consumes loan lifecycle events over a broker.
type LoanEvents struct {
	mq *MQ
}

// NewLoanEvents wraps the broker for loan events.
func NewLoanEvents(broker *MQ) *LoanEvents {
	return &LoanEvents{mq: broker}
}

// Publish sends one loan event.
func (e *LoanEvents) Publish(ctx context.Context, kind LoanEventKind, loan types.Loan) error {
	payload, err := json.Marshal(LoanEvent{
		Kind:     kind,
		LoanID:   loan.ID,
		BookID:   loan.BookID,
		ReaderID: loan.ReaderID,
		At:       time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = e.mq.Publish(ctx, LoanEventChannel, payload, map[string]string{
		"kind":         string(kind),
		"content-type": "application/json",
	})
	return err
}

// Subscribe delivers each loan event to the callback until the context is
// cancelled. Undecodable messages are acknowledged and dropped.
func (e *LoanEvents) Subscribe(ctx context.Context, fn func(context.Context, LoanEvent)) error {
	return e.mq.Subscribe(ctx, LoanEventChannel, func(ctx context.Context, msg Message) error {
		var event LoanEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		fn(ctx, event)
		return nil
	})
}
