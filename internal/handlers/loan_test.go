package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/biblio-hub/apiserver/types"
)

func TestLoanWorkflowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	_, readerToken := env.seedUser(t, types.RoleReader, "reader@example.org")
	_, staffToken := env.seedUser(t, types.RoleLibrarian, "staff@example.org")

	book, err := env.bookRepo.Create(context.Background(), types.Book{Title: "Dune", TotalCopies: 2})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}

	// Reader files the request.
	resp := env.request(t, http.MethodPost, "/loans/", readerToken, LoanRequest{BookID: book.ID})
	requireStatus(t, resp, http.StatusCreated)
	loan := decodeBody[types.Loan](t, resp)
	if loan.Status != types.LoanPending {
		t.Fatalf("status = %q, want pending", loan.Status)
	}

	// Staff sees it pending and accepts.
	resp = env.request(t, http.MethodGet, "/loans/pending", staffToken, nil)
	requireStatus(t, resp, http.StatusOK)
	pending := decodeBody[LoanListResponse](t, resp)
	if pending.Total != 1 {
		t.Fatalf("pending = %d, want 1", pending.Total)
	}

	resp = env.request(t, http.MethodPost, "/loans/1/accept", staffToken, nil)
	requireStatus(t, resp, http.StatusOK)
	accepted := decodeBody[types.Loan](t, resp)
	if accepted.Status != types.LoanAccepted || accepted.DueAt == nil {
		t.Fatalf("accepted = %+v", accepted)
	}

	// Reader returns it.
	resp = env.request(t, http.MethodPost, "/loans/1/return", readerToken, nil)
	requireStatus(t, resp, http.StatusOK)
	returned := decodeBody[types.Loan](t, resp)
	if !returned.Returned {
		t.Fatalf("returned = %+v", returned)
	}

	// Second return conflicts.
	resp = env.request(t, http.MethodPost, "/loans/1/return", readerToken, nil)
	requireStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
}

func TestLoanRoleGuards(t *testing.T) {
	env := newTestEnv(t)
	_, readerToken := env.seedUser(t, types.RoleReader, "reader@example.org")
	_, staffToken := env.seedUser(t, types.RoleLibrarian, "staff@example.org")

	// Staff do not file loan requests.
	resp := env.request(t, http.MethodPost, "/loans/", staffToken, LoanRequest{BookID: 1})
	requireStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// Readers do not review them.
	resp = env.request(t, http.MethodPost, "/loans/1/accept", readerToken, nil)
	requireStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/loans/history", readerToken, nil)
	requireStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestLoanReturnOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.seedUser(t, types.RoleReader, "owner@example.org")
	_, otherToken := env.seedUser(t, types.RoleReader, "other@example.org")
	_, staffToken := env.seedUser(t, types.RoleLibrarian, "staff@example.org")

	book, err := env.bookRepo.Create(context.Background(), types.Book{Title: "Dune", TotalCopies: 1})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
	loan, err := env.loanRepo.Create(context.Background(), types.Loan{
		BookID:   book.ID,
		ReaderID: owner.ID,
		Status:   types.LoanAccepted,
	})
	if err != nil {
		t.Fatalf("seed loan: %v", err)
	}

	resp := env.request(t, http.MethodPost, "/loans/1/return", otherToken, nil)
	requireStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// Staff may return on the reader's behalf.
	resp = env.request(t, http.MethodPost, "/loans/1/return", staffToken, nil)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	got, err := env.loanRepo.Get(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if !got.Returned {
		t.Fatalf("loan not marked returned: %+v", got)
	}
}

func TestLoanRequestUnknownBookOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	_, readerToken := env.seedUser(t, types.RoleReader, "reader@example.org")

	resp := env.request(t, http.MethodPost, "/loans/", readerToken, LoanRequest{BookID: 99})
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestListMyLoans(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.seedUser(t, types.RoleReader, "owner@example.org")
	other, _ := env.seedUser(t, types.RoleReader, "other@example.org")

	ctx := context.Background()
	book, err := env.bookRepo.Create(ctx, types.Book{Title: "Dune", TotalCopies: 2})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
	for _, readerID := range []string{owner.ID, other.ID} {
		if _, err := env.loanRepo.Create(ctx, types.Loan{
			BookID:   book.ID,
			ReaderID: readerID,
			Status:   types.LoanPending,
		}); err != nil {
			t.Fatalf("seed loan: %v", err)
		}
	}

	resp := env.request(t, http.MethodGet, "/loans/mine", ownerToken, nil)
	requireStatus(t, resp, http.StatusOK)
	mine := decodeBody[LoanListResponse](t, resp)
	if mine.Total != 1 || mine.Items[0].ReaderID != owner.ID {
		t.Fatalf("mine = %+v", mine)
	}
}
