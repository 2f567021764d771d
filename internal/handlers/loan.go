package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/biblio-hub/apiserver/internal/services"
	"github.com/biblio-hub/apiserver/internal/store"
	"github.com/biblio-hub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// LoanHandler provides loan lifecycle handlers.
type LoanHandler struct {
	loanService *services.LoanService
}

func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// LoanRouter registers loan routes. Readers request and return their own
// loans; librarians and admins review requests and see all listings.
func LoanRouter(
	r chi.Router,
	loanService *services.LoanService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewLoanHandler(loanService)
	staff := RequireRole(userService, types.RoleAdmin, types.RoleLibrarian)
	reader := RequireRole(userService, types.RoleReader)

	r.Use(authMiddleware)
	r.With(reader).Post("/", handler.RequestLoan)
	r.With(reader).Get("/mine", handler.ListMyLoans)
	r.With(staff).Get("/", handler.ListActiveLoans)
	r.With(staff).Get("/pending", handler.ListPendingLoans)
	r.With(staff).Get("/history", handler.ListLoanHistory)
	r.Route("/{loanID}", func(r chi.Router) {
		r.With(staff).Post("/accept", handler.AcceptLoan)
		r.With(staff).Post("/refuse", handler.RefuseLoan)
		r.Post("/return", handler.ReturnLoan)
	})
}

func (h *LoanHandler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	_, readerID, err := subjectFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token subject")
		return
	}

	var req LoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID < 1 {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	loan, err := h.loanService.Request(r.Context(), readerID, req.BookID, req.DueAt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to request loan")
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (h *LoanHandler) AcceptLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := h.loanService.Accept(r.Context(), id)
	if err != nil {
		writeLoanError(w, err, "failed to accept loan")
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) RefuseLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := h.loanService.Refuse(r.Context(), id)
	if err != nil {
		writeLoanError(w, err, "failed to refuse loan")
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	role, subjectID, err := subjectFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token subject")
		return
	}

	// Staff may return any loan, readers only their own.
	readerID := subjectID
	if role == types.RoleAdmin || role == types.RoleLibrarian {
		readerID = ""
	}

	loan, err := h.loanService.Return(r.Context(), id, readerID)
	if err != nil {
		if errors.Is(err, services.ErrNotLoanOwner) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeLoanError(w, err, "failed to return loan")
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) ListActiveLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loanService.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list loans")
		return
	}
	writeJSON(w, http.StatusOK, LoanListResponse{Items: loans, Total: len(loans)})
}

func (h *LoanHandler) ListPendingLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loanService.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list loans")
		return
	}
	writeJSON(w, http.StatusOK, LoanListResponse{Items: loans, Total: len(loans)})
}

func (h *LoanHandler) ListLoanHistory(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loanService.ListHistory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list loans")
		return
	}
	writeJSON(w, http.StatusOK, LoanListResponse{Items: loans, Total: len(loans)})
}

func (h *LoanHandler) ListMyLoans(w http.ResponseWriter, r *http.Request) {
	_, readerID, err := subjectFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token subject")
		return
	}

	loans, err := h.loanService.ListByReader(r.Context(), readerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list loans")
		return
	}
	writeJSON(w, http.StatusOK, LoanListResponse{Items: loans, Total: len(loans)})
}

// LoanRequest is the loan creation payload.
type LoanRequest struct {
	BookID int        `json:"book_id"`
	DueAt  *time.Time `json:"due_at,omitempty"`
}

// LoanListResponse is the loan list payload.
type LoanListResponse struct {
	Items []types.Loan `json:"items"`
	Total int          `json:"total"`
}

func parseLoanID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "loanID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid loan id")
	}
	return id, nil
}

func writeLoanError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "loan not found")
	case errors.Is(err, services.ErrNotPending),
		errors.Is(err, services.ErrNotBorrowed),
		errors.Is(err, services.ErrAlreadyReturned):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
