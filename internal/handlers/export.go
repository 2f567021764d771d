package handlers

import (
	"net/http"
	"strings"

	"github.com/biblio-hub/apiserver/internal/export"
	"github.com/biblio-hub/apiserver/internal/services"
	"github.com/biblio-hub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// ExportHandler serves CSV exports of the catalog and accounts.
type ExportHandler struct {
	userService *services.UserService
	bookService *services.BookService
}

func NewExportHandler(userService *services.UserService, bookService *services.BookService) *ExportHandler {
	return &ExportHandler{userService: userService, bookService: bookService}
}

// ExportRouter registers CSV export routes, admin only.
func ExportRouter(
	r chi.Router,
	userService *services.UserService,
	bookService *services.BookService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewExportHandler(userService, bookService)
	admin := RequireRole(userService, types.RoleAdmin)

	r.Use(authMiddleware, admin)
	r.Get("/users.csv", handler.ExportUsers)
	r.Get("/books.csv", handler.ExportBooks)
}

func (h *ExportHandler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	role := types.Role(strings.TrimSpace(r.URL.Query().Get("role")))
	if role != "" && !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	users, err := h.userService.List(r.Context(), role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="users.csv"`)
	w.WriteHeader(http.StatusOK)
	_ = export.WriteUsersCSV(w, users)
}

func (h *ExportHandler) ExportBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.bookService.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list books")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="books.csv"`)
	w.WriteHeader(http.StatusOK)
	_ = export.WriteBooksCSV(w, books)
}
