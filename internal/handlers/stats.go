package handlers

import (
	"errors"
	"net/http"

	"github.com/biblio-hub/apiserver/internal/services"
	"github.com/biblio-hub/apiserver/internal/stats"
	"github.com/biblio-hub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// StatsHandler serves dashboard statistics snapshots.
type StatsHandler struct {
	statsService *stats.Service
}

func NewStatsHandler(statsService *stats.Service) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// StatsRouter registers statistics routes. The dashboard is staff only;
// a forced refresh is admin only.
func StatsRouter(
	r chi.Router,
	statsService *stats.Service,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewStatsHandler(statsService)
	staff := RequireRole(userService, types.RoleAdmin, types.RoleLibrarian)
	admin := RequireRole(userService, types.RoleAdmin)

	r.Use(authMiddleware)
	r.With(staff).Get("/dashboard", handler.Dashboard)
	r.With(admin).Post("/refresh", handler.Refresh)
}

func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.statsService.Latest(r.Context())
	if err != nil {
		if errors.Is(err, stats.ErrBooksUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "book collection unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *StatsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.statsService.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, stats.ErrBooksUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "book collection unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}
