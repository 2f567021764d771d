package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/biblio-hub/apiserver/types"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// subjectFromContext recovers the (role, id) pair injected by the auth
// middleware. Subjects are encoded "role:id" because ids are only unique
// within a role partition.
func subjectFromContext(ctx context.Context) (types.Role, string, error) {
	raw, _ := ctx.Value(contextSubjectKey).(string)
	rolePart, idPart, found := strings.Cut(raw, ":")
	if !found {
		return "", "", errors.New("missing subject")
	}
	role := types.Role(rolePart)
	id := strings.TrimSpace(idPart)
	if !role.Valid() || id == "" {
		return "", "", errors.New("invalid subject")
	}
	return role, id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
