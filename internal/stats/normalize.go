package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/biblio-hub/apiserver/types"
)

// Normalizer maps raw upstream records of variable shape into the canonical
// entity types. Every method is total: unparseable or missing fields
// normalize to the zero value for their kind, never to an error.
type Normalizer struct {
	now func() time.Time
	seq atomic.Uint64
}

// NewNormalizer constructs a Normalizer using the real clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewNormalizerAt constructs a Normalizer with an injected clock.
func NewNormalizerAt(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Per-role identifier aliases observed across the upstream directory
// services, tried in order before the generic aliases.
var roleIDFields = map[types.Role][]string{
	types.RoleAdmin:     {"adminId", "admin_id", "id_admin"},
	types.RoleLibrarian: {"librarianId", "librarian_id", "id_bibliothecaire"},
	types.RoleReader:    {"readerId", "reader_id", "id_lecteur"},
}

var genericIDFields = []string{"userId", "user_id", "id", "_id"}

// User normalizes a raw directory record into a User of the given role.
//
// When no known id field is present, a temporary time-based id is
// synthesized rather than failing the batch; the second return value
// reports this. Synthetic ids are a known data-quality gap: they keep the
// dashboard alive but can mask duplicate-user bugs upstream.
func (n *Normalizer) User(rec RawRecord, role types.Role) (types.User, bool) {
	fields := append(append([]string{}, roleIDFields[role]...), genericIDFields...)
	id := stringField(rec, fields...)

	synthetic := false
	if id == "" {
		id = fmt.Sprintf("tmp-%d-%d", n.now().UnixNano(), n.seq.Add(1))
		synthetic = true
	}

	createdAt, ok := timeField(rec, "createdAt", "created_at", "dateCreation", "date_creation")
	if !ok {
		// Default to "now" so the record stays sortable. This is a display
		// compromise, not a data-integrity claim.
		createdAt = n.now()
	}

	return types.User{
		ID:         id,
		Role:       role,
		FamilyName: stringField(rec, "familyName", "family_name", "lastName", "last_name", "nom"),
		GivenName:  stringField(rec, "givenName", "given_name", "firstName", "first_name", "prenom"),
		Email:      stringField(rec, "email", "mail"),
		BirthDate:  stringField(rec, "birthDate", "birth_date", "dateNaissance", "date_naissance"),
		CreatedAt:  createdAt,
	}, synthetic
}

// Book normalizes a raw catalog record.
func (n *Normalizer) Book(rec RawRecord) types.Book {
	copies := intField(rec, "totalCopies", "total_copies", "copies", "nbExemplaires", "nb_exemplaires")
	if copies < 0 {
		copies = 0
	}
	createdAt, _ := timeField(rec, "createdAt", "created_at")
	return types.Book{
		ID:           intField(rec, "id", "_id", "bookId", "book_id", "id_livre"),
		Title:        stringField(rec, "title", "titre"),
		Author:       stringField(rec, "author", "auteur"),
		Genre:        stringField(rec, "genre"),
		ISBN:         stringField(rec, "isbn"),
		PageCount:    intField(rec, "pageCount", "page_count", "nbPages", "nb_pages"),
		ChapterCount: intField(rec, "chapterCount", "chapter_count", "nbChapitres", "nb_chapitres"),
		TotalCopies:  copies,
		CreatedAt:    createdAt,
	}
}

// Loan normalizes a raw loan-like record from the loan service. Records
// missing a requested-at timestamp get "now" so they remain sortable.
func (n *Normalizer) Loan(rec RawRecord) types.Loan {
	requestedAt, ok := timeField(rec, "requestedAt", "requested_at", "dateEmprunt", "date_emprunt", "createdAt", "created_at")
	if !ok {
		requestedAt = n.now()
	}

	loan := types.Loan{
		ID:          intField(rec, "id", "_id", "loanId", "loan_id", "id_emprunt"),
		BookID:      intField(rec, "bookId", "book_id", "livreId", "id_livre"),
		ReaderID:    stringField(rec, "readerId", "reader_id", "userId", "user_id", "id_lecteur"),
		Status:      loanStatus(stringField(rec, "status", "statut")),
		RequestedAt: requestedAt,
		Returned:    boolField(rec, "returned", "rendu"),
	}
	if due, ok := timeField(rec, "dueAt", "due_at", "dateRetour", "date_retour"); ok {
		loan.DueAt = &due
	}
	if back, ok := timeField(rec, "returnedAt", "returned_at", "dateRendu", "date_rendu"); ok {
		loan.ReturnedAt = &back
	}
	return loan
}

func loanStatus(raw string) types.LoanStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted", "accepte", "accepté", "valide", "validé":
		return types.LoanAccepted
	case "refused", "rejected", "refuse", "refusé":
		return types.LoanRefused
	default:
		return types.LoanPending
	}
}

func stringField(rec RawRecord, keys ...string) string {
	for _, key := range keys {
		value, ok := rec[key]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case string:
			if s := strings.TrimSpace(typed); s != "" {
				return s
			}
		case json.Number:
			return typed.String()
		case float64:
			if typed == math.Trunc(typed) {
				return strconv.FormatInt(int64(typed), 10)
			}
			return strconv.FormatFloat(typed, 'f', -1, 64)
		case int:
			return strconv.Itoa(typed)
		case int64:
			return strconv.FormatInt(typed, 10)
		case bool:
			return strconv.FormatBool(typed)
		}
	}
	return ""
}

func intField(rec RawRecord, keys ...string) int {
	for _, key := range keys {
		value, ok := rec[key]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case float64:
			return int(typed)
		case int:
			return typed
		case int64:
			return int(typed)
		case json.Number:
			if parsed, err := typed.Int64(); err == nil {
				return int(parsed)
			}
		case string:
			if parsed, err := strconv.Atoi(strings.TrimSpace(typed)); err == nil {
				return parsed
			}
		}
	}
	return 0
}

func boolField(rec RawRecord, keys ...string) bool {
	for _, key := range keys {
		value, ok := rec[key]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case bool:
			return typed
		case string:
			switch strings.ToLower(strings.TrimSpace(typed)) {
			case "true", "1", "yes":
				return true
			case "false", "0", "no":
				return false
			}
		case float64:
			return typed != 0
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeField(rec RawRecord, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		value, ok := rec[key]
		if !ok || value == nil {
			continue
		}
		raw, ok := value.(string)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
