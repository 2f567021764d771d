package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/biblio-hub/apiserver/internal/services"
	"github.com/biblio-hub/apiserver/internal/storage"
	"github.com/biblio-hub/apiserver/internal/store"
	"github.com/biblio-hub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPage        = 1
	defaultLimit       = 20
	maxLimit           = 100
	maxMultipartMemory = 16 << 20
	maxCoverBytes      = 8 << 20

	formFieldTitle    = "title"
	formFieldAuthor   = "author"
	formFieldGenre    = "genre"
	formFieldISBN     = "isbn"
	formFieldPages    = "page_count"
	formFieldChapters = "chapter_count"
	formFieldCopies   = "total_copies"
	formFieldCover    = "cover"
)

// BookHandler provides HTTP handlers for the catalog.
type BookHandler struct {
	bookService *services.BookService
}

func NewBookHandler(bookService *services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// BookRouter registers catalog routes on the given router. Listing and
// fetching are public; mutations require a librarian or admin.
func BookRouter(
	r chi.Router,
	bookService *services.BookService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewBookHandler(bookService)
	staff := RequireRole(userService, types.RoleAdmin, types.RoleLibrarian)

	r.Get("/", handler.ListBooks)
	r.With(authMiddleware, staff).Post("/", handler.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.Get("/", handler.GetBook)
		r.Get("/cover", handler.GetCover)
		r.With(authMiddleware, staff).Put("/", handler.UpdateBook)
		r.With(authMiddleware, staff).Delete("/", handler.DeleteBook)
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.bookService.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list books")
		return
	}

	writeJSON(w, http.StatusOK, BookListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch book")
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// GetCover streams the stored cover image of a book.
func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, err := h.bookService.Cover(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, storage.ErrNoObject) {
			writeError(w, http.StatusNotFound, "cover not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch cover")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	req, err := parseBookForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.bookService.Create(r.Context(), req.Book, req.Cover)
	if err != nil {
		if errors.Is(err, services.ErrNegativeCopies) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create book")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseBookForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Book.ID = id

	updated, err := h.bookService.Update(r.Context(), req.Book, req.Cover)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "book not found")
		case errors.Is(err, services.ErrNegativeCopies):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to update book")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BookUpsertRequest is the parsed multipart form payload.
type BookUpsertRequest struct {
	Book  types.Book
	Cover *services.CoverUpload
}

// BookListResponse is the paginated list response payload.
type BookListResponse struct {
	Items []types.Book `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseBookID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "bookID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid book id")
	}
	return id, nil
}

func parseBookForm(r *http.Request) (BookUpsertRequest, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return BookUpsertRequest{}, errors.New("invalid multipart form")
	}

	title := strings.TrimSpace(r.FormValue(formFieldTitle))
	if title == "" {
		return BookUpsertRequest{}, errors.New("title is required")
	}

	pages, err := parseOptionalInt(r.FormValue(formFieldPages))
	if err != nil {
		return BookUpsertRequest{}, errors.New("invalid page count")
	}
	chapters, err := parseOptionalInt(r.FormValue(formFieldChapters))
	if err != nil {
		return BookUpsertRequest{}, errors.New("invalid chapter count")
	}
	copies, err := parseOptionalInt(r.FormValue(formFieldCopies))
	if err != nil {
		return BookUpsertRequest{}, errors.New("invalid copy count")
	}

	cover, err := parseCoverFile(r.MultipartForm)
	if err != nil {
		return BookUpsertRequest{}, err
	}

	return BookUpsertRequest{
		Book: types.Book{
			Title:        title,
			Author:       strings.TrimSpace(r.FormValue(formFieldAuthor)),
			Genre:        strings.TrimSpace(r.FormValue(formFieldGenre)),
			ISBN:         strings.TrimSpace(r.FormValue(formFieldISBN)),
			PageCount:    pages,
			ChapterCount: chapters,
			TotalCopies:  copies,
		},
		Cover: cover,
	}, nil
}

func parseOptionalInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// parseCoverFile extracts the optional cover upload. A missing cover field
// is not an error.
func parseCoverFile(form *multipart.Form) (*services.CoverUpload, error) {
	if form == nil {
		return nil, nil
	}

	files := form.File[formFieldCover]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, errors.New("only one cover file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read cover file: %w", err)
	}

	data, err := readFileLimited(file, maxCoverBytes)
	_ = file.Close()
	if err != nil {
		return nil, err
	}

	return &services.CoverUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
