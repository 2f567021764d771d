package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/biblio-hub/apiserver/internal/storage"
	"github.com/biblio-hub/apiserver/types"
)

// ErrNegativeCopies is returned when a book carries a negative copy count.
var ErrNegativeCopies = errors.New("total copies must not be negative")

// BookRepository defines persistence operations for catalog entries.
type BookRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Book, int, error)
	ListAll(ctx context.Context) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	SetCoverKey(ctx context.Context, id int, key string) error
	Delete(ctx context.Context, id int) error
}

// CoverUpload is an optional cover image accompanying a create or update.
type CoverUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BookService encapsulates catalog use-cases, including cover-image storage.
// The storage dependency may be nil, in which case covers are unsupported.
type BookService struct {
	repo    BookRepository
	storage *storage.Storage
}

func NewBookService(repo BookRepository, store *storage.Storage) *BookService {
	return &BookService{repo: repo, storage: store}
}

func (s *BookService) List(ctx context.Context, offset, limit int) ([]types.Book, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *BookService) ListAll(ctx context.Context) ([]types.Book, error) {
	return s.repo.ListAll(ctx)
}

func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	return s.repo.Get(ctx, id)
}

func (s *BookService) Create(ctx context.Context, book types.Book, cover *CoverUpload) (types.Book, error) {
	if book.TotalCopies < 0 {
		return types.Book{}, ErrNegativeCopies
	}
	created, err := s.repo.Create(ctx, book)
	if err != nil {
		return types.Book{}, err
	}
	if cover != nil {
		if err := s.putCover(ctx, &created, cover); err != nil {
			return types.Book{}, err
		}
	}
	return created, nil
}

func (s *BookService) Update(ctx context.Context, book types.Book, cover *CoverUpload) (types.Book, error) {
	if book.TotalCopies < 0 {
		return types.Book{}, ErrNegativeCopies
	}
	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		return types.Book{}, err
	}
	if cover != nil {
		if err := s.putCover(ctx, &updated, cover); err != nil {
			return types.Book{}, err
		}
	}
	return updated, nil
}

// Cover opens the stored cover image of a book.
func (s *BookService) Cover(ctx context.Context, id int) (io.ReadCloser, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.storage == nil || book.CoverKey == "" {
		return nil, storage.ErrNoObject
	}
	return s.storage.Get(ctx, book.CoverKey)
}

func (s *BookService) Delete(ctx context.Context, id int) error {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	// Orphaned covers are harmless; removal is best effort.
	if s.storage != nil && book.CoverKey != "" {
		_ = s.storage.Delete(ctx, book.CoverKey)
	}
	return nil
}

func (s *BookService) putCover(ctx context.Context, book *types.Book, cover *CoverUpload) error {
	if s.storage == nil {
		return errors.New("cover storage is not configured")
	}
	ext := strings.ToLower(path.Ext(cover.Filename))
	key := fmt.Sprintf("covers/%d%s", book.ID, ext)
	if err := s.storage.Put(ctx, key, bytes.NewReader(cover.Data), int64(len(cover.Data)), cover.ContentType); err != nil {
		return err
	}
	if err := s.repo.SetCoverKey(ctx, book.ID, key); err != nil {
		return err
	}
	book.CoverKey = key
	return nil
}
