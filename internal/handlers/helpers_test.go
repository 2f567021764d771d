package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/biblio-hub/apiserver/internal/services"
	"github.com/biblio-hub/apiserver/internal/stats"
	"github.com/biblio-hub/apiserver/internal/store"
	"github.com/biblio-hub/apiserver/types"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type memUserRepo struct {
	nextID int
	users  []types.User
}

func (r *memUserRepo) Get(ctx context.Context, role types.Role, id string) (types.User, error) {
	for _, user := range r.users {
		if user.Role == role && user.ID == id {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) List(ctx context.Context, role types.Role) ([]types.User, error) {
	if role == "" {
		return r.users, nil
	}
	users := make([]types.User, 0)
	for _, user := range r.users {
		if user.Role == role {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.nextID++
	user.ID = strconv.Itoa(r.nextID)
	user.CreatedAt = time.Now()
	r.users = append(r.users, user)
	return user, nil
}

func (r *memUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	for i, existing := range r.users {
		if existing.Role == user.Role && existing.ID == user.ID {
			r.users[i] = user
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Delete(ctx context.Context, role types.Role, id string) error {
	for i, existing := range r.users {
		if existing.Role == role && existing.ID == id {
			r.users = append(r.users[:i], r.users[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type memBookRepo struct {
	nextID int
	books  map[int]types.Book
}

func newMemBookRepo() *memBookRepo {
	return &memBookRepo{nextID: 0, books: make(map[int]types.Book)}
}

func (r *memBookRepo) List(ctx context.Context, offset, limit int) ([]types.Book, int, error) {
	all, _ := r.ListAll(ctx)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (r *memBookRepo) ListAll(ctx context.Context) ([]types.Book, error) {
	books := make([]types.Book, 0, len(r.books))
	for id := 1; id <= r.nextID; id++ {
		if book, ok := r.books[id]; ok {
			books = append(books, book)
		}
	}
	return books, nil
}

func (r *memBookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	book, ok := r.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (r *memBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	r.nextID++
	book.ID = r.nextID
	r.books[book.ID] = book
	return book, nil
}

func (r *memBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	if _, ok := r.books[book.ID]; !ok {
		return types.Book{}, store.ErrNotFound
	}
	r.books[book.ID] = book
	return book, nil
}

func (r *memBookRepo) SetCoverKey(ctx context.Context, id int, key string) error {
	book, ok := r.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.CoverKey = key
	r.books[id] = book
	return nil
}

func (r *memBookRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.books[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.books, id)
	return nil
}

type memLoanRepo struct {
	nextID int
	loans  map[int]types.Loan
}

func newMemLoanRepo() *memLoanRepo {
	return &memLoanRepo{loans: make(map[int]types.Loan)}
}

func (r *memLoanRepo) Get(ctx context.Context, id int) (types.Loan, error) {
	loan, ok := r.loans[id]
	if !ok {
		return types.Loan{}, store.ErrNotFound
	}
	return loan, nil
}

func (r *memLoanRepo) Create(ctx context.Context, loan types.Loan) (types.Loan, error) {
	r.nextID++
	loan.ID = r.nextID
	r.loans[loan.ID] = loan
	return loan, nil
}

func (r *memLoanRepo) Update(ctx context.Context, loan types.Loan) (types.Loan, error) {
	if _, ok := r.loans[loan.ID]; !ok {
		return types.Loan{}, store.ErrNotFound
	}
	r.loans[loan.ID] = loan
	return loan, nil
}

func (r *memLoanRepo) filter(keep func(types.Loan) bool) []types.Loan {
	loans := make([]types.Loan, 0)
	for id := 1; id <= r.nextID; id++ {
		loan, ok := r.loans[id]
		if ok && keep(loan) {
			loans = append(loans, loan)
		}
	}
	return loans
}

func (r *memLoanRepo) ListActive(ctx context.Context) ([]types.Loan, error) {
	return r.filter(func(l types.Loan) bool {
		return l.Status == types.LoanAccepted && !l.Returned
	}), nil
}

func (r *memLoanRepo) ListPending(ctx context.Context) ([]types.Loan, error) {
	return r.filter(func(l types.Loan) bool { return l.Status == types.LoanPending }), nil
}

func (r *memLoanRepo) ListHistory(ctx context.Context) ([]types.Loan, error) {
	return r.filter(func(types.Loan) bool { return true }), nil
}

func (r *memLoanRepo) ListByReader(ctx context.Context, readerID string) ([]types.Loan, error) {
	return r.filter(func(l types.Loan) bool { return l.ReaderID == readerID }), nil
}

type testEnv struct {
	server   *httptest.Server
	userRepo *memUserRepo
	bookRepo *memBookRepo
	loanRepo *memLoanRepo
}

// newTestEnv wires the full route tree against in-memory repositories.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userRepo := &memUserRepo{}
	bookRepo := newMemBookRepo()
	loanRepo := newMemLoanRepo()

	userService := services.NewUserService(userRepo)
	bookService := services.NewBookService(bookRepo, nil)
	loanService := services.NewLoanService(loanRepo, bookRepo, nil, nil)
	statsService := stats.NewService(services.StoreSources(userRepo, bookRepo, loanRepo), nil)

	authMiddleware := RequireAuth(testSecret)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, testSecret)
	})
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, userService, authMiddleware)
	})
	router.Route("/books", func(r chi.Router) {
		BookRouter(r, bookService, userService, authMiddleware)
	})
	router.Route("/loans", func(r chi.Router) {
		LoanRouter(r, loanService, userService, authMiddleware)
	})
	router.Route("/stats", func(r chi.Router) {
		StatsRouter(r, statsService, userService, authMiddleware)
	})
	router.Route("/exports", func(r chi.Router) {
		ExportRouter(r, userService, bookService, authMiddleware)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		server:   server,
		userRepo: userRepo,
		bookRepo: bookRepo,
		loanRepo: loanRepo,
	}
}

// seedUser creates an account directly in the repository and returns a
// bearer token for it.
func (e *testEnv) seedUser(t *testing.T, role types.Role, email string) (types.User, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := e.userRepo.Create(context.Background(), types.User{
		Role:         role,
		FamilyName:   "Test",
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	token, err := issueToken(user, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user, token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var value T
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return value
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}
