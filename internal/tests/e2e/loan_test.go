//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/biblio-hub/apiserver/config"
	"github.com/biblio-hub/apiserver/internal/db"
	"github.com/biblio-hub/apiserver/internal/server"
	"github.com/biblio-hub/apiserver/types"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestLoanLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	stamp := time.Now().UnixNano()
	readerEmail := fmt.Sprintf("reader_%d@example.org", stamp)
	staffEmail := fmt.Sprintf("staff_%d@example.org", stamp)
	password := "testpass123!"

	readerToken, err := registerUser(t, baseURL, readerEmail, password)
	if err != nil {
		t.Fatalf("register reader: %v", err)
	}

	if _, err := registerUser(t, baseURL, staffEmail, password); err != nil {
		t.Fatalf("register staff: %v", err)
	}
	if err := promoteUserToLibrarian(staffEmail); err != nil {
		t.Fatalf("promote staff: %v", err)
	}
	// Tokens encode the role; log in again after the promotion.
	staffToken, err := loginUser(t, baseURL, staffEmail, password)
	if err != nil {
		t.Fatalf("login staff: %v", err)
	}

	book, err := createBook(t, baseURL, staffToken)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if book.ID == 0 || book.TotalCopies != 3 {
		t.Fatalf("unexpected book: %+v", book)
	}

	loan, err := requestLoan(t, baseURL, readerToken, book.ID)
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	if loan.Status != types.LoanPending {
		t.Fatalf("loan status = %q, want pending", loan.Status)
	}

	accepted, err := postLoanAction(t, baseURL, staffToken, loan.ID, "accept")
	if err != nil {
		t.Fatalf("accept loan: %v", err)
	}
	if accepted.Status != types.LoanAccepted || accepted.DueAt == nil {
		t.Fatalf("accepted loan = %+v", accepted)
	}

	snapshot, err := fetchDashboard(t, baseURL, staffToken)
	if err != nil {
		t.Fatalf("fetch dashboard: %v", err)
	}
	if snapshot.BorrowedBooks < 1 {
		t.Fatalf("dashboard borrowed = %d, want >= 1", snapshot.BorrowedBooks)
	}
	if snapshot.LoanOrigin != types.OriginMeasured {
		t.Fatalf("loan origin = %q, want measured", snapshot.LoanOrigin)
	}

	returned, err := postLoanAction(t, baseURL, readerToken, loan.ID, "return")
	if err != nil {
		t.Fatalf("return loan: %v", err)
	}
	if !returned.Returned {
		t.Fatalf("returned loan = %+v", returned)
	}
}

type authResponse struct {
	Token string `json:"token"`
}

func registerUser(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"email":       email,
		"family_name": "Test",
		"given_name":  "User",
		"password":    password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/auth/register", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in register response")
	}
	return parsed.Token, nil
}

func loginUser(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}

func promoteUserToLibrarian(email string) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, "UPDATE users SET role = 'librarian', updated_at = NOW() WHERE email = $1", email)
	return err
}

func createBook(t *testing.T, baseURL, token string) (types.Book, error) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("title", "Dune")
	_ = writer.WriteField("author", "Frank Herbert")
	_ = writer.WriteField("genre", "scifi")
	_ = writer.WriteField("isbn", "9780441172719")
	_ = writer.WriteField("total_copies", "3")
	if err := writer.Close(); err != nil {
		return types.Book{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/books", &body)
	if err != nil {
		return types.Book{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.Book{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return types.Book{}, fmt.Errorf("create book status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed types.Book
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.Book{}, err
	}
	return parsed, nil
}

func requestLoan(t *testing.T, baseURL, token string, bookID int) (types.Loan, error) {
	t.Helper()

	body, err := json.Marshal(map[string]int{"book_id": bookID})
	if err != nil {
		return types.Loan{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/loans", bytes.NewReader(body))
	if err != nil {
		return types.Loan{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.Loan{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return types.Loan{}, fmt.Errorf("request loan status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed types.Loan
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.Loan{}, err
	}
	return parsed, nil
}

func postLoanAction(t *testing.T, baseURL, token string, loanID int, action string) (types.Loan, error) {
	t.Helper()

	url := fmt.Sprintf("%s/loans/%d/%s", baseURL, loanID, action)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return types.Loan{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.Loan{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return types.Loan{}, fmt.Errorf("%s loan status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed types.Loan
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.Loan{}, err
	}
	return parsed, nil
}

func fetchDashboard(t *testing.T, baseURL, token string) (types.StatisticsSnapshot, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/stats/dashboard", nil)
	if err != nil {
		return types.StatisticsSnapshot{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.StatisticsSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return types.StatisticsSnapshot{}, fmt.Errorf("dashboard status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed types.StatisticsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.StatisticsSnapshot{}, err
	}
	return parsed, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, db.PostgresURL(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "bibliohub")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "bibliohub_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	// Keep the snapshot refresh loop off so the dashboard is computed on
	// demand and reflects writes made moments earlier.
	_ = os.Setenv("STATS_REFRESH_SECONDS", "0")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
}
