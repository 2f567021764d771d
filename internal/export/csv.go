// Package export renders collections as CSV for download.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/biblio-hub/apiserver/types"
)

var userHeader = []string{"id", "family_name", "given_name", "email", "role", "birth_date", "created_at"}

var bookHeader = []string{"id", "title", "author", "isbn", "genre", "pages", "chapters", "copies"}

// WriteUsersCSV writes the user list as comma-delimited CSV with a header
// row, one row per record.
func WriteUsersCSV(w io.Writer, users []types.User) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(userHeader); err != nil {
		return err
	}
	for _, user := range users {
		row := []string{
			user.ID,
			user.FamilyName,
			user.GivenName,
			user.Email,
			string(user.Role),
			user.BirthDate,
			formatTime(user.CreatedAt),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBooksCSV writes the catalog as comma-delimited CSV with a header
// row, one row per record.
func WriteBooksCSV(w io.Writer, books []types.Book) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(bookHeader); err != nil {
		return err
	}
	for _, book := range books {
		row := []string{
			strconv.Itoa(book.ID),
			book.Title,
			book.Author,
			book.ISBN,
			book.Genre,
			strconv.Itoa(book.PageCount),
			strconv.Itoa(book.ChapterCount),
			strconv.Itoa(book.TotalCopies),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
