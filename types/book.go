package types

import "time"

// Book represents a catalog entry.
//
// Availability is always derived from loans and reservations; it is never
// stored on the book itself.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the book title.
	Title string `json:"title" db:"title"`

	// Author is the book author. It may be empty.
	Author string `json:"author,omitempty" db:"author"`

	// Genre classifies the book. It may be empty, in which case the book
	// does not participate in the genre distribution.
	Genre string `json:"genre,omitempty" db:"genre"`

	// ISBN is the book's ISBN.
	ISBN string `json:"isbn" db:"isbn"`

	// PageCount is the number of pages, when known.
	PageCount int `json:"page_count,omitempty" db:"page_count"`

	// ChapterCount is the number of chapters, when known.
	ChapterCount int `json:"chapter_count,omitempty" db:"chapter_count"`

	// TotalCopies is the number of physical copies owned. Never negative.
	TotalCopies int `json:"total_copies" db:"total_copies"`

	// CoverKey is the object-storage key of the cover image, when one has
	// been uploaded. This field is not part of API payloads; clients fetch
	// covers through the cover endpoint.
	CoverKey string `json:"-" db:"cover_key"`

	// CreatedAt is the timestamp when the book was added to the catalog.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
