package stats

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/biblio-hub/apiserver/types"
)

func testCatalog() Source {
	return staticSource(
		RawRecord{"id": 1.0, "title": "Dune", "genre": "scifi", "totalCopies": 4.0},
		RawRecord{"id": 2.0, "title": "Hyperion", "genre": "scifi", "totalCopies": 3.0},
		RawRecord{"id": 3.0, "title": "Ficciones", "genre": "fiction", "totalCopies": 3.0},
	)
}

func TestComputeFailsWithoutBooks(t *testing.T) {
	service := NewServiceAt(Sources{
		Books: failingSource(errors.New("catalog down")),
	}, nil, fixedClock)

	_, err := service.Compute(context.Background())
	if !errors.Is(err, ErrBooksUnavailable) {
		t.Fatalf("err = %v, want ErrBooksUnavailable", err)
	}
}

func TestComputeKeepsHealthyRolePartitions(t *testing.T) {
	service := NewServiceAt(Sources{
		Books:   testCatalog(),
		Admins:  staticSource(RawRecord{"adminId": "a1"}),
		Readers: failingSource(errors.New("directory down")),
		Librarians: staticSource(
			RawRecord{"librarianId": "b1"},
			RawRecord{"librarianId": "b2"},
		),
	}, nil, fixedClock)

	snapshot, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snapshot.AdminCount != 1 || snapshot.LibrarianCount != 2 {
		t.Fatalf("counts = %d/%d, want 1/2", snapshot.AdminCount, snapshot.LibrarianCount)
	}
	if snapshot.ReaderCount != 0 {
		t.Fatalf("reader count = %d, want 0 for failed partition", snapshot.ReaderCount)
	}
}

func TestComputeAllDirectoriesDown(t *testing.T) {
	down := errors.New("directory down")
	service := NewServiceAt(Sources{
		Books:      testCatalog(),
		Admins:     failingSource(down),
		Librarians: failingSource(down),
		Readers:    failingSource(down),
	}, nil, fixedClock)

	snapshot, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snapshot.AdminCount != 0 || snapshot.LibrarianCount != 0 || snapshot.ReaderCount != 0 {
		t.Fatalf("user counts nonzero with every directory down: %+v", snapshot)
	}
	if snapshot.TotalTitles != 3 {
		t.Fatalf("total titles = %d, want 3", snapshot.TotalTitles)
	}
}

func TestComputeMeasuredLoans(t *testing.T) {
	service := NewServiceAt(Sources{
		Books: testCatalog(),
		Loans: staticSource(
			RawRecord{"id": 1.0, "bookId": 1.0, "status": "accepted", "requestedAt": "2025-06-02T10:00:00Z"},
			RawRecord{"id": 2.0, "bookId": 2.0, "status": "accepted", "requestedAt": "2025-06-03T10:00:00Z"},
		),
		Requests: staticSource(
			RawRecord{"id": 3.0, "bookId": 3.0, "status": "pending", "requestedAt": "2025-06-10T10:00:00Z"},
		),
	}, nil, fixedClock)

	snapshot, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snapshot.LoanOrigin != types.OriginMeasured {
		t.Fatalf("loan origin = %q, want measured", snapshot.LoanOrigin)
	}
	if snapshot.BorrowedBooks != 2 || snapshot.ReservedBooks != 1 {
		t.Fatalf("borrowed/reserved = %d/%d, want 2/1", snapshot.BorrowedBooks, snapshot.ReservedBooks)
	}
	// 10 copies, 2 borrowed, 1 reserved.
	if snapshot.AvailableBooks != 7 {
		t.Fatalf("available = %d, want 7", snapshot.AvailableBooks)
	}
	if snapshot.TrendOrigin != types.OriginMeasured {
		t.Fatalf("trend origin = %q, want measured", snapshot.TrendOrigin)
	}
	if len(snapshot.Trend) != trendMonths {
		t.Fatalf("trend length = %d, want %d", len(snapshot.Trend), trendMonths)
	}
	if current := snapshot.Trend[len(snapshot.Trend)-1]; current.Loans != 3 {
		t.Fatalf("current month trend = %d, want 3", current.Loans)
	}
}

func TestComputeSharedLoanRecordsCountOnce(t *testing.T) {
	// Store-backed deployments list pending rows in both the loan history
	// and the request queue; a shared id must not inflate the trend or
	// duplicate its activity entry.
	pending := RawRecord{"id": 3.0, "bookId": 3.0, "status": "pending", "requestedAt": "2025-06-10T10:00:00Z"}
	service := NewServiceAt(Sources{
		Books: testCatalog(),
		Loans: staticSource(
			RawRecord{"id": 1.0, "bookId": 1.0, "status": "accepted", "requestedAt": "2025-06-02T10:00:00Z"},
			pending,
		),
		Requests: staticSource(pending),
	}, nil, fixedClock)

	snapshot, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if current := snapshot.Trend[len(snapshot.Trend)-1]; current.Loans != 2 {
		t.Fatalf("current month trend = %d, want 2", current.Loans)
	}
	reserves := 0
	for _, entry := range snapshot.RecentActivity {
		if entry.Kind == types.ActivityReserve {
			reserves++
		}
	}
	if reserves != 1 {
		t.Fatalf("reserve activity entries = %d, want 1", reserves)
	}
	if snapshot.ReservedBooks != 1 || snapshot.BorrowedBooks != 1 {
		t.Fatalf("reserved/borrowed = %d/%d, want 1/1", snapshot.ReservedBooks, snapshot.BorrowedBooks)
	}
}

func TestComputeKeepsDistinctIDLessRecords(t *testing.T) {
	// Records with no recognizable id normalize to 0. They never carry
	// identity, so two of them are distinct events rather than duplicates.
	service := NewServiceAt(Sources{
		Books:    testCatalog(),
		Loans:    staticSource(RawRecord{"status": "accepted", "requestedAt": "2025-06-02T10:00:00Z"}),
		Requests: staticSource(RawRecord{"status": "pending", "requestedAt": "2025-06-10T10:00:00Z"}),
	}, nil, fixedClock)

	snapshot, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if current := snapshot.Trend[len(snapshot.Trend)-1]; current.Loans != 2 {
		t.Fatalf("current month trend = %d, want 2", current.Loans)
	}
}

func TestComputeIsRepeatable(t *testing.T) {
	sources := Sources{
		Books:  testCatalog(),
		Admins: staticSource(RawRecord{"adminId": "a1"}),
		Readers: staticSource(
			RawRecord{"readerId": "r1", "createdAt": "2025-06-01T09:00:00Z"},
			RawRecord{"readerId": "r2"},
		),
		Loans: staticSource(
			RawRecord{"id": 1.0, "bookId": 1.0, "status": "accepted", "requestedAt": "2025-06-02T10:00:00Z"},
			RawRecord{"id": 2.0, "bookId": 2.0, "status": "refused", "requestedAt": "2025-05-20T10:00:00Z"},
		),
		Requests: staticSource(
			RawRecord{"id": 3.0, "bookId": 3.0, "status": "pending", "requestedAt": "2025-06-10T10:00:00Z"},
		),
	}
	service := NewServiceAt(sources, nil, fixedClock)

	first, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	second, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated computation diverged:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestComputeEstimatesWhenLoansDown(t *testing.T) {
	service := NewServiceAt(Sources{
		Books: testCatalog(),
		Loans: failingSource(errors.New("loan service down")),
	}, nil, fixedClock)

	snapshot, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snapshot.LoanOrigin != types.OriginEstimated {
		t.Fatalf("loan origin = %q, want estimated", snapshot.LoanOrigin)
	}
	if snapshot.TrendOrigin != types.OriginEstimated {
		t.Fatalf("trend origin = %q, want estimated", snapshot.TrendOrigin)
	}
	// 10 copies: 30% borrowed.
	if snapshot.BorrowedBooks != 3 {
		t.Fatalf("estimated borrowed = %d, want 3", snapshot.BorrowedBooks)
	}
	if snapshot.ReservedBooks != 0 {
		t.Fatalf("estimated reserved = %d, want 0 (nil requests source is empty, not failed)", snapshot.ReservedBooks)
	}
}

func TestComputeEstimatesReservedWhenRequestsDown(t *testing.T) {
	service := NewServiceAt(Sources{
		Books:    testCatalog(),
		Requests: failingSource(errors.New("request service down")),
	}, nil, fixedClock)

	snapshot, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snapshot.LoanOrigin != types.OriginEstimated {
		t.Fatalf("loan origin = %q, want estimated", snapshot.LoanOrigin)
	}
	// 10 copies: 10% reserved.
	if snapshot.ReservedBooks != 1 {
		t.Fatalf("estimated reserved = %d, want 1", snapshot.ReservedBooks)
	}
}

func TestComputeSnapshotShape(t *testing.T) {
	service := NewServiceAt(Sources{Books: staticSource()}, nil, fixedClock)

	snapshot, err := service.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snapshot.Genres == nil || snapshot.Trend == nil || snapshot.RecentActivity == nil {
		t.Fatalf("nil slice in snapshot: %+v", snapshot)
	}
	if len(snapshot.RecentActivity) != activityFloor {
		t.Fatalf("activity = %d entries, want padded floor %d", len(snapshot.RecentActivity), activityFloor)
	}
	for _, entry := range snapshot.RecentActivity {
		if entry.Kind != types.ActivitySystem {
			t.Fatalf("expected system padding, got %+v", entry)
		}
	}
	if !snapshot.LastUpdated.Equal(testNow) {
		t.Fatalf("last updated = %v, want clock time", snapshot.LastUpdated)
	}
}

func TestLatestCachesSnapshot(t *testing.T) {
	calls := 0
	service := NewServiceAt(Sources{
		Books: func(ctx context.Context) ([]RawRecord, error) {
			calls++
			return nil, nil
		},
	}, nil, fixedClock)

	ctx := context.Background()
	if _, err := service.Latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if _, err := service.Latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if calls != 1 {
		t.Fatalf("book source called %d times, want 1", calls)
	}

	if _, err := service.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if calls != 2 {
		t.Fatalf("book source called %d times after refresh, want 2", calls)
	}
}

func TestRefreshKeepsPreviousSnapshotOnFailure(t *testing.T) {
	healthy := true
	service := NewServiceAt(Sources{
		Books: func(ctx context.Context) ([]RawRecord, error) {
			if !healthy {
				return nil, errors.New("catalog down")
			}
			return []RawRecord{{"id": 1.0, "title": "Dune"}}, nil
		},
	}, nil, fixedClock)

	ctx := context.Background()
	if _, err := service.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	healthy = false
	if _, err := service.Refresh(ctx); err == nil {
		t.Fatalf("expected refresh failure")
	}

	snapshot, err := service.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if snapshot.TotalTitles != 1 {
		t.Fatalf("total titles = %d, want cached 1", snapshot.TotalTitles)
	}
}
