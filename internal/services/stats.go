package services

import (
	"context"
	"encoding/json"

	"github.com/biblio-hub/apiserver/internal/stats"
	"github.com/biblio-hub/apiserver/types"
)

// StoreSources exposes the local repositories as statistics sources, so a
// deployment without external directory or loan services aggregates its own
// collections. Records go through the same raw-record path as upstream
// responses, keeping one normalization pipeline for both.
func StoreSources(users UserRepository, books BookRepository, loans LoanRepository) stats.Sources {
	userSource := func(role types.Role) stats.Source {
		return func(ctx context.Context) ([]stats.RawRecord, error) {
			list, err := users.List(ctx, role)
			if err != nil {
				return nil, err
			}
			return rawRecords(list)
		}
	}

	return stats.Sources{
		Admins:     userSource(types.RoleAdmin),
		Librarians: userSource(types.RoleLibrarian),
		Readers:    userSource(types.RoleReader),
		Books: func(ctx context.Context) ([]stats.RawRecord, error) {
			list, err := books.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			return rawRecords(list)
		},
		Loans: func(ctx context.Context) ([]stats.RawRecord, error) {
			list, err := loans.ListHistory(ctx)
			if err != nil {
				return nil, err
			}
			return rawRecords(list)
		},
		Requests: func(ctx context.Context) ([]stats.RawRecord, error) {
			list, err := loans.ListPending(ctx)
			if err != nil {
				return nil, err
			}
			return rawRecords(list)
		},
	}
}

func rawRecords(list any) ([]stats.RawRecord, error) {
	encoded, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	var records []stats.RawRecord
	if err := json.Unmarshal(encoded, &records); err != nil {
		return nil, err
	}
	return records, nil
}
