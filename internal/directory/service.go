// Package directory looks technicians up in the spreadsheet-backed
// directory. The directory is the source of truth for who may log in;
// this package is strictly read-only.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chargefix/portal/internal/airtable"
	"github.com/chargefix/portal/internal/model"
)

// Field names in the technician table.
const (
	fieldName   = "Nombre técnico"
	fieldEmail  = "Email técnico"
	fieldPhone  = "Teléfono técnico"
	fieldActive = "Activo"
)

// ErrNotFound means no directory entry matches the identifier.
// Callers translate it to 404; it is distinct from ErrUnavailable (500).
var ErrNotFound = errors.New("technician not found in directory")

// ErrUnavailable means the backing store could not be queried.
var ErrUnavailable = errors.New("technician directory unavailable")

// StoreClient is the subset of the Airtable client the lookup needs.
type StoreClient interface {
	ListRecords(ctx context.Context, table string, opts airtable.ListOptions) ([]airtable.Record, error)
}

// Service performs directory lookups.
type Service struct {
	store  StoreClient
	table  string
	logger *slog.Logger
}

// NewService builds a Service over the given technician table.
func NewService(store StoreClient, table string, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		table:  table,
		logger: logger,
	}
}

// NormalizePhone strips whitespace, hyphens and parentheses so that
// "611 22 33 44" and "(611)22-3344" compare equal. Matching after
// normalization is exact string equality.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '(', ')':
			return -1
		default:
			return r
		}
	}, phone)
}

// Lookup finds the first directory entry matching the given identifiers.
// Email matches case-insensitively and takes priority when both identifiers
// are supplied; phones are compared after normalization. Returns ErrNotFound
// when nothing matches and a wrapped ErrUnavailable when the store cannot
// be reached, so callers can answer 404 and 500 respectively.
func (s *Service) Lookup(ctx context.Context, phone, email string) (*model.DirectoryEntry, error) {
	if phone == "" && email == "" {
		return nil, ErrNotFound
	}

	records, err := s.store.ListRecords(ctx, s.table, airtable.ListOptions{})
	if err != nil {
		s.logger.Error("failed to list technician directory",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	wantEmail := strings.ToLower(strings.TrimSpace(email))
	wantPhone := NormalizePhone(phone)

	if wantEmail != "" {
		for _, rec := range records {
			if strings.ToLower(stringField(rec, fieldEmail)) == wantEmail {
				return entryFromRecord(rec), nil
			}
		}
	}

	if wantPhone != "" {
		for _, rec := range records {
			if NormalizePhone(stringField(rec, fieldPhone)) == wantPhone {
				return entryFromRecord(rec), nil
			}
		}
	}

	return nil, ErrNotFound
}

// entryFromRecord maps an Airtable record onto a DirectoryEntry.
func entryFromRecord(rec airtable.Record) *model.DirectoryEntry {
	return &model.DirectoryEntry{
		RecordID: rec.ID,
		Name:     stringField(rec, fieldName),
		Email:    strings.TrimSpace(stringField(rec, fieldEmail)),
		Phone:    stringField(rec, fieldPhone),
		Active:   boolField(rec, fieldActive),
	}
}

func stringField(rec airtable.Record, key string) string {
	if v, ok := rec.Fields[key].(string); ok {
		return v
	}
	return ""
}

func boolField(rec airtable.Record, key string) bool {
	if v, ok := rec.Fields[key].(bool); ok {
		return v
	}
	return false
}
