package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/chargefix/portal/internal/airtable"
)

// --- mocks ---

type mockStore struct {
	listRecordsFn func(ctx context.Context, table string, opts airtable.ListOptions) ([]airtable.Record, error)
}

func (m *mockStore) ListRecords(ctx context.Context, table string, opts airtable.ListOptions) ([]airtable.Record, error) {
	if m.listRecordsFn != nil {
		return m.listRecordsFn(ctx, table, opts)
	}
	return nil, nil
}

var _ StoreClient = (*mockStore)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func technicianRecords() []airtable.Record {
	return []airtable.Record{
		{
			ID: "recAna",
			Fields: map[string]any{
				"Nombre técnico":   "Ana García",
				"Email técnico":    "ana@example.com",
				"Teléfono técnico": "611 22 33 44",
				"Activo":           true,
			},
		},
		{
			ID: "recLuis",
			Fields: map[string]any{
				"Nombre técnico":   "Luis Pérez",
				"Email técnico":    "luis@example.com",
				"Teléfono técnico": "622 33 44 55",
				"Activo":           false,
			},
		},
	}
}

// --- tests ---

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"spaces", "611 22 33 44", "611223344"},
		{"hyphens and parens", "(611)22-3344", "611223344"},
		{"tabs", "611\t223\t344", "611223344"},
		{"already normalized", "611223344", "611223344"},
		{"plus prefix kept", "+34 611 22 33 44", "+34611223344"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.input); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePhone_EquivalentFormatsCompareEqual(t *testing.T) {
	if NormalizePhone("611 22 33 44") != NormalizePhone("(611)22-3344") {
		t.Error("equivalent phone formats should normalize to the same value")
	}
}

func TestLookup_ByEmail_ReturnsEntry(t *testing.T) {
	store := &mockStore{
		listRecordsFn: func(_ context.Context, table string, _ airtable.ListOptions) ([]airtable.Record, error) {
			if table != "Técnicos" {
				t.Errorf("table = %q, want %q", table, "Técnicos")
			}
			return technicianRecords(), nil
		},
	}
	svc := NewService(store, "Técnicos", discardLogger())

	entry, err := svc.Lookup(context.Background(), "", "ana@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if entry.RecordID != "recAna" {
		t.Errorf("RecordID = %q, want %q", entry.RecordID, "recAna")
	}
	if entry.Name != "Ana García" {
		t.Errorf("Name = %q, want %q", entry.Name, "Ana García")
	}
	if !entry.Active {
		t.Error("Active = false, want true")
	}
}

func TestLookup_ByEmail_CaseInsensitive(t *testing.T) {
	store := &mockStore{
		listRecordsFn: func(_ context.Context, _ string, _ airtable.ListOptions) ([]airtable.Record, error) {
			return technicianRecords(), nil
		},
	}
	svc := NewService(store, "Técnicos", discardLogger())

	entry, err := svc.Lookup(context.Background(), "", "  ANA@Example.COM ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if entry.RecordID != "recAna" {
		t.Errorf("RecordID = %q, want %q", entry.RecordID, "recAna")
	}
}

func TestLookup_ByPhone_NormalizedMatch(t *testing.T) {
	store := &mockStore{
		listRecordsFn: func(_ context.Context, _ string, _ airtable.ListOptions) ([]airtable.Record, error) {
			return technicianRecords(), nil
		},
	}
	svc := NewService(store, "Técnicos", discardLogger())

	// Stored as "611 22 33 44", queried in a different format.
	entry, err := svc.Lookup(context.Background(), "(611)22-3344", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if entry.RecordID != "recAna" {
		t.Errorf("RecordID = %q, want %q", entry.RecordID, "recAna")
	}
}

func TestLookup_EmailTakesPriorityOverPhone(t *testing.T) {
	store := &mockStore{
		listRecordsFn: func(_ context.Context, _ string, _ airtable.ListOptions) ([]airtable.Record, error) {
			return technicianRecords(), nil
		},
	}
	svc := NewService(store, "Técnicos", discardLogger())

	// Phone points at Ana, email at Luis: email wins.
	entry, err := svc.Lookup(context.Background(), "611223344", "luis@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if entry.RecordID != "recLuis" {
		t.Errorf("RecordID = %q, want %q", entry.RecordID, "recLuis")
	}
}

func TestLookup_NoMatch_ReturnsErrNotFound(t *testing.T) {
	store := &mockStore{
		listRecordsFn: func(_ context.Context, _ string, _ airtable.ListOptions) ([]airtable.Record, error) {
			return technicianRecords(), nil
		},
	}
	svc := NewService(store, "Técnicos", discardLogger())

	_, err := svc.Lookup(context.Background(), "699999999", "nadie@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLookup_EmptyIdentifiers_ReturnsErrNotFound(t *testing.T) {
	called := false
	store := &mockStore{
		listRecordsFn: func(_ context.Context, _ string, _ airtable.ListOptions) ([]airtable.Record, error) {
			called = true
			return nil, nil
		},
	}
	svc := NewService(store, "Técnicos", discardLogger())

	_, err := svc.Lookup(context.Background(), "", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if called {
		t.Error("store should not be queried for empty identifiers")
	}
}

func TestLookup_StoreError_ReturnsErrUnavailable(t *testing.T) {
	store := &mockStore{
		listRecordsFn: func(_ context.Context, _ string, _ airtable.ListOptions) ([]airtable.Record, error) {
			return nil, errors.New("boom")
		},
	}
	svc := NewService(store, "Técnicos", discardLogger())

	_, err := svc.Lookup(context.Background(), "", "ana@example.com")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("store failure must not be reported as not found")
	}
}

func TestLookup_MissingFields_TreatedAsInactive(t *testing.T) {
	store := &mockStore{
		listRecordsFn: func(_ context.Context, _ string, _ airtable.ListOptions) ([]airtable.Record, error) {
			return []airtable.Record{
				{
					ID: "recBare",
					Fields: map[string]any{
						"Email técnico": "bare@example.com",
					},
				},
			}, nil
		},
	}
	svc := NewService(store, "Técnicos", discardLogger())

	entry, err := svc.Lookup(context.Background(), "", "bare@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if entry.Active {
		t.Error("missing Activo field should mean inactive")
	}
	if entry.Name != "" || entry.Phone != "" {
		t.Errorf("missing fields should be empty, got name=%q phone=%q", entry.Name, entry.Phone)
	}
}
