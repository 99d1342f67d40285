package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(serverURL string) *Client {
	return NewClient(http.DefaultClient, discardLogger(), Config{
		Token:      "test-token",
		BaseID:     "appTEST",
		BaseURL:    serverURL,
		ContentURL: serverURL,
		Retry: RetryPolicy{
			Attempts:          3,
			PerAttemptTimeout: 2 * time.Second,
			Backoff:           func(int) time.Duration { return 0 },
		},
	}, nil)
}

func TestListRecords_SendsAuthAndQuery(t *testing.T) {
	var gotAuth, gotFilter, gotSortField, gotSortDir string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/appTEST/Reparaciones" {
			t.Errorf("path = %q, want /appTEST/Reparaciones", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotFilter = r.URL.Query().Get("filterByFormula")
		gotSortField = r.URL.Query().Get("sort[0][field]")
		gotSortDir = r.URL.Query().Get("sort[0][direction]")
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{"id": "rec1", "fields": map[string]any{"Estado": "Asignada"}},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	records, err := client.ListRecords(context.Background(), "Reparaciones", ListOptions{
		FilterByFormula: `{ID técnico asignado} = "recAna"`,
		SortField:       "Fecha visita",
		SortDesc:        true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
	if gotFilter != `{ID técnico asignado} = "recAna"` {
		t.Errorf("filterByFormula = %q", gotFilter)
	}
	if gotSortField != "Fecha visita" || gotSortDir != "desc" {
		t.Errorf("sort = (%q, %q), want (Fecha visita, desc)", gotSortField, gotSortDir)
	}
	if len(records) != 1 || records[0].ID != "rec1" {
		t.Errorf("records = %v, want single rec1", records)
	}
}

func TestListRecords_FollowsOffsetPagination(t *testing.T) {
	var offsets []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)

		if offset == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{{"id": "rec1"}},
				"offset":  "page2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{{"id": "rec2"}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	records, err := client.ListRecords(context.Background(), "Técnicos", ListOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 2 {
		t.Errorf("len(records) = %d, want 2", len(records))
	}
	if len(offsets) != 2 || offsets[1] != "page2" {
		t.Errorf("offsets = %v, want second request with page2", offsets)
	}
}

func TestDo_TransportError_RetriedThenFails(t *testing.T) {
	client := NewClient(http.DefaultClient, discardLogger(), Config{
		Token:   "test-token",
		BaseID:  "appTEST",
		BaseURL: "http://127.0.0.1:1",
		Retry: RetryPolicy{
			Attempts:          3,
			PerAttemptTimeout: time.Second,
			Backoff:           func(int) time.Duration { return 0 },
		},
	}, nil)

	_, err := client.ListRecords(context.Background(), "Técnicos", ListOptions{})
	if err == nil {
		t.Fatal("expected error when store is unreachable")
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		t.Error("transport failure must not surface as StatusError")
	}
}

func TestDo_TransportErrorThenSuccess_Recovers(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Kill the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack failed: %v", err)
			}
			conn.Close()
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{{"id": "rec1"}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	records, err := client.ListRecords(context.Background(), "Técnicos", ListOptions{})
	if err != nil {
		t.Fatalf("expected recovery on retry, got %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDo_Non2xx_NotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"NOT_FOUND"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetRecord(context.Background(), "Reparaciones", "recMissing")
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if serr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", serr.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on HTTP errors)", calls.Load())
	}
}

func TestUpdateRecord_PatchesFieldsEnvelope(t *testing.T) {
	var gotMethod string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		if r.URL.Path != "/appTEST/Reparaciones/rec1" {
			t.Errorf("path = %q, want /appTEST/Reparaciones/rec1", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "rec1",
			"fields": map[string]any{"Estado": "Aceptada"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	rec, err := client.UpdateRecord(context.Background(), "Reparaciones", "rec1", map[string]any{"Estado": "Aceptada"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", gotMethod)
	}
	fields, _ := gotBody["fields"].(map[string]any)
	if fields["Estado"] != "Aceptada" {
		t.Errorf("fields.Estado = %v, want Aceptada", fields["Estado"])
	}
	if rec.Fields["Estado"] != "Aceptada" {
		t.Errorf("returned Estado = %v, want Aceptada", rec.Fields["Estado"])
	}
}

func TestUploadAttachment_UsesContentEndpoint(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	err := client.UploadAttachment(context.Background(), "rec1", "Fotos", "foto.jpg", "image/jpeg", "aGVsbG8=")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotPath != "/appTEST/rec1/Fotos/uploadAttachment" {
		t.Errorf("path = %q, want /appTEST/rec1/Fotos/uploadAttachment", gotPath)
	}
	if gotBody["filename"] != "foto.jpg" || gotBody["contentType"] != "image/jpeg" || gotBody["file"] != "aGVsbG8=" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestRetryPolicy_Normalize_FillsZeroValues(t *testing.T) {
	p := RetryPolicy{}.normalize()

	if p.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", p.Attempts)
	}
	if p.PerAttemptTimeout != 10*time.Second {
		t.Errorf("PerAttemptTimeout = %v, want 10s", p.PerAttemptTimeout)
	}
	if p.Backoff == nil {
		t.Fatal("Backoff is nil")
	}
	if p.Backoff(2) != 2*time.Second {
		t.Errorf("Backoff(2) = %v, want 2s", p.Backoff(2))
	}
}

func TestLinearBackoff_GrowsWithAttempt(t *testing.T) {
	backoff := LinearBackoff(time.Second)

	if backoff(1) != time.Second {
		t.Errorf("backoff(1) = %v, want 1s", backoff(1))
	}
	if backoff(3) != 3*time.Second {
		t.Errorf("backoff(3) = %v, want 3s", backoff(3))
	}
}
