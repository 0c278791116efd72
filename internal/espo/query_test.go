package espo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(Config{BaseURL: server.URL, APIKey: "test-key"}, zap.NewNop())
	return client, server
}

func TestListAllPaginates(t *testing.T) {
	// 5 records, page size 2: expect pages of 2, 2, 1 and exactly 3 requests.
	records := make([]testRecord, 5)
	for i := range records {
		records[i] = testRecord{ID: strconv.Itoa(i), Name: fmt.Sprintf("record-%d", i)}
	}

	var requests int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("maxSize"))
		end := offset + limit
		if end > len(records) {
			end = len(records)
		}
		page := records[offset:end]

		json.NewEncoder(w).Encode(map[string]any{"total": len(records), "list": page})
	}))

	got, err := ListAll[testRecord](context.Background(), client, "TestEntity", nil, 2)
	require.NoError(t, err)

	assert.Len(t, got, 5, "every record across all pages should be returned")
	assert.Equal(t, 3, requests, "walk should stop exactly when a short page arrives")
	assert.Equal(t, records, got)
}

func TestListAllExactPageBoundary(t *testing.T) {
	// 4 records, page size 2: the third request returns an empty page.
	records := []testRecord{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}

	var requests int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := offset + 2
		if end > len(records) {
			end = len(records)
		}
		var page []testRecord
		if offset < len(records) {
			page = records[offset:end]
		}
		json.NewEncoder(w).Encode(map[string]any{"total": len(records), "list": page})
	}))

	got, err := ListAll[testRecord](context.Background(), client, "TestEntity", nil, 2)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 3, requests)
}

func TestListAllEncodesWhereFilters(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "equals", q.Get("where[0][type]"))
		assert.Equal(t, "status", q.Get("where[0][attribute]"))
		assert.Equal(t, "Invoice", q.Get("where[0][value]"))
		assert.Equal(t, "equals", q.Get("where[1][type]"))
		assert.Equal(t, "deleted", q.Get("where[1][attribute]"))
		assert.Equal(t, "false", q.Get("where[1][value]"))
		assert.Equal(t, "greaterThanOrEquals", q.Get("where[2][type]"))
		assert.Equal(t, "createdAt", q.Get("where[2][attribute]"))

		json.NewEncoder(w).Encode(map[string]any{"total": 0, "list": []testRecord{}})
	}))

	where := []Filter{
		Equals("status", "Invoice"),
		NotDeleted(),
		GreaterEqual("createdAt", "2024-12-09 00:00:00"),
	}
	got, err := ListAll[testRecord](context.Background(), client, "BusinessProject", where, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListAllAbortsOnAPIError(t *testing.T) {
	// First page succeeds, second fails: the whole fetch errors out.
	var requests int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			page := []testRecord{{ID: "a"}, {ID: "b"}}
			json.NewEncoder(w).Encode(map[string]any{"total": 3, "list": page})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))

	got, err := ListAll[testRecord](context.Background(), client, "TestEntity", nil, 2)
	require.Error(t, err)
	assert.Nil(t, got)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestRequestDecodesBodyAndError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/Invoice/inv-1":
			json.NewEncoder(w).Encode(map[string]any{"id": "inv-1", "name": "FA-2024-001"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	var out testRecord
	err := client.GetOne(context.Background(), "Invoice", "inv-1", &out)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", out.ID)

	err = client.GetOne(context.Background(), "Invoice", "missing", &out)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
