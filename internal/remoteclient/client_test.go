package remoteclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

func TestTableInsertSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tables/todo" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body envelope
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		body.Item["id"] = "server-assigned"
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	got, err := c.TableInsert(context.Background(), "todo", syncengine.Item{"title": "x"}, nil)
	if err != nil {
		t.Fatalf("TableInsert: %v", err)
	}
	if got.ID() != "server-assigned" {
		t.Fatalf("id = %q, want server-assigned", got.ID())
	}
}

func TestTableUpdateConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":    "version mismatch",
			"version":    "7",
			"serverItem": map[string]any{"id": "1", "title": "server-title"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.TableUpdate(context.Background(), "todo", syncengine.Item{"id": "1", "title": "local-title"}, nil)
	var ce *syncengine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if ce.Version != "7" || ce.ServerItem["title"] != "server-title" {
		t.Fatalf("conflict error = %+v", ce)
	}
}

func TestTableDeleteAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	err := c.TableDelete(context.Background(), "todo", syncengine.Item{"id": "1"}, nil)
	var te *syncengine.TransportError
	if !errors.As(err, &te) || te.Kind != syncengine.RemoteErrorAuth {
		t.Fatalf("err = %v, want Auth transport error", err)
	}
}

func TestTableReadDecodesItemsAndForwardsQueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":      []map[string]any{{"id": "1"}, {"id": "2"}},
			"totalCount": 2,
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	res, err := c.TableRead(context.Background(), syncengine.Query{
		TableName:         "todo",
		FetchLimit:        10,
		IncludeTotalCount: true,
	}, syncengine.RemoteFeatures{"trace": "1"})
	if err != nil {
		t.Fatalf("TableRead: %v", err)
	}
	if len(res.Items) != 2 || res.TotalCount != 2 {
		t.Fatalf("res = %+v", res)
	}
	if gotQuery == "" {
		t.Fatal("expected query parameters to be forwarded")
	}
}

func TestTableReadTransportFailureOnUnreachableServer(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.TableRead(context.Background(), syncengine.Query{TableName: "todo"}, nil)
	var te *syncengine.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestProtocolVersionReportsConfiguredValue(t *testing.T) {
	c := New(Config{BaseURL: "http://example.invalid", ProtocolVersion: "v1.2.0"})
	if c.ProtocolVersion() != "v1.2.0" {
		t.Fatalf("ProtocolVersion() = %q", c.ProtocolVersion())
	}
}
