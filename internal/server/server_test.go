package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mid "github.com/OFFIS-RIT/graphrag/internal/server/middleware"
	"github.com/OFFIS-RIT/graphrag/internal/storage"
	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/leaselock"
	"github.com/OFFIS-RIT/graphrag/pkg/query"
	"github.com/OFFIS-RIT/graphrag/pkg/store"
	"github.com/OFFIS-RIT/graphrag/pkg/store/file"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rabbitmq/amqp091-go"
)

var jwtSecret = []byte("test-secret")

type fakeGraphs struct {
	tables store.TableStore
	query  string
	topK   int
}

func (g *fakeGraphs) SearchEntities(ctx context.Context, graphID, q string, topK int) ([]query.SelectedEntity, error) {
	g.query, g.topK = q, topK
	if graphID != "g1" {
		return nil, nil
	}
	return []query.SelectedEntity{{Entity: common.Entity{ID: "e1", Title: "ALPHA"}, Score: 0.9}}, nil
}

func (g *fakeGraphs) DeleteGraph(ctx context.Context, graphID string) error {
	if graphID == "busy" {
		return leaselock.ErrBusy
	}
	return g.tables.DeleteGraph(ctx, graphID)
}

func (g *fakeGraphs) Tables() store.TableStore { return g.tables }

type fakeQueue struct {
	keys   []string
	bodies [][]byte
}

func (q *fakeQueue) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	q.keys = append(q.keys, key)
	q.bodies = append(q.bodies, msg.Body)
	return nil
}

func newTestServer(t *testing.T) (http.Handler, *fakeGraphs, *fakeQueue) {
	t.Helper()
	dir, err := storage.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}
	tables := file.NewTableFileStorage(dir, "")
	err = tables.SaveReports(context.Background(), "g1", []common.CommunityReport{
		{CommunityID: "L0-0", Level: 0, Title: "Harbor"},
		{CommunityID: "L1-0", Level: 1, Title: "Docks"},
	})
	if err != nil {
		t.Fatalf("SaveReports() error = %v", err)
	}

	graphs := &fakeGraphs{tables: tables}
	q := &fakeQueue{}
	e := New(&mid.App{
		Graphs:       graphs,
		Queue:        q,
		MasterAPIKey: "master",
		Keyfunc: func(*jwt.Token) (any, error) {
			return jwtSecret, nil
		},
	})
	return e, graphs, q
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func do(h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestServer(t)
	if rec := do(h, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	h, _, _ := newTestServer(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "no token", want: http.StatusUnauthorized},
		{name: "wrong key", token: "nope", want: http.StatusUnauthorized},
		{name: "master key", token: "master", want: http.StatusOK},
		{name: "jwt with permission", token: signed(t, jwt.MapClaims{"id": "u1", "permissions": []any{"graph.view"}}), want: http.StatusOK},
		{name: "jwt admin", token: signed(t, jwt.MapClaims{"id": 7.0, "role": "admin"}), want: http.StatusOK},
		{name: "jwt without permission", token: signed(t, jwt.MapClaims{"id": "u1"}), want: http.StatusForbidden},
		{name: "jwt without id", token: signed(t, jwt.MapClaims{"role": "admin"}), want: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/api/graphs/g1/reports", tc.token, "")
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestIndexGraph(t *testing.T) {
	h, _, q := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/graphs/g1/index", "master", `{"dir":"docs","urls":["https://example.com/a.html"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if len(q.keys) != 1 || q.keys[0] != "index_queue" {
		t.Fatalf("published to %v", q.keys)
	}
	var msg map[string]any
	if err := json.Unmarshal(q.bodies[0], &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg["graph_id"] != "g1" || msg["dir"] != "docs" || msg["correlation_id"] == "" {
		t.Fatalf("message = %v", msg)
	}

	for _, body := range []string{`{}`, `{"urls":["no url"]}`, `not json`} {
		if rec := do(h, http.MethodPost, "/api/graphs/g1/index", "master", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, rec.Code)
		}
	}
	if len(q.keys) != 1 {
		t.Fatalf("invalid requests were published: %v", q.keys)
	}
}

func TestSearchEntities(t *testing.T) {
	h, graphs, _ := newTestServer(t)

	rec := do(h, http.MethodGet, "/api/graphs/g1/entities/search?q=harbor&k=3", "master", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if graphs.query != "harbor" || graphs.topK != 3 {
		t.Fatalf("search got q=%q k=%d", graphs.query, graphs.topK)
	}
	var got []query.SelectedEntity
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("body = %s, err %v", rec.Body.String(), err)
	}

	if rec := do(h, http.MethodGet, "/api/graphs/g1/entities/search?q=harbor", "master", ""); rec.Code != http.StatusOK || graphs.topK != 10 {
		t.Fatalf("default k: status %d k %d", rec.Code, graphs.topK)
	}
	if rec := do(h, http.MethodGet, "/api/graphs/g1/entities/search", "master", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing q: status = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/graphs/g1/entities/search?q=x&k=500", "master", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("k too large: status = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/graphs/nope/entities/search?q=x", "master", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown graph: status = %d", rec.Code)
	}
}

func TestGetReports(t *testing.T) {
	h, _, _ := newTestServer(t)

	tests := []struct {
		target string
		want   int
	}{
		{target: "/api/graphs/g1/reports", want: 2},
		{target: "/api/graphs/g1/reports?level=1", want: 1},
		{target: "/api/graphs/g1/reports?level=5", want: 0},
		{target: "/api/graphs/other/reports", want: 0},
	}
	for _, tc := range tests {
		rec := do(h, http.MethodGet, tc.target, "master", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tc.target, rec.Code)
		}
		var got []common.CommunityReport
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != tc.want {
			t.Fatalf("%s: %d reports, want %d (err %v)", tc.target, len(got), tc.want, err)
		}
	}

	if rec := do(h, http.MethodGet, "/api/graphs/g1/reports?level=x", "master", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad level: status = %d", rec.Code)
	}
}

func TestDeleteGraph(t *testing.T) {
	h, graphs, _ := newTestServer(t)

	viewer := signed(t, jwt.MapClaims{"id": "u1", "permissions": []any{"graph.view"}})
	if rec := do(h, http.MethodDelete, "/api/graphs/g1", viewer, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer: status = %d", rec.Code)
	}
	if rec := do(h, http.MethodDelete, "/api/graphs/busy", "master", ""); rec.Code != http.StatusConflict {
		t.Fatalf("busy graph: status = %d", rec.Code)
	}

	if rec := do(h, http.MethodDelete, "/api/graphs/g1", "master", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	reports, err := graphs.tables.LoadReports(context.Background(), "g1")
	if err != nil || len(reports) != 0 {
		t.Fatalf("reports after delete: %v, %v", reports, err)
	}
}
