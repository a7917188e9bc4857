package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-todo-sync/pkg/testsupport"
	"github.com/goliatone/go-todo-sync/todo"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	return testsupport.LoadFixture(t, filepath.Join("..", "todo", "testdata", name))
}

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *testsupport.RecordingServer) {
	t.Helper()
	srv := testsupport.NewRecordingServer(t, handler)
	client := NewHTTPClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second}, nil, nil)
	return client, srv
}

func TestHTTPClient_ListShapesAgree(t *testing.T) {
	flatClient, _ := newTestClient(t, testsupport.JSONHandler(http.StatusOK, fixture(t, "list_flattened.json")))
	nestedClient, _ := newTestClient(t, testsupport.JSONHandler(http.StatusOK, fixture(t, "list_nested.json")))

	locator := todo.ListLocator(1, 10, todo.DefaultQuery)

	flat, err := flatClient.List(context.Background(), locator)
	if err != nil {
		t.Fatalf("flattened list: %v", err)
	}
	nested, err := nestedClient.List(context.Background(), locator)
	if err != nil {
		t.Fatalf("nested list: %v", err)
	}

	if len(flat.Items) != 2 || len(nested.Items) != 2 {
		t.Fatalf("expected 2 items each, got %d and %d", len(flat.Items), len(nested.Items))
	}
	for i := range flat.Items {
		f, n := flat.Items[i], nested.Items[i]
		if f.ID != n.ID || f.Title != n.Title || f.Done != n.Done || f.AlternateID != n.AlternateID {
			t.Errorf("item %d differs: %+v vs %+v", i, f, n)
		}
	}
	if flat.Pagination != nested.Pagination {
		t.Errorf("pagination differs: %+v vs %+v", flat.Pagination, nested.Pagination)
	}
}

func TestHTTPClient_ListSendsLocator(t *testing.T) {
	client, srv := newTestClient(t, testsupport.JSONHandler(http.StatusOK, []byte(`{"data":[]}`)))

	q := todo.Query{Search: "milk", Filter: todo.FilterActive, Sort: todo.SortCreatedAsc}
	resp, err := client.ListPage(context.Background(), 2, 5, q)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if resp.Items == nil || len(resp.Items) != 0 {
		t.Errorf("expected empty non-nil items, got %#v", resp.Items)
	}

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Path != todo.CollectionPath {
		t.Errorf("unexpected path %q", reqs[0].Path)
	}
	if reqs[0].RawQuery != todo.EncodeListQuery(2, 5, q).Encode() {
		t.Errorf("unexpected query %q", reqs[0].RawQuery)
	}
}

func TestHTTPClient_ListNoContent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	resp, err := client.List(context.Background(), todo.ListLocator(1, 10, todo.DefaultQuery))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("expected no items, got %d", len(resp.Items))
	}
}

func TestHTTPClient_ListMalformed(t *testing.T) {
	client, _ := newTestClient(t, testsupport.JSONHandler(http.StatusOK, []byte(`{"data":[`)))

	_, err := client.List(context.Background(), todo.ListLocator(1, 10, todo.DefaultQuery))
	if !todo.IsMalformedResponse(err) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestHTTPClient_DeleteUsesAlternateID(t *testing.T) {
	client, srv := newTestClient(t, testsupport.JSONHandler(http.StatusOK, []byte(`{"data":{"id":2}}`)))

	item := todo.Item{ID: 2, AlternateID: "abc123", Title: "Buy milk"}
	if err := client.Delete(context.Background(), item.Ref()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Method != http.MethodDelete || reqs[0].Path != "/api/todos/abc123" {
		t.Errorf("unexpected request %s %s", reqs[0].Method, reqs[0].Path)
	}
}

func TestHTTPClient_DeleteNoContent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.Delete(context.Background(), "7"); err != nil {
		t.Fatalf("expected 204 to count as success, got %v", err)
	}
}

func TestHTTPClient_UpdateSendsPatch(t *testing.T) {
	client, srv := newTestClient(t, testsupport.JSONHandler(http.StatusOK,
		[]byte(`{"data":{"id":2,"documentId":"abc123","title":"Buy milk","done":true}}`)))

	item, err := client.Update(context.Background(), "abc123", DonePatch(true))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !item.Done || item.AlternateID != "abc123" {
		t.Errorf("unexpected item %+v", item)
	}

	reqs := srv.Requests()
	if reqs[0].Method != http.MethodPut || reqs[0].Path != "/api/todos/abc123" {
		t.Errorf("unexpected request %s %s", reqs[0].Method, reqs[0].Path)
	}

	var body map[string]map[string]any
	if err := json.Unmarshal(reqs[0].Body, &body); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if _, ok := body["data"]["title"]; ok {
		t.Error("title must be omitted from a done-only patch")
	}
	if body["data"]["done"] != true {
		t.Errorf("expected done=true in body, got %v", body["data"])
	}
}

func TestHTTPClient_CreateNestedResponse(t *testing.T) {
	client, srv := newTestClient(t, testsupport.JSONHandler(http.StatusOK,
		[]byte(`{"data":{"id":11,"documentId":"n3wd0c","attributes":{"title":"Write report","done":false}}}`)))

	item, err := client.Create(context.Background(), CreateInput{Title: "Write report"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.ID != 11 || item.Title != "Write report" || item.AlternateID != "n3wd0c" {
		t.Errorf("unexpected item %+v", item)
	}
	if srv.Count(http.MethodPost) != 1 {
		t.Errorf("expected one POST, got %d", srv.Count(http.MethodPost))
	}
}

func TestHTTPClient_ErrorMessages(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		call      func(c *HTTPClient) error
		want      string
		retryable bool
	}{
		{
			name:   "delete not found without body",
			status: http.StatusNotFound,
			call:   func(c *HTTPClient) error { return c.Delete(context.Background(), "abc123") },
			want:   "Failed to delete todo: 404 Not Found",
		},
		{
			name:      "update server error with body",
			status:    http.StatusInternalServerError,
			body:      "boom",
			call:      func(c *HTTPClient) error { _, err := c.Update(context.Background(), "1", DonePatch(true)); return err },
			want:      "Failed to update todo: 500 Internal Server Error - boom",
			retryable: true,
		},
		{
			name:   "create bad request",
			status: http.StatusBadRequest,
			body:   `{"error":"title required"}`,
			call: func(c *HTTPClient) error {
				_, err := c.Create(context.Background(), CreateInput{Title: "x"})
				return err
			},
			want: `Failed to create todo: 400 Bad Request - {"error":"title required"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, testsupport.JSONHandler(tt.status, []byte(tt.body)))

			err := tt.call(client)
			if err == nil {
				t.Fatal("expected error")
			}
			if !todo.IsNetworkFailure(err) {
				t.Errorf("expected network failure category, got %v", err)
			}
			if got := todo.Message(err); got != tt.want {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
			if todo.StatusCode(err) != tt.status {
				t.Errorf("status = %d, want %d", todo.StatusCode(err), tt.status)
			}
			if todo.IsRetryable(err) != tt.retryable {
				t.Errorf("retryable = %v, want %v", todo.IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestHTTPClient_TransportFailure(t *testing.T) {
	srv := testsupport.NewRecordingServer(t, testsupport.JSONHandler(http.StatusOK, nil))
	url := srv.URL
	srv.Close()

	client := NewHTTPClient(Config{BaseURL: url, Timeout: time.Second}, nil, nil)
	_, err := client.List(context.Background(), todo.ListLocator(1, 10, todo.DefaultQuery))
	if !todo.IsNetworkFailure(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if todo.StatusCode(err) != 0 {
		t.Errorf("expected no status code, got %d", todo.StatusCode(err))
	}
	if !strings.HasPrefix(todo.Message(err), "Failed to fetch todos") {
		t.Errorf("unexpected message %q", todo.Message(err))
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "missing url", cfg: Config{Timeout: time.Second}, wantErr: true},
		{name: "relative url", cfg: Config{BaseURL: "/api", Timeout: time.Second}, wantErr: true},
		{name: "zero timeout", cfg: Config{BaseURL: "http://localhost:1337"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
