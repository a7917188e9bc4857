package testsupport

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "page.json")
	testContent := []byte(`{"data":[]}`)

	if err := os.WriteFile(testFile, testContent, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "page.json")

	if err := os.WriteFile(testFile, []byte(`{"meta":{"pagination":{"page":2}}}`), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var result struct {
		Meta struct {
			Pagination struct {
				Page int `json:"page"`
			} `json:"pagination"`
		} `json:"meta"`
	}
	LoadFixtureJSON(t, testFile, &result)

	if result.Meta.Pagination.Page != 2 {
		t.Errorf("expected page=2, got %d", result.Meta.Pagination.Page)
	}
}

func TestCompareWithGolden(t *testing.T) {
	t.Setenv(UpdateGoldenEnv, "")

	tmpDir := t.TempDir()
	goldenFile := filepath.Join(tmpDir, "nested", "out.golden")
	content := []byte("golden content")

	// missing golden files are created
	CompareWithGolden(t, goldenFile, content)

	written, err := os.ReadFile(goldenFile)
	if err != nil {
		t.Fatalf("failed to read created golden file: %v", err)
	}
	if string(written) != string(content) {
		t.Errorf("expected %q, got %q", content, written)
	}

	// existing golden files are compared
	CompareWithGolden(t, goldenFile, content)
}

func TestCompareWithGolden_Update(t *testing.T) {
	tmpDir := t.TempDir()
	goldenFile := filepath.Join(tmpDir, "out.golden")
	WriteGolden(t, goldenFile, []byte("stale"))

	t.Setenv(UpdateGoldenEnv, "1")
	CompareWithGolden(t, goldenFile, []byte("fresh"))

	written, err := os.ReadFile(goldenFile)
	if err != nil {
		t.Fatalf("failed to read golden file: %v", err)
	}
	if string(written) != "fresh" {
		t.Errorf("expected golden file to be rewritten, got %q", written)
	}
}

func TestCompareGoldenJSON(t *testing.T) {
	t.Setenv(UpdateGoldenEnv, "")

	goldenFile := filepath.Join(t.TempDir(), "out.json")
	value := map[string]any{"title": "Buy milk", "done": false}

	CompareGoldenJSON(t, goldenFile, value)

	var parsed map[string]any
	LoadFixtureJSON(t, goldenFile, &parsed)
	if parsed["title"] != "Buy milk" {
		t.Errorf("expected title to round trip, got %v", parsed["title"])
	}
}

func TestFixtureItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.json")
	body := `{"data":[{"id":1,"title":"a"},{"id":2,"attributes":{"title":"b"}}],"meta":{}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	items := FixtureItems(t, path)
	if len(items) != 2 {
		t.Fatalf("expected 2 raw items, got %d", len(items))
	}
	if string(items[1]) != `{"id":2,"attributes":{"title":"b"}}` {
		t.Errorf("raw item was altered: %s", items[1])
	}
}

func TestFixturePaths(t *testing.T) {
	if got := FixturePath("list.json"); got != filepath.Join("testdata", "list.json") {
		t.Errorf("unexpected fixture path %q", got)
	}
	if got := GoldenPath("list.json"); got != filepath.Join("testdata", "golden", "list.json") {
		t.Errorf("unexpected golden path %q", got)
	}
}

func TestRecordingServer(t *testing.T) {
	srv := NewRecordingServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": string(body)})
	}))

	resp, err := http.Post(srv.URL+"/api/todos?x=1", "application/json", strings.NewReader(`{"data":{}}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var echoed map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&echoed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if echoed["echo"] != `{"data":{}}` {
		t.Errorf("handler did not see the original body, got %q", echoed["echo"])
	}

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 recorded request, got %d", len(reqs))
	}
	if reqs[0].Method != http.MethodPost || reqs[0].Path != "/api/todos" || reqs[0].RawQuery != "x=1" {
		t.Errorf("unexpected recorded request %+v", reqs[0])
	}
	if srv.Count(http.MethodGet) != 0 || srv.Count("") != 1 {
		t.Errorf("unexpected counts: get=%d all=%d", srv.Count(http.MethodGet), srv.Count(""))
	}
}
