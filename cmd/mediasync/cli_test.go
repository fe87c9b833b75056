package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/hpungsan/mediasync/internal/config"
	"github.com/hpungsan/mediasync/internal/db"
	"github.com/hpungsan/mediasync/internal/ops"
	"github.com/hpungsan/mediasync/internal/session"
)

// setupTestBrowser creates a temporary database, session cache and browser.
// The returned directory is allowed for export and import.
func setupTestBrowser(t *testing.T) (*ops.Browser, string) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cache := session.New(db.NewSessionStore(database), session.Intervals{
		Library:  20 * time.Millisecond,
		Cursor:   5 * time.Millisecond,
		Query:    10 * time.Millisecond,
		Previous: 20 * time.Millisecond,
	}, zaptest.NewLogger(t))
	cache.Init(context.Background())
	t.Cleanup(func() { _ = cache.Close(context.Background()) })

	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{tmpDir}
	return ops.NewBrowser(cache, database, cfg, zaptest.NewLogger(t)), tmpDir
}

// runCLI runs the app with args and returns what it printed to stdout.
func runCLI(t *testing.T, b *ops.Browser, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	app := newCLIApp(b)
	runErr := app.Run(append([]string{"mediasync"}, args...))

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return buf.String(), runErr
}

func decodeOutput(t *testing.T, out string) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
	return result
}

// TestParseTags tests the parseTags helper function.
func TestParseTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single tag",
			input:    "beach",
			expected: []string{"beach"},
		},
		{
			name:     "tags with spaces",
			input:    " beach , night ",
			expected: []string{"beach", "night"},
		},
		{
			name:     "empty tags filtered",
			input:    "beach,,night,",
			expected: []string{"beach", "night"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseTags(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("expected %d tags, got %d", len(tt.expected), len(result))
				return
			}
			for i, tag := range result {
				if tag != tt.expected[i] {
					t.Errorf("expected tag[%d]=%q, got %q", i, tt.expected[i], tag)
				}
			}
		})
	}
}

func TestCLILoadAndView(t *testing.T) {
	b, _ := setupTestBrowser(t)

	out, err := runCLI(t, b, "load", "--initial=b.jpg", "a.jpg", "b.jpg", "c.mp4")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	loaded := decodeOutput(t, out)
	if loaded["count"] != float64(3) {
		t.Errorf("count = %v, want 3", loaded["count"])
	}
	if loaded["cursor"] != float64(1) {
		t.Errorf("cursor = %v, want 1", loaded["cursor"])
	}

	out, err = runCLI(t, b, "view", "--kind=image", "--sort=name")
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	view := decodeOutput(t, out)
	if view["total"] != float64(2) {
		t.Errorf("total = %v, want 2", view["total"])
	}
}

func TestCLIMoveAndJump(t *testing.T) {
	b, _ := setupTestBrowser(t)

	if _, err := runCLI(t, b, "load", "a.jpg", "b.jpg", "c.jpg"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	out, err := runCLI(t, b, "move", "--delta", "-1")
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	moved := decodeOutput(t, out)
	if moved["index"] != float64(2) {
		t.Errorf("index = %v, want 2 (wrapped)", moved["index"])
	}

	out, err = runCLI(t, b, "jump", "--scroll=12.5", "4")
	if err != nil {
		t.Fatalf("jump failed: %v", err)
	}
	jumped := decodeOutput(t, out)
	if jumped["index"] != float64(1) {
		t.Errorf("index = %v, want 1", jumped["index"])
	}
	if jumped["scroll_position"] != 12.5 {
		t.Errorf("scroll_position = %v, want 12.5", jumped["scroll_position"])
	}

	if _, err := runCLI(t, b, "jump", "x"); err == nil {
		t.Error("expected error for non-numeric index")
	}
}

func TestCLIDropAndRenumber(t *testing.T) {
	b, _ := setupTestBrowser(t)

	if _, err := runCLI(t, b, "load", "a.jpg", "b.jpg", "c.jpg"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := runCLI(t, b, "renumber"); err != nil {
		t.Fatalf("renumber failed: %v", err)
	}

	out, err := runCLI(t, b, "drop", "--side=right", "a.jpg", "c.jpg")
	if err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	dropped := decodeOutput(t, out)
	if dropped["weight"] != 3.5 {
		t.Errorf("weight = %v, want 3.5", dropped["weight"])
	}

	_, err = runCLI(t, b, "drop", "--sort=name", "a.jpg", "b.jpg")
	if err == nil || !strings.Contains(err.Error(), "WRONG_SORT") {
		t.Errorf("expected WRONG_SORT, got %v", err)
	}
}

func TestCLIItem(t *testing.T) {
	b, _ := setupTestBrowser(t)

	if _, err := runCLI(t, b, "load", "a.jpg", "clip.mp4"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	out, err := runCLI(t, b, "item", "clip.mp4")
	if err != nil {
		t.Fatalf("item failed: %v", err)
	}
	item := decodeOutput(t, out)
	if item["path"] != "clip.mp4" {
		t.Errorf("path = %v, want clip.mp4", item["path"])
	}

	_, err = runCLI(t, b, "item", "--stamp=3", "clip.mp4")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND for unknown stamp, got %v", err)
	}

	if _, err := runCLI(t, b, "item"); err == nil {
		t.Error("expected error without a path")
	}
}

func TestCLIQuery(t *testing.T) {
	b, _ := setupTestBrowser(t)

	out, err := runCLI(t, b, "query", "--tags=Beach,night", "--text=trip")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	q := decodeOutput(t, out)
	if q["active_tag"] != "beach" {
		t.Errorf("active_tag = %v, want beach", q["active_tag"])
	}

	out, err = runCLI(t, b, "query")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	q = decodeOutput(t, out)
	if q["text_filter"] != "trip" {
		t.Errorf("text_filter = %v, want trip", q["text_filter"])
	}
}

func TestCLISession(t *testing.T) {
	b, _ := setupTestBrowser(t)

	if _, err := runCLI(t, b, "load", "a.jpg"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := runCLI(t, b, "session", "flush"); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	out, err := runCLI(t, b, "session", "show")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	data := decodeOutput(t, out)
	if _, ok := data["library"]; !ok {
		t.Error("expected library slot")
	}

	if _, err := runCLI(t, b, "session", "show", "thumbnails"); err == nil {
		t.Error("expected error for unknown slot")
	}

	if _, err := runCLI(t, b, "session", "clear", "library"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if b.Cache().Library() != nil {
		t.Error("library should be cleared")
	}
	if b.Cache().Cursor() == nil {
		t.Error("cursor should be kept")
	}
}

func TestCLIExportImport(t *testing.T) {
	b, dir := setupTestBrowser(t)

	if _, err := runCLI(t, b, "load", "a.jpg", "b.jpg"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	path := filepath.Join(dir, "snap.json")

	out, err := runCLI(t, b, "export", "--path="+path)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	exported := decodeOutput(t, out)
	if exported["path"] != path {
		t.Errorf("path = %v, want %s", exported["path"], path)
	}

	if _, err := runCLI(t, b, "session", "clear"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, err := runCLI(t, b, "import", "--path="+path); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	lib := b.Cache().Library()
	if lib == nil || len(lib.Items) != 2 {
		t.Fatalf("library after import = %+v, want 2 items", lib)
	}
}

func TestCLIErrorHandling(t *testing.T) {
	b, _ := setupTestBrowser(t)

	_, err := runCLI(t, b, "back")
	if err == nil {
		t.Fatal("expected error for back without a previous library")
	}
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND in error, got: %v", err)
	}
}
