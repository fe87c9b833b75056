package ops

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hpungsan/mediasync/internal/config"
	"github.com/hpungsan/mediasync/internal/db"
	"github.com/hpungsan/mediasync/internal/library"
	"github.com/hpungsan/mediasync/internal/session"
)

var byWeight = ViewOptions{Sort: "weight"}

type testEnv struct {
	browser *Browser
	cache   *session.Cache
	db      *sql.DB
	cfg     *config.Config
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Init(dir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	intervals := session.Intervals{
		Library:  30 * time.Millisecond,
		Cursor:   10 * time.Millisecond,
		Query:    20 * time.Millisecond,
		Previous: 30 * time.Millisecond,
	}
	cache := session.New(db.NewSessionStore(database), intervals, zaptest.NewLogger(t))
	cache.Init(context.Background())
	t.Cleanup(func() { _ = cache.Close(context.Background()) })

	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{dir}

	return &testEnv{
		browser: NewBrowser(cache, database, cfg, zaptest.NewLogger(t)),
		cache:   cache,
		db:      database,
		cfg:     cfg,
		dir:     dir,
	}
}

func weightedItems(pairs ...any) []library.Item {
	var out []library.Item
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, library.Item{Path: pairs[i].(string), Weight: library.Float(pairs[i+1].(float64))})
	}
	return out
}

func pathsOf(items []library.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}

func key(path string) library.Key {
	return library.KeyOf(path, nil)
}
