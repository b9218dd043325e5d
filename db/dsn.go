package db

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/quailyquaily/execguard/internal/pathutil"
)

const defaultDSN = "~/.execguard/execguard.db"

// ResolveSQLiteDSN normalizes a sqlite DSN: expands a leading ~, creates the
// parent directory, and appends the busy-timeout pragma so concurrent writers
// back off instead of failing.
func ResolveSQLiteDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = defaultDSN
	}
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") {
		return dsn, nil
	}

	path := dsn
	query := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i+1:]
	}
	path = strings.TrimPrefix(path, "file:")
	path = pathutil.ExpandHomePath(path)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	q, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("parse sqlite dsn params: %w", err)
	}
	if !hasPragma(q, "busy_timeout") {
		q.Add("_pragma", "busy_timeout(5000)")
	}
	return path + "?" + q.Encode(), nil
}

func hasPragma(q url.Values, name string) bool {
	for _, v := range q["_pragma"] {
		if strings.HasPrefix(strings.TrimSpace(v), name) {
			return true
		}
	}
	return false
}
