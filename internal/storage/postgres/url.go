package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

// ConstructDatabaseURL points databaseURL at databaseName.
// This function:
// - Replaces any database already present in the URL path
// - Keeps existing query parameters
// - Adds sslmode=disable if not present
// An empty databaseName returns the URL unchanged.
func ConstructDatabaseURL(databaseURL, databaseName string) (string, error) {
	if databaseName == "" {
		return databaseURL, nil
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported database URL scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(databaseName, "/")

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
