package main

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/moisturizer/internal/store"
	"github.com/alfredjeanlab/moisturizer/internal/store/memory"
	"github.com/alfredjeanlab/moisturizer/internal/store/postgres"
	"github.com/alfredjeanlab/moisturizer/internal/store/sqlite"
)

// openStore selects a backend by the scheme of databaseURL.
func openStore(databaseURL string) (store.Store, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		st, err := postgres.New(databaseURL)
		return st, "postgres", err
	case strings.HasPrefix(databaseURL, "sqlite:"):
		st, err := sqlite.Open(strings.TrimPrefix(strings.TrimPrefix(databaseURL, "sqlite:"), "//"))
		return st, "sqlite", err
	case strings.HasPrefix(databaseURL, "file:"):
		st, err := sqlite.Open(strings.TrimPrefix(databaseURL, "file:"))
		return st, "sqlite", err
	case databaseURL == "memory:":
		return memory.New(), "memory", nil
	}
	return nil, "", fmt.Errorf("unsupported MOIST_DATABASE_URL %q (want postgres://, sqlite:, file: or memory:)", databaseURL)
}
