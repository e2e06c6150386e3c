package database

import (
	"strings"
	"testing"
)

func TestMigrationsAreOrderedAndNonEmpty(t *testing.T) {
	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for i, m := range migrations {
		if strings.TrimSpace(m.SQL) == "" {
			t.Fatalf("migration %s is empty", m.Version)
		}
		if i > 0 && migrations[i-1].Version >= m.Version {
			t.Fatalf("migrations out of order: %s before %s", migrations[i-1].Version, m.Version)
		}
	}
	if migrations[0].Version != "0001_identity" {
		t.Fatalf("unexpected first migration %s", migrations[0].Version)
	}
}
