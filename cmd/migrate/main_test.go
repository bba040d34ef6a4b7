package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		version  int
		name     string
		ok       bool
	}{
		{"0001_create_verb_patterns.sql", 1, "create_verb_patterns", true},
		{"0012_add_metadata.sql", 12, "add_metadata", true},
		{"001_too_short.sql", 0, "", false},
		{"0001_missing_extension", 0, "", false},
		{"0001.sql", 0, "", false},
		{"README.md", 0, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tc.filename)
			if ok != tc.ok || version != tc.version || name != tc.name {
				t.Errorf("parseMigrationFilename(%q) = (%d, %q, %v), want (%d, %q, %v)",
					tc.filename, version, name, ok, tc.version, tc.name, tc.ok)
			}
		})
	}
}

func TestSubstitutePlaceholders(t *testing.T) {
	sql := "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.verb_patterns` (verb STRING)"
	got := substitutePlaceholders(sql, "proj", "books")
	want := "CREATE TABLE `proj.books.verb_patterns` (verb STRING)"
	if got != want {
		t.Errorf("substitutePlaceholders = %q, want %q", got, want)
	}
}

func TestReadMigrationsSortsAndChecksums(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_second.sql": "SELECT 2",
		"0001_first.sql":  "SELECT 1 FROM `{{PROJECT_ID}}.{{DATASET_ID}}.t`",
		"notes.txt":       "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
	}

	migrations, err := readMigrations(dir, "proj", "books")
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len = %d, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("order = %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].SQL != "SELECT 1 FROM `proj.books.t`" {
		t.Errorf("SQL not substituted: %q", migrations[0].SQL)
	}
	if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
		t.Errorf("checksums: %q vs %q", migrations[0].Checksum, migrations[1].Checksum)
	}
}
