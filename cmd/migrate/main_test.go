package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestVersionFromFile(t *testing.T) {
	tests := []struct {
		name    string
		want    int64
		wantErr bool
	}{
		{"001_settlement_journal.up.sql", 1, false},
		{"012_indexes.up.sql", 12, false},
		{"nounderscore.sql", 0, true},
		{"abc_x.up.sql", 0, true},
	}
	for _, tc := range tests {
		got, err := versionFromFile(tc.name)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: error = %v, wantErr %v", tc.name, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestUpMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"002_b.up.sql", "001_a.up.sql", "001_a.down.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("--"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	got, err := upMigrations(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_a.up.sql", "002_b.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
