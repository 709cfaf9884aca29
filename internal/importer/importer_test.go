package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestTenths(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"311", f(31.1)},
		{"0", f(0)},
		{"-55", f(-5.5)},
		{"", nil},
		{"abc", nil},
	}
	for _, tt := range tests {
		got := tenths(tt.in)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("tenths(%q) = %v, want nil", tt.in, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("tenths(%q) = %v, want %v", tt.in, got, *tt.want)
		}
	}
}

func f(v float64) *float64 { return &v }

func TestIngestCSVRejectsNonWideSchema(t *testing.T) {
	im := New("", nil, nil, zap.NewNop().Sugar())

	tests := []string{
		"DATE,VALUE\n2026-08-01,5\n",
		"STATION,VALUE\nUSW00024229,5\n",
		"STATION,DATE,SNOW\nUSW00024229,2026-08-01,0\n",
	}
	for _, csv := range tests {
		result, err := im.ingestCSV(context.Background(), strings.NewReader(csv), nil)
		if err != nil {
			t.Fatalf("ingestCSV returned error: %v", err)
		}
		if result.wide {
			t.Errorf("header %q detected as wide schema", strings.SplitN(csv, "\n", 2)[0])
		}
	}
}

func TestIngestCSVEmptyInput(t *testing.T) {
	im := New("", nil, nil, zap.NewNop().Sugar())
	result, err := im.ingestCSV(context.Background(), strings.NewReader(""), nil)
	if err != nil {
		t.Fatalf("ingestCSV returned error: %v", err)
	}
	if result.wide || result.rows != 0 {
		t.Fatalf("empty input produced %+v", result)
	}
}

func TestStateStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenStateStore(path)
	if err != nil {
		t.Fatalf("OpenStateStore error: %v", err)
	}
	defer s.Close()

	if v, err := s.Get("GHCND:USW00024229"); err != nil || v != 0 {
		t.Fatalf("unseen key = (%d, %v), want (0, nil)", v, err)
	}

	if err := s.Put("GHCND:USW00024229", 1724500000000); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if v, err := s.Get("GHCND:USW00024229"); err != nil || v != 1724500000000 {
		t.Fatalf("Get = (%d, %v)", v, err)
	}

	// Upsert replaces the recorded mtime.
	if err := s.Put("GHCND:USW00024229", 1724600000000); err != nil {
		t.Fatalf("second Put error: %v", err)
	}
	if v, _ := s.Get("GHCND:USW00024229"); v != 1724600000000 {
		t.Fatalf("updated mtime = %d", v)
	}
}

func TestStateStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenStateStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ArchiveStateKey, 42); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := OpenStateStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if v, _ := s2.Get(ArchiveStateKey); v != 42 {
		t.Fatalf("persisted value = %d, want 42", v)
	}
}
