package responseformat

import (
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		url    string
		accept string
		want   Format
	}{
		{"/x", "", FormatJSON},
		{"/x?format=json", "", FormatJSON},
		{"/x?format=msgpack", "", FormatMsgpack},
		{"/x?format=bogus", "", FormatJSON},
		{"/x", "application/msgpack", FormatMsgpack},
		{"/x?format=json", "application/msgpack", FormatJSON},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", tt.url, nil)
		if tt.accept != "" {
			r.Header.Set("Accept", tt.accept)
		}
		if got := FromRequest(r); got != tt.want {
			t.Errorf("FromRequest(%q, accept=%q) = %q, want %q", tt.url, tt.accept, got, tt.want)
		}
	}
}

func TestWriteMsgpack(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := Write(rec, FormatMsgpack, 200, map[string]int{"n": 3}); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/msgpack" {
		t.Fatalf("content type = %q", ct)
	}

	var decoded map[string]int
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["n"] != 3 {
		t.Fatalf("decoded = %v", decoded)
	}
}
