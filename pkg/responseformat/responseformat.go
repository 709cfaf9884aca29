// Package responseformat renders API payloads as JSON or MessagePack
// depending on what the caller asked for.
package responseformat

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Format identifies a wire encoding for API responses.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// FromRequest resolves the response format from the request: the
// `format` query parameter wins, then the Accept header, then JSON.
func FromRequest(r *http.Request) Format {
	switch r.URL.Query().Get("format") {
	case "msgpack":
		return FormatMsgpack
	case "json":
		return FormatJSON
	}
	if r.Header.Get("Accept") == "application/msgpack" {
		return FormatMsgpack
	}
	return FormatJSON
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

// Marshal encodes v in the format.
func (f Format) Marshal(v interface{}) ([]byte, error) {
	if f == FormatMsgpack {
		return msgpack.Marshal(v)
	}
	return json.Marshal(v)
}

// Write encodes v and sends it with the given status code.
func Write(w http.ResponseWriter, f Format, status int, v interface{}) error {
	body, err := f.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}
