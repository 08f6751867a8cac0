package format

import (
	"encoding/json"
	"fmt"
	"io"
)

// Write writes CLI output as strict JSON.
//
// NOTE: Output stays strict JSON only. If you need to communicate how to
// fetch more data, use a `meta` object or `_hint` fields.
func Write(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}
