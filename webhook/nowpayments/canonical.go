package nowpayments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Canonicalize re-encodes a JSON document the way NOWPayments signs it:
// object keys sorted at every depth, no insignificant whitespace, no HTML
// escaping, line and paragraph separators left raw, and numbers in their
// shortest ECMAScript form.
func Canonicalize(body []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Maps encode with sorted keys and float64 encodes in ES6 style.
	if err := enc.Encode(normalizeZero(v)); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return unescapeSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// normalizeZero rewrites negative zero to zero at every depth.
func normalizeZero(v any) any {
	switch t := v.(type) {
	case float64:
		if t == 0 && math.Signbit(t) {
			return float64(0)
		}
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeZero(e)
		}
	case []any:
		for i, e := range t {
			t[i] = normalizeZero(e)
		}
	}
	return v
}

// unescapeSeparators turns the \u2028 and \u2029 escapes encoding/json
// always writes back into raw code points. Escape pairs are consumed whole,
// so an escaped backslash followed by "u2028" is left alone.
func unescapeSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		if i+5 < len(b) && b[i+1] == 'u' && string(b[i+2:i+5]) == "202" && (b[i+5] == '8' || b[i+5] == '9') {
			if b[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}
