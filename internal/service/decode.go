package service

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeLine interprets a raw log line as UTF-8 when valid, falling back
// to Latin-1 otherwise. Exports from older collectors still arrive in
// Latin-1, and the fallback can never fail since every byte maps.
func decodeLine(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
