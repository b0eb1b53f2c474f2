package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Fingerprint is the content hash of an uploaded file, used as the
// idempotency key.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// DecodeUpload turns raw upload bytes into text: UTF-8 when valid,
// Latin-1 otherwise. Hand-edited spreadsheets saved on older systems are
// the usual Latin-1 source.
func DecodeUpload(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
