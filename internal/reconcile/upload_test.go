package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint([]byte("hello"))
	b := Fingerprint([]byte("hello"))
	c := Fingerprint([]byte("hello "))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestDecodeUploadUTF8(t *testing.T) {
	in := []byte("name,category\nRené,Avocation\n")
	assert.Equal(t, string(in), DecodeUpload(in))
}

func TestDecodeUploadLatin1(t *testing.T) {
	// "René" with a Latin-1 encoded é (0xE9), invalid as UTF-8.
	in := []byte{'R', 'e', 'n', 0xE9}
	assert.Equal(t, "René", DecodeUpload(in))
}
