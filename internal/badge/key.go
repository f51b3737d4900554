package badge

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Extension is the file extension used for every stored badge.
const Extension = ".svg"

// KeySize is the length of a Key in bytes.
const KeySize = md5.Size

// Key is the storage key of a badge, derived from its name.
// Keys are one-way: the name cannot be recovered from a key.
type Key [KeySize]byte

// KeyOf returns the storage key for a badge name. The same name always
// yields the same key.
//
// MD5 keeps the on-disk layout compatible with existing badge directories;
// it is used for addressing only, not for integrity.
func KeyOf(name string) Key {
	return Key(md5.Sum([]byte(name)))
}

// ParseKey parses the hex form produced by Key.String.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != hex.EncodedLen(KeySize) {
		return k, fmt.Errorf("invalid badge key %q: want %d hex characters", s, hex.EncodedLen(KeySize))
	}
	if _, err := hex.Decode(k[:], []byte(strings.ToLower(s))); err != nil {
		return k, fmt.Errorf("invalid badge key %q: %w", s, err)
	}
	return k, nil
}

// String returns the lower-case hex form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// FileName returns the name of the file holding the badge: {hex}.svg
func (k Key) FileName() string {
	return k.String() + Extension
}

// ParseFileName is the inverse of Key.FileName. It reports false for any
// name that is not a badge file.
func ParseFileName(name string) (Key, bool) {
	stem, ok := strings.CutSuffix(name, Extension)
	if !ok {
		return Key{}, false
	}
	k, err := ParseKey(stem)
	if err != nil {
		return Key{}, false
	}
	return k, true
}

// CompositeName returns the badge name of one item in a coverage report.
func CompositeName(report, label string) string {
	return report + "-" + label
}
