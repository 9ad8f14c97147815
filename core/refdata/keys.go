package refdata

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Reference entries travel through HTML form widgets as a single opaque
// value so both the numeric id and its display label survive the round trip
// without a second remote lookup.

// EncodeKey builds the composite "<id>-<base64(label)>" form value.
func EncodeKey(id int, label string) string {
	return strconv.Itoa(id) + "-" + base64.StdEncoding.EncodeToString([]byte(label))
}

// DecodeKey splits a composite key back into id and label. The id is taken
// up to the first "-" and the remainder is decoded as one base64 segment, so
// labels that themselves contain "-" (e.g. "Summer-2025") are preserved.
func DecodeKey(key string) (int, string, error) {
	idx := strings.Index(key, "-")
	if idx < 1 {
		return 0, "", errors.Errorf("malformed reference key %q", key)
	}
	id, err := strconv.Atoi(key[:idx])
	if err != nil {
		return 0, "", errors.Wrapf(err, "malformed reference key %q", key)
	}
	label, err := base64.StdEncoding.DecodeString(key[idx+1:])
	if err != nil {
		return 0, "", errors.Wrapf(err, "malformed reference key %q", key)
	}
	return id, string(label), nil
}

// KeyID returns just the id part of a composite key.
func KeyID(key string) (int, error) {
	id, _, err := DecodeKey(key)
	return id, err
}
