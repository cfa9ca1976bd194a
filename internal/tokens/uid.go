package tokens

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// EncodeUID renders a record id as the unpadded base64url segment used in links.
func EncodeUID(id uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(id), 10)))
}

// DecodeUID reverses EncodeUID. Padding is tolerated; anything that would not have been produced
// by EncodeUID for a positive id is ErrInvalid.
func DecodeUID(s string) (uint, error) {
	s = strings.TrimRight(s, "=")
	if s == "" {
		return 0, ErrInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, ErrInvalid
	}
	n, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil || n == 0 {
		return 0, ErrInvalid
	}
	id := uint(n)
	if EncodeUID(id) != s {
		return 0, ErrInvalid
	}
	return id, nil
}
