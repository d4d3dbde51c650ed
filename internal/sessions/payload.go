package sessions

import (
	"errors"
	"strconv"
	"strings"
)

// PayloadPrefix starts every string encoded in a session QR code.
const PayloadPrefix = "ATTENDQR_SESSION_"

// ErrMalformedPayload is returned by ParsePayload for anything that is not a session code.
var ErrMalformedPayload = errors.New("malformed session payload")

// EncodePayload returns the text carried by the QR code of session id.
func EncodePayload(id int64) string {
	return PayloadPrefix + strconv.FormatInt(id, 10)
}

// ParsePayload extracts the session id from a scanned code. Scanners often append a
// newline, so surrounding whitespace is ignored; everything after the prefix must be
// decimal digits forming a positive id.
func ParsePayload(payload string) (int64, error) {
	payload = strings.TrimSpace(payload)
	rest, ok := strings.CutPrefix(payload, PayloadPrefix)
	if !ok || rest == "" {
		return 0, ErrMalformedPayload
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, ErrMalformedPayload
		}
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMalformedPayload
	}
	return id, nil
}
