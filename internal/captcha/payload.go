package captcha

import (
	"errors"
	"strconv"
	"strings"
)

var ErrMalformedPayload = errors.New("malformed captcha payload")

const payloadPrefix = "cap"

// Payload is the data carried by one answer button.
type Payload struct {
	Value  int
	UserID int64
}

// String renders "cap_<value>_<userID>". Negative values are allowed.
func (p Payload) String() string {
	return payloadPrefix + "_" + strconv.Itoa(p.Value) + "_" + strconv.FormatInt(p.UserID, 10)
}

// IsPayload reports whether data looks like an answer button, without
// validating it.
func IsPayload(data string) bool {
	return strings.HasPrefix(data, payloadPrefix+"_")
}

// ParsePayload is the inverse of Payload.String. Any deviation from the
// format returns ErrMalformedPayload.
func ParsePayload(data string) (Payload, error) {
	rest, ok := strings.CutPrefix(data, payloadPrefix+"_")
	if !ok {
		return Payload{}, ErrMalformedPayload
	}
	// The value may be negative, so split on the last separator.
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 || i == len(rest)-1 {
		return Payload{}, ErrMalformedPayload
	}
	v, err := strconv.Atoi(rest[:i])
	if err != nil {
		return Payload{}, ErrMalformedPayload
	}
	// Any integer is a valid identity; ownership is checked by the gate.
	uid, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return Payload{}, ErrMalformedPayload
	}
	return Payload{Value: v, UserID: uid}, nil
}
