package gate

import (
	"errors"

	"gatebot/internal/captcha"
)

var (
	ErrUnauthorized = errors.New("captcha belongs to another user or is not pending")
	ErrExpired      = errors.New("captcha expired")
	ErrWrongAnswer  = errors.New("wrong captcha answer")
)

// Outcome is the terminal state of one answer.
type Outcome int

const (
	OutcomeVerified Outcome = iota
	OutcomeWrong
	OutcomeExpired
	OutcomeUnauthorized
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeWrong:
		return "wrong"
	case OutcomeExpired:
		return "expired"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Err maps a rejecting outcome to its sentinel error. Verified maps to nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeVerified:
		return nil
	case OutcomeWrong:
		return ErrWrongAnswer
	case OutcomeExpired:
		return ErrExpired
	case OutcomeUnauthorized:
		return ErrUnauthorized
	default:
		return captcha.ErrMalformedPayload
	}
}
