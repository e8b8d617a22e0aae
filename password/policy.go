package password

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

var (
	ErrTooShort      = errors.New("password too short")
	ErrTooLong       = errors.New("password too long")
	ErrMissingLetter = errors.New("password must contain a letter")
	ErrMissingDigit  = errors.New("password must contain a digit")
)

// Policy is the composition rule applied to new passwords. Lengths count runes.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
}

// DefaultPolicy returns the policy applied at signup, reset and provisioning.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     128,
		RequireLetter: true,
		RequireDigit:  true,
	}
}

// Validate returns the first rule password breaks, or nil.
func (p Policy) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	if n < p.MinLength {
		return fmt.Errorf("%w: minimum %d characters", ErrTooShort, p.MinLength)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return fmt.Errorf("%w: maximum %d characters", ErrTooLong, p.MaxLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if p.RequireLetter && !hasLetter {
		return ErrMissingLetter
	}
	if p.RequireDigit && !hasDigit {
		return ErrMissingDigit
	}
	return nil
}
