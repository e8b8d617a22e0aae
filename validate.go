package otpgate

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxEmailLength    = 254
	maxFullNameLength = 100
	minPhoneDigits    = 7
	maxPhoneDigits    = 15
)

// validateEmail expects an already normalized address.
func validateEmail(email string) error {
	if email == "" {
		return invalidField("email", "required")
	}
	if len(email) > maxEmailLength {
		return invalidField("email", "too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidField("email", "malformed")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return invalidField("email", "malformed")
	}
	return nil
}

// validatePhone expects an already normalized number: digits with an optional
// leading '+'.
func validatePhone(phone string) error {
	if phone == "" {
		return invalidField("phone", "required")
	}
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return invalidField("phone", "must have 7 to 15 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return invalidField("phone", "must contain only digits")
		}
	}
	return nil
}

func validateFullName(name string) error {
	if name == "" {
		return invalidField("full_name", "required")
	}
	if utf8.RuneCountInString(name) > maxFullNameLength {
		return invalidField("full_name", "too long")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return invalidField("full_name", "contains control characters")
		}
	}
	return nil
}

func (e *Engine) validatePassword(pw string) error {
	if err := e.config.Password.Policy.Validate(pw); err != nil {
		return invalidField("password", err.Error())
	}
	return nil
}
