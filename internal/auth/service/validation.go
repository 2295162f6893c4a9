package service

import (
	"net/url"
	"regexp"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt input limit
)

func validateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return "invalid email format"
	}
	return ""
}

func validatePassword(password string) string {
	if len(password) < minPasswordLen {
		return "password must be at least 8 characters"
	}
	if len(password) > maxPasswordLen {
		return "password must be at most 72 bytes"
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return "password must contain at least one uppercase letter"
	}
	if !hasLower {
		return "password must contain at least one lowercase letter"
	}
	if !hasNumber {
		return "password must contain at least one number"
	}
	if !hasSymbol {
		return "password must contain at least one symbol"
	}
	return ""
}

// validatePhone accepts an empty phone (optional field).
func validatePhone(phone string) string {
	if phone == "" {
		return ""
	}
	if !phonePattern.MatchString(phone) {
		return "phone must be 7 to 15 digits with an optional leading +"
	}
	return ""
}

func validateAvatarURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "avatar must be an http or https URL"
	}
	return ""
}

func validCode(code string) bool { return codePattern.MatchString(code) }
