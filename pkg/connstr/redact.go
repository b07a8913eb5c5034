package connstr

import (
	"net/url"
)

// RedactedPassword is the mask written in place of a password in stored URLs.
const RedactedPassword = "***"

// RedactPassword masks the password component of a URL.
// URLs that cannot be parsed, or carry no password, are returned unchanged.
func RedactPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); !has {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), RedactedPassword)
	return u.String()
}

// InjectPassword fills a missing or masked password into a URL.
// It is a no-op when password is empty, when the URL already carries a real password,
// when the URL has no user, or when it cannot be parsed.
func InjectPassword(raw, password string) string {
	if password == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if current, has := u.User.Password(); has && current != "" && current != RedactedPassword {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String()
}

// IsMasked reports whether the URL's password is the redaction mask.
func IsMasked(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return false
	}
	p, has := u.User.Password()
	return has && p == RedactedPassword
}

// Password returns the password component of a URL, if any.
func Password(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return ""
	}
	p, _ := u.User.Password()
	return p
}
