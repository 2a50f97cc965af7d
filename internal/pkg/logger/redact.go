package logger

import "strings"

// RedactEmail masks the local part of an address before it reaches a log
// line: "john.doe@example.com" becomes "jo***@example.com". Local parts of
// two characters or fewer are masked entirely, and anything that does not
// look like an address comes back as "***@***".
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
