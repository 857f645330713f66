package respond

import (
	"regexp"
)

var (
	// Slack bot, user and refresh tokens (xoxb-, xoxp-, xoxe-...).
	slackTokenPattern = regexp.MustCompile(`xox[a-z]-[A-Za-z0-9-]+`)
	// Authorization header values echoed into provider errors.
	bearerPattern = regexp.MustCompile(`((?i:bearer)|Bot) [A-Za-z0-9._~+/=-]+`)
	// Password inside a DSN.
	dbPasswordPattern = regexp.MustCompile(`://([^:/@]+):([^@]+)@`)
)

// SanitizeError returns err's message with credentials masked. It is used
// before an internal error reaches a log line.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = slackTokenPattern.ReplaceAllString(msg, "xox*-****")
	msg = bearerPattern.ReplaceAllString(msg, "$1 ****")
	msg = dbPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	return msg
}
