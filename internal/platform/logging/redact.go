package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

var (
	bearerPattern = regexp.MustCompile(`(?i)^bearer\s+.+$`)
	basicPattern  = regexp.MustCompile(`(?i)^basic\s+.+$`)

	// Session tokens handed out by the login endpoint.
	sessionTokenPattern = regexp.MustCompile(`^TOKEN-\d+-[0-9a-f]{8}$`)
)

// DefaultRedactOptions returns the masq options applied to every handler.
// Field names are matched exactly, so both the attribute key spelling and
// the exported struct field spelling are listed.
func DefaultRedactOptions() []masq.Option {
	return []masq.Option{
		masq.WithFieldName("password"),
		masq.WithFieldName("Password"),
		masq.WithFieldName("PasswordHash"),
		masq.WithFieldName("password_hash"),
		masq.WithFieldName("token"),
		masq.WithFieldName("Token"),
		masq.WithFieldName("secret"),
		masq.WithFieldName("apiKey"),
		masq.WithFieldName("api_key"),
		masq.WithFieldName("accessToken"),
		masq.WithFieldName("access_token"),
		masq.WithFieldName("authorization"),
		masq.WithFieldName("Authorization"),
		masq.WithFieldName("auth"),
		masq.WithFieldName("cookie"),
		masq.WithFieldName("privateKey"),
		masq.WithFieldName("secretKey"),

		masq.WithFieldPrefix("secret"),
		masq.WithFieldPrefix("private"),

		masq.WithRegex(bearerPattern),
		masq.WithRegex(basicPattern),
		masq.WithRegex(sessionTokenPattern),
	}
}

// NewReplaceAttr builds a slog ReplaceAttr func that redacts sensitive
// values. Extra options are appended to DefaultRedactOptions.
func NewReplaceAttr(opts ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	all := append(DefaultRedactOptions(), opts...)
	return masq.New(all...)
}
