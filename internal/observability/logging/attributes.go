package logging

import (
	"log/slog"
	"net/url"
)

type redactedURL struct {
	url *url.URL
	raw string
}

// LogValue prints the URL with any password masked. A string that does not
// parse as a URL is logged as given.
func (r redactedURL) LogValue() slog.Value {
	u := r.url
	if u == nil {
		if r.raw == "" {
			return slog.StringValue("")
		}
		parsed, err := url.Parse(r.raw)
		if err != nil {
			return slog.StringValue(r.raw)
		}
		u = parsed
	}
	return slog.StringValue(u.Redacted())
}

// RedactURL wraps u so its credentials stay out of the logs
func RedactURL(u *url.URL) slog.LogValuer {
	return redactedURL{url: u}
}

// RedactStringURL is RedactURL for connection strings such as redis:// addresses
func RedactStringURL(s string) slog.LogValuer {
	return redactedURL{raw: s}
}
