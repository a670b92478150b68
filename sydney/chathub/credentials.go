package chathub

import (
	"maps"
	"slices"
	"strings"
)

// Credentials is an opaque cookie jar supplied by the caller. An empty set
// means anonymous access.
type Credentials map[string]string

// CookieHeader renders the credentials as a Cookie header value. Names are
// sorted so the header is stable.
func (c Credentials) CookieHeader() string {
	if len(c) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, name := range slices.Sorted(maps.Keys(c)) {
		sb.WriteString(name)
		sb.WriteString("=")
		sb.WriteString(c[name])
		sb.WriteString("; ")
	}
	return sb.String()
}
