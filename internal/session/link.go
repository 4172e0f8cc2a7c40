package session

import (
	"net/url"
	"path"
	"strings"
)

// VerificationIDFromLink returns the verificationId query parameter of link,
// or its last path segment when the parameter is absent. It returns "" when
// neither yields a value.
func VerificationIDFromLink(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	if id := u.Query().Get("verificationId"); id != "" {
		return id
	}
	last := path.Base(strings.TrimRight(u.Path, "/"))
	if last == "." || last == "/" {
		return ""
	}
	return last
}
