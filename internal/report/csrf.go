package report

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// CSRFToken extracts the value of cookie name from a raw Cookie header string
// using the same match the page script applies to document.cookie. A missing
// cookie yields "".
func CSRFToken(cookieHeader, name string) string {
	re, err := regexp.Compile(`(^|;)\s*` + regexp.QuoteMeta(name) + `\s*=\s*([^;]+)`)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(cookieHeader)
	if m == nil {
		return ""
	}
	return m[2]
}

// Endpoint derives the report URL for a page: its path with a trailing slash,
// followed by segment. Query and fragment are dropped.
func Endpoint(pageURL, segment string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse page url %q: %w", pageURL, err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("page url %q is not absolute", pageURL)
	}
	p := u.Path
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	u.Path = p + segment
	u.RawPath = ""
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
