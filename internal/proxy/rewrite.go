package proxy

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

var (
	attrPattern   = regexp.MustCompile(`(?i)(href|src)=["']([^"']+)["']`)
	headPattern   = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)
	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

// Rewrite points every relative href and src attribute in body at
// proxyPath?url=<absolute url>. Values that already carry a scheme, start
// with // or with # are left alone, as are values that do not parse.
func Rewrite(body string, target *url.URL, proxyPath string) string {
	origin := &url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/"}

	return attrPattern.ReplaceAllStringFunc(body, func(match string) string {
		groups := attrPattern.FindStringSubmatch(match)
		attr, value := groups[1], groups[2]

		if isAbsolute(value) {
			return match
		}

		ref, err := url.Parse(html.UnescapeString(value))
		if err != nil {
			return match
		}
		abs := origin.ResolveReference(ref)

		return attr + `="` + proxyPath + "?url=" + url.QueryEscape(abs.String()) + `"`
	})
}

func isAbsolute(value string) bool {
	return strings.HasPrefix(value, "//") ||
		strings.HasPrefix(value, "#") ||
		schemePattern.MatchString(value)
}

// InjectBase inserts <base href="target"> right after the first opening head
// tag. A document without a head tag is returned unchanged.
func InjectBase(body, target string) string {
	loc := headPattern.FindStringIndex(body)
	if loc == nil {
		return body
	}

	base := `<base href="` + html.EscapeString(target) + `">`
	return body[:loc[1]] + base + body[loc[1]:]
}
