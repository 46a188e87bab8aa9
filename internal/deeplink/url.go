// Package deeplink decodes alert-tap routes and hands them to the
// application exactly once.
package deeplink

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	Scheme = "request-mastermind"
	Host   = "open"
)

// BuildURL returns the tap URL carrying route.
func BuildURL(route string) string {
	return Scheme + "://" + Host + "?route=" + url.QueryEscape(route)
}

var routeParam = regexp.MustCompile(`[?&](?:route|path)=([^&#]+)`)

// RouteFromURL extracts the route from a tap URL: the route or path query
// parameter first, then the URL path, then a loose scan of the raw string
// for URLs that do not parse.
func RouteFromURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if u, err := url.Parse(raw); err == nil {
		q := u.Query()
		for _, k := range []string{"route", "path"} {
			if v := strings.TrimSpace(q.Get(k)); v != "" {
				return v, true
			}
		}
		if p := u.Path; p != "" && p != "/" {
			return p, true
		}
		if u.Scheme != "" {
			return "", false
		}
	}
	if m := routeParam.FindStringSubmatch(raw); m != nil {
		if v, err := url.QueryUnescape(m[1]); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// DefaultAliases maps deprecated routes to their current form.
func DefaultAliases() map[string]string {
	return map[string]string{
		"/specialist/new-orders": "/specialist-orders/new",
	}
}

// Remap rewrites a deprecated route. Query strings are kept.
func Remap(route string, aliases map[string]string) string {
	path, query, hasQuery := strings.Cut(route, "?")
	if to, ok := aliases[strings.TrimRight(path, "/")]; ok {
		path = to
	} else if to, ok := aliases[path]; ok {
		path = to
	}
	if hasQuery {
		return path + "?" + query
	}
	return path
}
