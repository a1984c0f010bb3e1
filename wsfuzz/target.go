package wsfuzz

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Headers the WebSocket handshake manages itself
var reservedHeaders = map[string]struct{}{
	"Upgrade":                  {},
	"Connection":               {},
	"Origin":                   {},
	"Sec-Websocket-Key":        {},
	"Sec-Websocket-Version":    {},
	"Sec-Websocket-Extensions": {},
}

// Target is the resolved endpoint every fuzz attempt connects to
type Target struct {
	URL     *url.URL // ws or wss
	Origin  string
	Cookie  string
	Headers []string // "Name: value" lines, attached in order
	Proxy   string   // host:port of an HTTP proxy, empty for direct connections
	// Insecure disables certificate verification for wss targets
	Insecure bool
}

// NewTarget resolves a user supplied target and URL path into a WebSocket endpoint
func NewTarget(rawTarget, urlPath string) (*Target, error) {
	u, err := ResolveTarget(rawTarget, urlPath)
	if err != nil {
		return nil, err
	}
	return &Target{
		URL:    u,
		Origin: originFor(u),
	}, nil
}

// ResolveTarget converts HTTP(S) or WS(S) targets to a WebSocket URL.
// A target without scheme is treated as https, the URL path may carry a query string.
// Percent-encoding in the target and the URL path is preserved on the wire.
func ResolveTarget(rawTarget, urlPath string) (*url.URL, error) {
	raw := strings.TrimSpace(rawTarget)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty target", ErrConfig)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: target %q: %v", ErrConfig, rawTarget, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("%w: unsupported target scheme %q", ErrConfig, u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: target %q has no host", ErrConfig, rawTarget)
	}

	extra, err := parseURLPath(urlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: url path %q: %v", ErrConfig, urlPath, err)
	}

	// Join the escaped forms too so percent-encoding typed by the operator is sent as is
	escaped := joinPath(u.EscapedPath(), extra.EscapedPath())
	u.Path = joinPath(u.Path, extra.Path)
	u.RawPath = escaped
	if extra.RawQuery != "" {
		if u.RawQuery != "" {
			u.RawQuery += "&" + extra.RawQuery
		} else {
			u.RawQuery = extra.RawQuery
		}
	}
	u.Fragment = ""

	return u, nil
}

// parseURLPath parses a path with optional query, a missing leading slash is added
func parseURLPath(p string) (*url.URL, error) {
	if p == "" {
		return &url.URL{}, nil
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return url.ParseRequestURI(p)
}

func joinPath(base, extra string) string {
	if extra == "" || extra == "/" {
		if base == "" {
			return "/"
		}
		return base
	}
	if !strings.HasPrefix(extra, "/") {
		extra = "/" + extra
	}
	if base == "" || base == "/" {
		return extra
	}
	return strings.TrimRight(base, "/") + extra
}

// originFor derives the Origin header from a ws(s) URL
func originFor(u *url.URL) string {
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// ParseProxy validates a proxy given as host:port and returns it normalized
func ParseProxy(spec string) (string, error) {
	s := strings.TrimSpace(spec)
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")

	if !strings.Contains(s, ":") {
		return "", fmt.Errorf("%w: proxy %q must be in the format hostname:port or ip:port", ErrConfig, spec)
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("%w: proxy %q: %v", ErrConfig, spec, err)
	}
	if host == "" {
		return "", fmt.Errorf("%w: proxy %q has no host", ErrConfig, spec)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("%w: proxy %q has invalid port", ErrConfig, spec)
	}

	return net.JoinHostPort(host, port), nil
}

// ParseHeader splits a "Name: value" line
func ParseHeader(line string) (string, string, error) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", fmt.Errorf("%w: header %q must be in the format Name: value", ErrConfig, line)
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("%w: header %q has an invalid name", ErrConfig, line)
	}
	if _, ok := reservedHeaders[http.CanonicalHeaderKey(name)]; ok {
		return "", "", fmt.Errorf("%w: header %s is set by the handshake", ErrConfig, name)
	}
	return name, strings.TrimSpace(value), nil
}

// SetProxy validates and stores an HTTP proxy address
func (t *Target) SetProxy(spec string) error {
	proxy, err := ParseProxy(spec)
	if err != nil {
		return err
	}
	t.Proxy = proxy
	return nil
}

// AddHeader validates and appends a custom handshake header
func (t *Target) AddHeader(line string) error {
	if _, _, err := ParseHeader(line); err != nil {
		return err
	}
	t.Headers = append(t.Headers, line)
	return nil
}

// RequestHeader builds the handshake headers: origin, cookie, then custom headers in order
func (t *Target) RequestHeader() http.Header {
	h := http.Header{}
	h.Set("Origin", t.Origin)
	if t.Cookie != "" {
		h.Add("Cookie", t.Cookie)
	}
	for _, line := range t.Headers {
		name, value, err := ParseHeader(line)
		if err != nil {
			continue
		}
		h.Add(name, value)
	}
	return h
}

// ProxyURL returns the proxy as an http URL, or nil for direct connections
func (t *Target) ProxyURL() *url.URL {
	if t.Proxy == "" {
		return nil
	}
	return &url.URL{Scheme: "http", Host: t.Proxy}
}
