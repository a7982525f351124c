package utils

import (
	"net/url"
	"strings"
)

// IPFSGateway public gateway ipfs:// URIs are rewritten to
const IPFSGateway = "https://ipfs.io/ipfs/"

// SanitizeLogoURI keeps https URLs and rewrites ipfs:// to the gateway.
// Everything else (http, data:, javascript:, relative paths) is dropped.
func SanitizeLogoURI(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if strings.HasPrefix(strings.ToLower(raw), "ipfs://") {
		path := strings.TrimLeft(raw[len("ipfs://"):], "/")
		if path == "" {
			return "", false
		}
		return IPFSGateway + escapeURIPath(path), true
	}

	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// escapeURIPath escapes like encodeURI: reserved characters and '/' stay as-is
func escapeURIPath(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if isURIUnescaped(c) {
			b.WriteByte(c)
			continue
		}
		const hex = "0123456789ABCDEF"
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isURIUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'();/?:@&=+$,#", c) >= 0
}
