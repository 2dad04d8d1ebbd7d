package probe

import "net/url"

// isHTTPOrHTTPS rejects file://, ftp://, and any other scheme that could be
// used to reach local resources outside of plain outbound HTTP.
func isHTTPOrHTTPS(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}
