package validator

import (
	"net/url"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// ValidateURL reports whether videoURL is an absolute http(s) URL whose host
// is one of allowedDomains or a subdomain of one. An empty allow-list accepts
// any host.
func ValidateURL(videoURL string, allowedDomains []string) bool {
	u, err := url.Parse(strings.TrimSpace(videoURL))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if len(allowedDomains) == 0 {
		return true
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, domain := range allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// ValidateFormatID validates a worker format ID such as "137" or "hls-720p"
func ValidateFormatID(formatID string) bool {
	if len(formatID) == 0 || len(formatID) > 50 {
		return false
	}
	return !strings.ContainsAny(formatID, "+/ \t\n")
}

// SanitizeFilename replaces characters that are invalid in file names
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(name, "_"))
	name = strings.Trim(name, ".")
	if name == "" {
		return "untitled"
	}
	return name
}

// TruncateFilename cuts name to at most maxLen runes, keeping the extension
func TruncateFilename(name string, maxLen int) string {
	runes := []rune(name)
	if len(runes) <= maxLen {
		return name
	}

	ext := ""
	if dot := strings.LastIndex(name, "."); dot > 0 {
		ext = name[dot:]
	}
	extLen := len([]rune(ext))
	if extLen >= maxLen {
		return string(runes[:maxLen])
	}
	base := []rune(strings.TrimSuffix(name, ext))
	return string(base[:maxLen-extLen]) + ext
}
