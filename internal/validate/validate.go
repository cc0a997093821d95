// Package validate implements the broker's payload validators: URL,
// app identifier, filesystem path, package name, and percentage (spec
// §4.3; supplemented from the Rust original's utils.rs grouping per
// SPEC_FULL.md §4). Every validator is total — it returns a bool (and a
// reason string) and never panics, satisfying spec §8's payload-
// validation totality property.
package validate

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const maxURLBytes = 2048

var appIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,96}$`)

// OpenURL validates an open_url payload against spec §4.3: http/https
// only, no control characters or whitespace, <=2048 bytes, and (if the
// allowlist is non-empty) host must equal an allowed entry or end in
// "." + entry.
func OpenURL(raw string, allowedDomains []string) (bool, string) {
	if len(raw) == 0 || len(raw) > maxURLBytes {
		return false, "unsupported or unsafe url"
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f {
			return false, "unsupported or unsafe url"
		}
		if r == ' ' || r == '\t' {
			return false, "unsupported or unsafe url"
		}
	}

	var scheme string
	switch {
	case strings.HasPrefix(raw, "https://"):
		scheme = "https"
	case strings.HasPrefix(raw, "http://"):
		scheme = "http"
	default:
		return false, "unsupported or unsafe url"
	}

	rest := raw[len(scheme)+3:]
	host := rest
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	host = strings.ToLower(host)
	if host == "" {
		return false, "unsupported or unsafe url"
	}

	if len(allowedDomains) == 0 {
		return true, ""
	}
	for _, d := range allowedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true, ""
		}
	}
	return false, "url domain denied by policy"
}

// OpenApp validates an open_app payload against spec §4.3.
func OpenApp(id string, allowed []string) (bool, string) {
	if !appIDPattern.MatchString(id) {
		return false, "invalid app identifier"
	}
	if len(allowed) == 0 {
		return true, ""
	}
	for _, a := range allowed {
		if a == id {
			return true, ""
		}
	}
	return false, "app denied by policy"
}

// ListFiles canonicalises path and checks it against prefix allowlist
// (spec §4.3).
func ListFiles(path string, allowedPrefixes []string) (bool, string) {
	if path == "" {
		return false, "path denied by policy"
	}
	canon := filepath.Clean(path)
	if abs, err := filepath.Abs(canon); err == nil {
		canon = abs
	}

	if len(allowedPrefixes) == 0 {
		return true, ""
	}
	for _, p := range allowedPrefixes {
		p = filepath.Clean(p)
		if canon == p || strings.HasPrefix(canon, p+"/") {
			return true, ""
		}
	}
	return false, "path denied by policy"
}

// PackageName validates a single package_install entry: non-empty,
// no whitespace, no shell metacharacters.
func PackageName(name string) bool {
	if name == "" || strings.ContainsAny(name, " \t\n\r;|&$`<>(){}") {
		return false
	}
	return true
}

// Percentage parses and bounds-checks a 0-100 percentage payload (used
// by the media volume / brightness handlers).
func Percentage(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	if n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}
