package engine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var scpLike = regexp.MustCompile(`^[\w.-]+@([\w.-]+):(.+)$`)

// ParseRepoURL extracts owner and name from a repository reference. It
// accepts https URLs, scp-style git remotes, host/owner/name and owner/name.
func ParseRepoURL(raw string) (owner, name string, err error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidRepoURL)
	}

	var path string
	switch {
	case strings.Contains(ref, "://"):
		u, perr := url.Parse(ref)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
		}
		path = u.Path
	case scpLike.MatchString(ref):
		path = scpLike.FindStringSubmatch(ref)[2]
	default:
		path = ref
		// host/owner/name: a dotted first segment is a host
		if first, rest, ok := strings.Cut(ref, "/"); ok && strings.Contains(first, ".") {
			path = rest
		}
	}

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return "", "", fmt.Errorf("%w: %q needs an owner and a repository name", ErrInvalidRepoURL, raw)
	}

	owner = segments[0]
	name = strings.TrimSuffix(segments[1], ".git")
	if owner == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
	}
	return owner, name, nil
}

func splitFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("unexpected repository name %q", fullName)
	}
	return owner, name, nil
}
