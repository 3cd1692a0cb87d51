package utils

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"
)

// MaxBranchSlugLen caps branch name slugs to keep refs readable.
const MaxBranchSlugLen = 60

// ToBranchSlug converts free text (a ticket title) into a git-ref-safe slug:
// lowercase, alphanumerics preserved, runs of anything else collapsed to a
// single dash, trimmed to MaxBranchSlugLen.
func ToBranchSlug(title string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > MaxBranchSlugLen {
		slug = strings.Trim(slug[:MaxBranchSlugLen], "-")
	}
	if slug == "" {
		slug = "change"
	}
	return slug
}

// Truncate shortens s to max bytes. Used for commit messages, which have a
// fixed 50-character ceiling.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// ShortHash returns the first 10 hex chars of the SHA-256 of s, used for
// tracking IDs derived from content.
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)[:10]
}

// FirstLines returns at most n leading lines of s.
func FirstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n")
}

// LastLines returns at most n trailing lines of s. Failure logs are fed to
// repair rounds tail-first since build errors cluster at the end.
func LastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
