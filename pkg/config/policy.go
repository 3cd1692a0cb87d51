package config

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyFileName is the per-repository policy file, committed to the target
// repository's default branch.
const PolicyFileName = "autopatch.yaml"

// RepoPolicy is repository-owned configuration. It is parsed from
// autopatch.yaml in the target repo and controls behavior the repo's
// maintainers own: whether CI verification runs, which branch to base work
// on, and which byproduct files a commit may legitimately contain.
type RepoPolicy struct {
	// VerifyCI gates the CI verification/repair phase.
	VerifyCI bool `yaml:"verify_ci"`
	// Branch overrides the orchestrator's default base branch when set.
	Branch string `yaml:"branch"`
	// AllowedPatterns are glob patterns (matched against the full path and
	// the base name) for expected byproducts such as lockfiles. Paths
	// matching a pattern survive sanitization even when no change request
	// names them.
	AllowedPatterns []string `yaml:"allowed_patterns"`
	// BlockedDirs are path prefixes the bot must never write into.
	BlockedDirs []string `yaml:"blocked_dirs"`
}

// DefaultRepoPolicy is used when the repo has no autopatch.yaml.
func DefaultRepoPolicy() RepoPolicy {
	return RepoPolicy{
		VerifyCI: true,
		AllowedPatterns: []string{
			"*.lock",
			"go.sum",
			"package-lock.json",
		},
		BlockedDirs: []string{
			".git/",
		},
	}
}

// ParseRepoPolicy parses autopatch.yaml content. Missing fields keep their
// defaults, so a minimal policy file stays valid.
func ParseRepoPolicy(data []byte) (RepoPolicy, error) {
	policy := DefaultRepoPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return RepoPolicy{}, fmt.Errorf("failed to parse %s: %w", PolicyFileName, err)
	}
	for _, pattern := range policy.AllowedPatterns {
		if _, err := path.Match(pattern, "probe"); err != nil {
			return RepoPolicy{}, fmt.Errorf("invalid allow pattern %q in %s: %w", pattern, PolicyFileName, err)
		}
	}
	return policy, nil
}

// AllowsPath reports whether p matches an allow pattern.
func (rp *RepoPolicy) AllowsPath(p string) bool {
	base := path.Base(p)
	for _, pattern := range rp.AllowedPatterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// BlocksPath reports whether p falls under a blocked directory.
func (rp *RepoPolicy) BlocksPath(p string) bool {
	for _, dir := range rp.BlockedDirs {
		if strings.HasPrefix(p, dir) {
			return true
		}
	}
	return false
}
