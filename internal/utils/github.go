package utils

import (
	"regexp"
	"strconv"
)

// DefaultGitHubHost is the host used when URL_HOST is not set.
const DefaultGitHubHost = "github.com"

// PRLink represents a parsed GitHub pull request link with extracted components.
type PRLink struct {
	URL          string // Complete GitHub PR URL (e.g., "https://github.com/owner/repo/pull/123")
	Owner        string // Repository owner/organization name
	Repo         string // Repository name
	PRNumber     int    // Pull request number
	FullRepoName string // Combined "owner/repo" format for convenience
}

// PRURLExtractor finds pull request URLs for a single GitHub host.
type PRURLExtractor struct {
	pattern *regexp.Regexp
}

// NewPRURLExtractor builds an extractor matching https://<host>/<owner>/<repo>/pull/<number>.
// Owner and repo may contain letters, digits, underscores, dots and hyphens.
func NewPRURLExtractor(host string) *PRURLExtractor {
	return &PRURLExtractor{
		pattern: regexp.MustCompile(`https://` + regexp.QuoteMeta(host) + `/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)/pull/(\d+)`),
	}
}

// Extract returns every pull request URL in text, in order of first appearance.
// Repeated mentions are kept. Text without a match yields an empty slice.
func (e *PRURLExtractor) Extract(text string) []string {
	matches := e.pattern.FindAllString(text, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}

// Parse splits a pull request URL into its components.
func (e *PRURLExtractor) Parse(url string) (PRLink, bool) {
	match := e.pattern.FindStringSubmatch(url)
	if match == nil || match[0] != url {
		return PRLink{}, false
	}
	prNumber, err := strconv.Atoi(match[3])
	if err != nil {
		return PRLink{}, false
	}
	return PRLink{
		URL:          match[0],
		Owner:        match[1],
		Repo:         match[2],
		PRNumber:     prNumber,
		FullRepoName: match[1] + "/" + match[2],
	}, true
}

// UniqueURLs drops repeated URLs, keeping the first occurrence of each.
func UniqueURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}
	return unique
}
