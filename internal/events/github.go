package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-github/v73/github"

	"pr-reaction-bridge/internal/models"
)

// GitHub event types that can produce a reaction.
const (
	EventTypePullRequest       = "pull_request"
	EventTypeIssueComment      = "issue_comment"
	EventTypePullRequestReview = "pull_request_review"
)

const (
	reviewStateApproved         = "approved"
	reviewStateChangesRequested = "changes_requested"
)

// GitHubPayload is the part of a GitHub webhook body the normalizer reads.
type GitHubPayload struct {
	Action      *string                   `json:"action,omitempty"`
	PullRequest *github.PullRequest       `json:"pull_request,omitempty"`
	Issue       *github.Issue             `json:"issue,omitempty"`
	Review      *github.PullRequestReview `json:"review,omitempty"`
	Comment     *github.IssueComment      `json:"comment,omitempty"`
}

// GetAction returns the action field, or "" when absent.
func (p *GitHubPayload) GetAction() string {
	if p == nil || p.Action == nil {
		return ""
	}
	return *p.Action
}

// ParseGitHubPayload decodes a webhook body.
func ParseGitHubPayload(body []byte) (*GitHubPayload, error) {
	var payload GitHubPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse github payload: %w", err)
	}
	return &payload, nil
}

// IsInterestingGitHubEvent reports whether eventType can ever produce a reaction.
func IsInterestingGitHubEvent(eventType string) bool {
	switch eventType {
	case EventTypePullRequest, EventTypeIssueComment, EventTypePullRequestReview:
		return true
	default:
		return false
	}
}

// PullRequestURL resolves the pull request's web URL, preferring the pull request links
// over the issue's pull_request reference. Returns "" when neither is present.
func (p *GitHubPayload) PullRequestURL() string {
	if href := p.PullRequest.GetLinks().GetHTML().GetHRef(); href != "" {
		return href
	}
	return p.Issue.GetPullRequestLinks().GetHTMLURL()
}

// NormalizeGitHubEvent maps an event type header and payload onto a code event.
// It returns nil for anything that should not produce a reaction.
func NormalizeGitHubEvent(eventType string, payload *GitHubPayload) *models.CodeEvent {
	if payload == nil || !IsInterestingGitHubEvent(eventType) {
		return nil
	}

	url := payload.PullRequestURL()
	if url == "" {
		return nil
	}

	switch action := payload.GetAction(); {
	case eventType == EventTypeIssueComment && action == "created":
		if payload.Comment.GetUser() == nil {
			return nil
		}
		return models.Commented(url, payload.Comment.GetUser().GetLogin())

	case eventType == EventTypePullRequest && action == "closed":
		if payload.PullRequest != nil && payload.PullRequest.MergedAt != nil {
			return models.Merged(url)
		}
		return models.Closed(url)

	case eventType == EventTypePullRequestReview && action == "submitted":
		user := payload.Review.GetUser()
		if user == nil {
			return nil
		}
		switch strings.ToLower(payload.Review.GetState()) {
		case reviewStateChangesRequested:
			return models.ChangesRequested(url, user.GetLogin())
		case reviewStateApproved:
			return models.Approved(url, user.GetLogin())
		}
		return nil

	default:
		return nil
	}
}
