// Package github provides the work-tracking collaborator backed by the
// GitHub Issues API. GitHub has no native epic/feature hierarchy, so item
// kinds become labels and parent→child links become issue references in the
// parent issue's comment thread.
package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v41/github"
	"golang.org/x/oauth2"

	"github.com/provisio/provisio/internal/config"
	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/pkg/models"
)

// kindLabels maps item kinds to the labels applied to created issues.
var kindLabels = map[models.ItemKind]string{
	models.KindEpic:      "epic",
	models.KindFeature:   "feature",
	models.KindUserStory: "story",
	models.KindTask:      "task",
	models.KindBug:       "bug",
}

// Client encapsulates the GitHub API client.
type Client struct {
	client *github.Client
	owner  string
	repo   string
}

// NewClient creates a new GitHub API client using configuration from
// environment variables. It supports GitHub Enterprise through the
// GITHUB_DOMAIN variable, mirroring the api/v3 base-URL convention.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateGitHubConfig(cfg); err != nil {
		return nil, err
	}

	parts := strings.Split(cfg.GitHub.Repository, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid repository format: %s, expected format: owner/repo", cfg.GitHub.Repository)
	}

	domain := cfg.GitHub.Domain
	if domain == "" {
		domain = "github.com"
	}

	logging.Info("github configuration",
		"domain", domain,
		"repository", cfg.GitHub.Repository,
		"token", logging.MaskSensitive(cfg.GitHub.Token))

	// Create the oauth2 client
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.GitHub.Token},
	)
	tc := oauth2.NewClient(ctx, ts)

	client := github.NewClient(tc)

	// If not using default GitHub.com, set custom API endpoint
	if domain != "github.com" {
		apiURL := fmt.Sprintf("https://%s/api/v3/", domain)
		parsedURL, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = parsedURL
		client.UploadURL = parsedURL
	}

	return &Client{
		client: client,
		owner:  parts[0],
		repo:   parts[1],
	}, nil
}

// CreateItem creates one issue labeled with the item's kind and returns the
// issue number.
func (c *Client) CreateItem(ctx context.Context, kind models.ItemKind, title string, fields map[string]string) (string, error) {
	label, ok := kindLabels[kind]
	if !ok {
		return "", &models.RemoteError{
			Op:        "create issue",
			Retryable: false,
			Err:       fmt.Errorf("unsupported item kind %q", kind),
		}
	}

	body := fields["description"]
	request := &github.IssueRequest{
		Title:  &title,
		Body:   &body,
		Labels: &[]string{label},
	}

	issue, resp, err := c.client.Issues.Create(ctx, c.owner, c.repo, request)
	if err != nil {
		return "", classify("create issue", resp, err)
	}

	logging.Debug("created github issue",
		"label", label,
		"title", title,
		"number", issue.GetNumber())

	return strconv.Itoa(issue.GetNumber()), nil
}

// LinkItems records the child in the parent issue's thread. GitHub renders
// the #N reference as a cross-link on both issues.
func (c *Client) LinkItems(ctx context.Context, parentID, childID, relation string) error {
	parent, err := strconv.Atoi(parentID)
	if err != nil {
		return &models.RemoteError{
			Op:        "link issues",
			Retryable: false,
			Err:       fmt.Errorf("invalid parent issue number %q: %w", parentID, err),
		}
	}

	body := fmt.Sprintf("Child: #%s", childID)
	_, resp, err := c.client.Issues.CreateComment(ctx, c.owner, c.repo, parent, &github.IssueComment{
		Body: &body,
	})
	if err != nil {
		return classify("link issues", resp, err)
	}

	logging.Debug("linked github issues",
		"parent", parentID,
		"child", childID)

	return nil
}

// GetItem reports whether an issue with the given number exists.
func (c *Client) GetItem(ctx context.Context, id string) (bool, error) {
	number, err := strconv.Atoi(id)
	if err != nil {
		return false, &models.RemoteError{
			Op:        "get issue",
			Retryable: false,
			Err:       fmt.Errorf("invalid issue number %q: %w", id, err),
		}
	}

	_, resp, err := c.client.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return false, nil
		}
		return false, classify("get issue", resp, err)
	}
	return true, nil
}

// classify wraps a GitHub error with its retryability based on the response
// status code.
func classify(op string, resp *github.Response, err error) error {
	if resp == nil {
		return &models.RemoteError{Op: op, Retryable: true, Err: err}
	}
	return &models.RemoteError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode == 429 || resp.StatusCode == 403 || resp.StatusCode >= 500,
		Err:        err,
	}
}
