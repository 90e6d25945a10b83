// Package jira provides the work-tracking collaborator backed by the JIRA
// REST API.
package jira

import (
	"context"
	"fmt"

	jira "github.com/andygrunwald/go-jira"

	"github.com/provisio/provisio/internal/config"
	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/pkg/models"
)

// issueTypes maps the platform-agnostic item kinds to JIRA issue type
// names. Projects using a different type scheme reject the create call with
// a non-retryable validation error, which surfaces per item.
var issueTypes = map[models.ItemKind]string{
	models.KindEpic:      "Epic",
	models.KindFeature:   "Feature",
	models.KindUserStory: "Story",
	models.KindTask:      "Task",
	models.KindBug:       "Bug",
}

// Client handles interactions with the JIRA API.
type Client struct {
	client  *jira.Client
	project string
}

// NewClient creates a new JIRA client using configuration from environment
// variables.
func NewClient() (*Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateJiraConfig(cfg); err != nil {
		return nil, err
	}

	logging.Info("jira configuration",
		"url", cfg.Jira.URL,
		"username", cfg.Jira.Username,
		"project", cfg.Jira.Project,
		"token", logging.MaskSensitive(cfg.Jira.Token))

	// Create JIRA authentication transport
	tp := jira.BasicAuthTransport{
		Username: cfg.Jira.Username,
		Password: cfg.Jira.Token,
	}

	client, err := jira.NewClient(tp.Client(), cfg.Jira.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	return &Client{
		client:  client,
		project: cfg.Jira.Project,
	}, nil
}

// CreateItem creates one JIRA issue and returns its key.
func (c *Client) CreateItem(ctx context.Context, kind models.ItemKind, title string, fields map[string]string) (string, error) {
	issueType, ok := issueTypes[kind]
	if !ok {
		return "", &models.RemoteError{
			Op:        "create issue",
			Retryable: false,
			Err:       fmt.Errorf("unsupported item kind %q", kind),
		}
	}

	issue := &jira.Issue{
		Fields: &jira.IssueFields{
			Project: jira.Project{
				Key: c.project,
			},
			Summary:     title,
			Description: fields["description"],
			Type: jira.IssueType{
				Name: issueType,
			},
		},
	}

	created, resp, err := c.client.Issue.CreateWithContext(ctx, issue)
	if err != nil {
		return "", classify("create issue", resp, err)
	}

	logging.Debug("created jira issue",
		"type", issueType,
		"title", title,
		"key", created.Key)

	return created.Key, nil
}

// LinkItems creates a parent→child issue link.
func (c *Client) LinkItems(ctx context.Context, parentID, childID, relation string) error {
	link := &jira.IssueLink{
		Type: jira.IssueLinkType{
			Name: "Relates",
		},
		InwardIssue:  &jira.Issue{Key: parentID},
		OutwardIssue: &jira.Issue{Key: childID},
	}

	resp, err := c.client.Issue.AddLinkWithContext(ctx, link)
	if err != nil {
		return classify("link issues", resp, err)
	}

	logging.Debug("linked jira issues",
		"parent", parentID,
		"child", childID)

	return nil
}

// GetItem reports whether an issue with the given key exists.
func (c *Client) GetItem(ctx context.Context, id string) (bool, error) {
	_, resp, err := c.client.Issue.GetWithContext(ctx, id, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return false, nil
		}
		return false, classify("get issue", resp, err)
	}
	return true, nil
}

// classify wraps a JIRA error with its retryability based on the response
// status code. Responses never received are transport errors and transient.
func classify(op string, resp *jira.Response, err error) error {
	if resp == nil {
		return &models.RemoteError{Op: op, Retryable: true, Err: err}
	}
	return &models.RemoteError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode == 429 || resp.StatusCode >= 500,
		Err:        err,
	}
}
