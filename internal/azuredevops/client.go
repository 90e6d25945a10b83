// Package azuredevops provides the work-tracking collaborator backed by the
// Azure DevOps work-item tracking API.
package azuredevops

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/webapi"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/workitemtracking"

	"github.com/provisio/provisio/internal/config"
	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/pkg/models"
)

// workItemTypes maps the platform-agnostic item kinds to Azure DevOps
// work-item type names (Agile process).
var workItemTypes = map[models.ItemKind]string{
	models.KindEpic:      "Epic",
	models.KindFeature:   "Feature",
	models.KindUserStory: "User Story",
	models.KindTask:      "Task",
	models.KindBug:       "Bug",
}

// Client handles interactions with the Azure DevOps API.
type Client struct {
	wit     workitemtracking.Client
	orgURL  string
	project string
}

// NewClient creates a new Azure DevOps client using configuration from
// environment variables and verifies the connection by constructing the
// work-item tracking client against the organization's resource area.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateAzureDevOpsConfig(cfg); err != nil {
		return nil, err
	}

	logging.Info("azure devops configuration",
		"org_url", cfg.AzureDevOps.OrganizationURL,
		"project", cfg.AzureDevOps.Project,
		"pat", logging.MaskSensitive(cfg.AzureDevOps.PAT))

	connection := azuredevops.NewPatConnection(cfg.AzureDevOps.OrganizationURL, cfg.AzureDevOps.PAT)
	wit, err := workitemtracking.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create work item tracking client: %w", err)
	}

	return &Client{
		wit:     wit,
		orgURL:  cfg.AzureDevOps.OrganizationURL,
		project: cfg.AzureDevOps.Project,
	}, nil
}

// CreateItem creates one work item and returns its remote id.
func (c *Client) CreateItem(ctx context.Context, kind models.ItemKind, title string, fields map[string]string) (string, error) {
	witType, ok := workItemTypes[kind]
	if !ok {
		return "", &models.RemoteError{
			Op:        "create work item",
			Retryable: false,
			Err:       fmt.Errorf("unsupported item kind %q", kind),
		}
	}

	document := []webapi.JsonPatchOperation{
		{
			Op:    &webapi.OperationValues.Add,
			Path:  stringPtr("/fields/System.Title"),
			Value: title,
		},
	}
	if description := fields["description"]; description != "" {
		document = append(document, webapi.JsonPatchOperation{
			Op:    &webapi.OperationValues.Add,
			Path:  stringPtr("/fields/System.Description"),
			Value: description,
		})
	}

	workItem, err := c.wit.CreateWorkItem(ctx, workitemtracking.CreateWorkItemArgs{
		Document: &document,
		Project:  &c.project,
		Type:     &witType,
	})
	if err != nil {
		return "", classify("create work item", err)
	}

	logging.Debug("created azure devops work item",
		"type", witType,
		"title", title,
		"id", *workItem.Id)

	return strconv.Itoa(*workItem.Id), nil
}

// LinkItems adds a hierarchy-forward relation from parent to child.
func (c *Client) LinkItems(ctx context.Context, parentID, childID, relation string) error {
	parent, err := strconv.Atoi(parentID)
	if err != nil {
		return &models.RemoteError{
			Op:        "link work items",
			Retryable: false,
			Err:       fmt.Errorf("invalid parent id %q: %w", parentID, err),
		}
	}

	childURL := fmt.Sprintf("%s/_apis/wit/workItems/%s", c.orgURL, childID)
	document := []webapi.JsonPatchOperation{
		{
			Op:   &webapi.OperationValues.Add,
			Path: stringPtr("/relations/-"),
			Value: workitemtracking.WorkItemRelation{
				Rel: stringPtr("System.LinkTypes.Hierarchy-Forward"),
				Url: &childURL,
			},
		},
	}

	_, err = c.wit.UpdateWorkItem(ctx, workitemtracking.UpdateWorkItemArgs{
		Id:       &parent,
		Project:  &c.project,
		Document: &document,
	})
	if err != nil {
		return classify("link work items", err)
	}

	logging.Debug("linked azure devops work items",
		"parent_id", parentID,
		"child_id", childID)

	return nil
}

// GetItem reports whether a work item with the given id exists.
func (c *Client) GetItem(ctx context.Context, id string) (bool, error) {
	workItemID, err := strconv.Atoi(id)
	if err != nil {
		return false, &models.RemoteError{
			Op:        "get work item",
			Retryable: false,
			Err:       fmt.Errorf("invalid work item id %q: %w", id, err),
		}
	}

	_, err = c.wit.GetWorkItem(ctx, workitemtracking.GetWorkItemArgs{
		Id:      &workItemID,
		Project: &c.project,
	})
	if err != nil {
		var wrapped azuredevops.WrappedError
		if errors.As(err, &wrapped) && wrapped.StatusCode != nil && *wrapped.StatusCode == 404 {
			return false, nil
		}
		return false, classify("get work item", err)
	}

	return true, nil
}

// classify wraps an SDK error with its retryability. Rate limits and server
// errors are transient; other HTTP failures are not. Errors without a
// status code are transport-level and treated as transient.
func classify(op string, err error) error {
	var wrapped azuredevops.WrappedError
	if errors.As(err, &wrapped) && wrapped.StatusCode != nil {
		code := *wrapped.StatusCode
		return &models.RemoteError{
			Op:         op,
			StatusCode: code,
			Retryable:  code == 429 || code >= 500,
			Err:        err,
		}
	}
	return &models.RemoteError{Op: op, Retryable: true, Err: err}
}

func stringPtr(s string) *string {
	return &s
}
