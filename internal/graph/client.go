// Package graph provides the identity collaborator backed by the Microsoft
// Graph API: app registrations, service principals and client secrets.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/provisio/provisio/internal/config"
	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/pkg/models"
)

const (
	baseURL = "https://graph.microsoft.com/v1.0"
	scope   = "https://graph.microsoft.com/.default"

	// Microsoft Graph's own application id, the resource that permission
	// grants are declared against.
	graphResourceAppID = "00000003-0000-0000-c000-000000000000"
)

// Client handles interactions with the Microsoft Graph API.
type Client struct {
	http *http.Client
}

// NewClient creates a new Graph client using configuration from environment
// variables.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateIdentityConfig(cfg); err != nil {
		return nil, err
	}

	logging.Info("graph configuration",
		"tenant", cfg.Identity.TenantID,
		"client_id", cfg.Identity.ClientID,
		"client_secret", logging.MaskSensitive(cfg.Identity.ClientSecret))

	conf := &clientcredentials.Config{
		ClientID:     cfg.Identity.ClientID,
		ClientSecret: cfg.Identity.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.Identity.TenantID),
		Scopes:       []string{scope},
	}

	return &Client{http: conf.Client(ctx)}, nil
}

// CreateApplication registers a new application, optionally requesting the
// given Graph application-role permissions, and returns its app id and
// directory object id.
func (c *Client) CreateApplication(ctx context.Context, name string, permissions []string) (string, string, error) {
	body := map[string]any{
		"displayName":    name,
		"signInAudience": "AzureADMyOrg",
	}
	if len(permissions) > 0 {
		var access []map[string]string
		for _, permission := range permissions {
			access = append(access, map[string]string{
				"id":   permission,
				"type": "Role",
			})
		}
		body["requiredResourceAccess"] = []map[string]any{
			{
				"resourceAppId":  graphResourceAppID,
				"resourceAccess": access,
			},
		}
	}

	var response struct {
		AppID    string `json:"appId"`
		ObjectID string `json:"id"`
	}
	if err := c.post(ctx, "/applications", body, &response); err != nil {
		return "", "", wrap("create application", err)
	}

	logging.Info("application registered",
		"display_name", name,
		"app_id", response.AppID)

	return response.AppID, response.ObjectID, nil
}

// CreateServicePrincipal creates the service principal for an application
// and returns its object id.
func (c *Client) CreateServicePrincipal(ctx context.Context, appID string) (string, error) {
	var response struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/servicePrincipals", map[string]any{"appId": appID}, &response); err != nil {
		return "", wrap("create service principal", err)
	}

	logging.Debug("service principal created", "app_id", appID, "id", response.ID)
	return response.ID, nil
}

// CreateSecret generates a client secret on an application. The secret
// value is only ever returned by this one call.
func (c *Client) CreateSecret(ctx context.Context, objectID string) (*models.ClientSecret, error) {
	body := map[string]any{
		"passwordCredential": map[string]any{
			"displayName": "provisio-generated",
		},
	}

	var response struct {
		SecretText  string `json:"secretText"`
		EndDateTime string `json:"endDateTime"`
	}
	path := fmt.Sprintf("/applications/%s/addPassword", objectID)
	if err := c.post(ctx, path, body, &response); err != nil {
		return nil, wrap("create client secret", err)
	}

	expires, err := time.Parse(time.RFC3339, response.EndDateTime)
	if err != nil {
		// A secret with an unparsable expiry is still a usable secret.
		logging.Warn("could not parse secret expiry", "value", response.EndDateTime, "error", err)
	}

	return &models.ClientSecret{
		Value:     response.SecretText,
		ExpiresAt: expires,
	}, nil
}

// httpError is an HTTP-level failure carrying the status code for
// classification.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// post issues one JSON POST against the Graph API and decodes the response.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &httpError{status: resp.StatusCode, body: string(raw)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// wrap classifies an error for the orchestrator.
func wrap(op string, err error) error {
	if httpErr, ok := err.(*httpError); ok {
		return &models.RemoteError{
			Op:         op,
			StatusCode: httpErr.status,
			Retryable:  httpErr.status == 429 || httpErr.status >= 500,
			Err:        err,
		}
	}
	return &models.RemoteError{Op: op, Retryable: true, Err: err}
}
