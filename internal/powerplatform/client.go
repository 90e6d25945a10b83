// Package powerplatform provides the platform-provisioning collaborator
// backed by the Power Platform admin API (environments) and the Dataverse
// Web API (publishers, solutions, components).
package powerplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/provisio/provisio/internal/config"
	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/pkg/models"
)

const (
	adminBaseURL    = "https://api.bap.microsoft.com"
	adminAPIVersion = "2021-04-01"
	adminScope      = "https://service.powerapps.com/.default"
	dataverseAPI    = "api/data/v9.2"
)

// Client handles interactions with the Power Platform APIs. Publisher,
// solution and component calls address the Dataverse instance of the most
// recently created environment, so CreateEnvironment must come first on any
// given client.
type Client struct {
	admin    *http.Client
	identity config.IdentityConfig
	defaults config.PowerPlatformConfig

	// set by CreateEnvironment
	dataverse   *http.Client
	instanceURL string
}

// NewClient creates a new Power Platform client using configuration from
// environment variables.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateIdentityConfig(cfg); err != nil {
		return nil, err
	}

	logging.Info("power platform configuration",
		"location", cfg.PowerPlatform.Location,
		"currency", cfg.PowerPlatform.CurrencyCode,
		"tenant", cfg.Identity.TenantID,
		"client_secret", logging.MaskSensitive(cfg.Identity.ClientSecret))

	return &Client{
		admin:    tokenClient(ctx, cfg.Identity, adminScope),
		identity: cfg.Identity,
		defaults: cfg.PowerPlatform,
	}, nil
}

// tokenClient builds an HTTP client that injects client-credential tokens
// for the given resource scope.
func tokenClient(ctx context.Context, identity config.IdentityConfig, scope string) *http.Client {
	conf := &clientcredentials.Config{
		ClientID:     identity.ClientID,
		ClientSecret: identity.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", identity.TenantID),
		Scopes:       []string{scope},
	}
	return conf.Client(ctx)
}

// CreateEnvironment provisions a new environment with a Dataverse database
// and remembers its instance URL for the Dataverse calls that follow.
func (c *Client) CreateEnvironment(ctx context.Context, spec models.EnvironmentSpec) (*models.EnvironmentResult, error) {
	location := spec.Location
	if location == "" {
		location = c.defaults.Location
	}
	currency := spec.CurrencyCode
	if currency == "" {
		currency = c.defaults.CurrencyCode
	}
	language := spec.LanguageCode
	if language == 0 {
		language = c.defaults.LanguageCode
	}
	environmentType := spec.EnvironmentType
	if environmentType == "" {
		environmentType = "Sandbox"
	}

	body := map[string]any{
		"location": location,
		"properties": map[string]any{
			"displayName":    spec.DisplayName,
			"environmentSku": environmentType,
			"linkedEnvironmentMetadata": map[string]any{
				"baseLanguage": language,
				"currency": map[string]any{
					"code": currency,
				},
			},
		},
	}

	url := fmt.Sprintf("%s/providers/Microsoft.BusinessAppPlatform/environments?api-version=%s", adminBaseURL, adminAPIVersion)

	var response struct {
		Name       string `json:"name"`
		Properties struct {
			LinkedEnvironmentMetadata struct {
				InstanceURL string `json:"instanceUrl"`
			} `json:"linkedEnvironmentMetadata"`
		} `json:"properties"`
	}
	if _, err := doJSON(ctx, c.admin, http.MethodPost, url, body, &response); err != nil {
		return nil, wrap("create environment", err)
	}

	instanceURL := strings.TrimSuffix(response.Properties.LinkedEnvironmentMetadata.InstanceURL, "/")
	c.instanceURL = instanceURL
	c.dataverse = tokenClient(ctx, c.identity, instanceURL+"/.default")

	logging.Info("environment created",
		"display_name", spec.DisplayName,
		"environment_id", response.Name,
		"instance_url", instanceURL)

	return &models.EnvironmentResult{
		ID:  response.Name,
		URL: instanceURL,
	}, nil
}

// CreatePublisher creates a solution publisher in the current environment
// and returns its id.
func (c *Client) CreatePublisher(ctx context.Context, spec models.PublisherSpec) (string, error) {
	if c.dataverse == nil {
		return "", wrap("create publisher", fmt.Errorf("no environment has been created on this client"))
	}

	body := map[string]any{
		"friendlyname":        spec.DisplayName,
		"uniquename":          spec.UniqueName,
		"customizationprefix": spec.Prefix,
	}

	url := fmt.Sprintf("%s/%s/publishers", c.instanceURL, dataverseAPI)
	header, err := doJSON(ctx, c.dataverse, http.MethodPost, url, body, nil)
	if err != nil {
		return "", wrap("create publisher", err)
	}

	id := entityID(header.Get("OData-EntityId"))
	logging.Debug("publisher created", "unique_name", spec.UniqueName, "id", id)
	return id, nil
}

// CreateSolution creates an unmanaged solution owned by the given publisher.
// It returns the solution's unique name, which is how later component
// operations address it.
func (c *Client) CreateSolution(ctx context.Context, spec models.SolutionSpec, publisherID string) (string, error) {
	if c.dataverse == nil {
		return "", wrap("create solution", fmt.Errorf("no environment has been created on this client"))
	}

	body := map[string]any{
		"friendlyname":           spec.DisplayName,
		"uniquename":             spec.UniqueName,
		"description":            spec.Description,
		"publisherid@odata.bind": fmt.Sprintf("/publishers(%s)", publisherID),
	}

	url := fmt.Sprintf("%s/%s/solutions", c.instanceURL, dataverseAPI)
	if _, err := doJSON(ctx, c.dataverse, http.MethodPost, url, body, nil); err != nil {
		return "", wrap("create solution", err)
	}

	logging.Debug("solution created", "unique_name", spec.UniqueName)
	return spec.UniqueName, nil
}

// AddComponent adds one component to a solution. The reference has the form
// "componentId:componentType" with the numeric Dataverse component type.
func (c *Client) AddComponent(ctx context.Context, solutionID, componentRef string) error {
	if c.dataverse == nil {
		return wrap("add solution component", fmt.Errorf("no environment has been created on this client"))
	}

	componentID, componentType, found := strings.Cut(componentRef, ":")
	if !found {
		return &models.RemoteError{
			Op:        "add solution component",
			Retryable: false,
			Err:       fmt.Errorf("invalid component reference %q, expected componentId:componentType", componentRef),
		}
	}

	body := map[string]any{
		"ComponentId":           componentID,
		"ComponentType":         json.Number(componentType),
		"SolutionUniqueName":    solutionID,
		"AddRequiredComponents": false,
	}

	url := fmt.Sprintf("%s/%s/AddSolutionComponent", c.instanceURL, dataverseAPI)
	if _, err := doJSON(ctx, c.dataverse, http.MethodPost, url, body, nil); err != nil {
		return wrap("add solution component", err)
	}

	logging.Debug("solution component added", "solution", solutionID, "component", componentRef)
	return nil
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

// doJSON issues one JSON request and decodes the response into out when out
// is non-nil. It returns the response headers for callers that read ids
// from them.
func doJSON(ctx context.Context, client *http.Client, method, url string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.Header, &httpError{status: resp.StatusCode, body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, err
		}
	}
	return resp.Header, nil
}

// wrap classifies an error for the orchestrator: rate limits and server
// errors are transient, other HTTP failures are not, transport errors are
// transient.
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

// entityID extracts the GUID from an OData-EntityId header value such as
// "https://org.crm.dynamics.com/api/data/v9.2/publishers(<guid>)".
func entityID(header string) string {
	open := strings.LastIndex(header, "(")
	end := strings.LastIndex(header, ")")
	if open == -1 || end == -1 || end < open {
		return header
	}
	return header[open+1 : end]
}
