package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/pkg/logger"
)

// Provider error codes that identify a taken identifier.
const (
	codeIdentifierExists = "form_identifier_exists"
	codeSlugTaken        = "organization_slug_taken"
)

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// HTTPClient implements Provider over the provider's REST API.
type HTTPClient struct {
	client *resty.Client
}

var _ Provider = (*HTTPClient)(nil)

type apiErrorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		LongMessage string `json:"long_message"`
	} `json:"errors"`
}

type idResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug,omitempty"`
}

// NewHTTPClient creates a provider client. RetryCount retries transport
// failures and should stay 0 unless the provider deduplicates creates.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPClient{client: client}
}

func (c *HTTPClient) request(ctx context.Context) *resty.Request {
	return c.client.R().SetContext(ctx).SetError(&apiErrorBody{})
}

// apiError builds an APIError from a non-2xx response.
func apiError(resp *resty.Response) *APIError {
	e := &APIError{Status: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	if body, ok := resp.Error().(*apiErrorBody); ok && len(body.Errors) > 0 {
		first := body.Errors[0]
		e.Code = first.Code
		if first.LongMessage != "" {
			e.Message = first.LongMessage
		} else if first.Message != "" {
			e.Message = first.Message
		}
	}
	return e
}

// missingID rejects a successful response that did not carry the created id.
func missingID(resp *resty.Response, kind string) *APIError {
	return &APIError{Status: resp.StatusCode(), Message: "provider created a " + kind + " without an id"}
}

func isDuplicate(e *APIError, codes ...string) bool {
	if e.Status == http.StatusConflict {
		return true
	}
	for _, code := range codes {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (c *HTTPClient) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	log := logger.FromContext(ctx)

	var out idResponse
	resp, err := c.request(ctx).
		SetBody(map[string]any{
			"email_address":   []string{in.Email},
			"password":        in.Password,
			"first_name":      in.FirstName,
			"last_name":       in.LastName,
			"public_metadata": in.Metadata,
		}).
		SetResult(&out).
		Post("/v1/users")
	if err != nil {
		log.Error("Identity provider call failed", zap.String("operation", "create_user"), zap.Error(err))
		return nil, err
	}
	if resp.IsError() {
		apiErr := apiError(resp)
		if isDuplicate(apiErr, codeIdentifierExists) {
			return nil, ErrDuplicateEmail
		}
		log.Warn("Identity provider rejected user", zap.Int("status", apiErr.Status), zap.String("code", apiErr.Code))
		return nil, apiErr
	}
	if out.ID == "" {
		log.Error("Identity provider returned no user id", zap.Int("status", resp.StatusCode()))
		return nil, missingID(resp, "user")
	}
	return &User{ID: out.ID, Email: in.Email}, nil
}

func (c *HTTPClient) CreateOrganization(ctx context.Context, in CreateOrganizationInput) (*Organization, error) {
	log := logger.FromContext(ctx)

	var out idResponse
	resp, err := c.request(ctx).
		SetBody(map[string]any{
			"name":       in.Name,
			"slug":       in.Slug,
			"created_by": in.CreatedBy,
		}).
		SetResult(&out).
		Post("/v1/organizations")
	if err != nil {
		log.Error("Identity provider call failed", zap.String("operation", "create_organization"), zap.Error(err))
		return nil, err
	}
	if resp.IsError() {
		apiErr := apiError(resp)
		if isDuplicate(apiErr, codeIdentifierExists, codeSlugTaken) {
			return nil, ErrDuplicateSlug
		}
		log.Warn("Identity provider rejected organization", zap.Int("status", apiErr.Status), zap.String("code", apiErr.Code))
		return nil, apiErr
	}
	if out.ID == "" {
		log.Error("Identity provider returned no organization id", zap.Int("status", resp.StatusCode()))
		return nil, missingID(resp, "organization")
	}
	return &Organization{ID: out.ID, Slug: in.Slug}, nil
}

func (c *HTTPClient) UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]any) error {
	resp, err := c.request(ctx).
		SetPathParam("id", userID).
		SetBody(map[string]any{"public_metadata": metadata}).
		Patch("/v1/users/{id}/metadata")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

func (c *HTTPClient) DeleteUser(ctx context.Context, userID string) error {
	return c.delete(ctx, "/v1/users/{id}", userID)
}

func (c *HTTPClient) DeleteOrganization(ctx context.Context, orgID string) error {
	return c.delete(ctx, "/v1/organizations/{id}", orgID)
}

func (c *HTTPClient) delete(ctx context.Context, path, id string) error {
	if id == "" {
		return &APIError{Message: "missing id for " + path}
	}
	resp, err := c.request(ctx).SetPathParam("id", id).Delete(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}
