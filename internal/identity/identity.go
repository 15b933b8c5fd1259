// Package identity talks to the external identity provider that owns user
// credentials and organizations.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// Duplicate errors are distinct so callers can report which identifier is
// taken.
var (
	ErrDuplicateEmail = errors.New("identity: email already exists")
	ErrDuplicateSlug  = errors.New("identity: organization slug already exists")
)

// APIError is a rejection or failure reported by the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
}

// User is a provider-side principal.
type User struct {
	ID    string
	Email string
}

// Organization is a provider-side organization.
type Organization struct {
	ID   string
	Slug string
}

// CreateUserInput describes a new provider user.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Metadata  map[string]any
}

// CreateOrganizationInput describes a new provider organization.
type CreateOrganizationInput struct {
	Name      string
	Slug      string
	CreatedBy string
}

// Provider is the identity system used by provisioning.
type Provider interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*User, error)
	CreateOrganization(ctx context.Context, in CreateOrganizationInput) (*Organization, error)
	UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]any) error
	// DeleteUser and DeleteOrganization succeed when the target is already
	// gone, so compensations can be retried.
	DeleteUser(ctx context.Context, userID string) error
	DeleteOrganization(ctx context.Context, orgID string) error
}

// Message extracts the provider's human readable message from err.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "identity provider timed out"
	}
	return err.Error()
}
