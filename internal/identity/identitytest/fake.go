// Package identitytest provides an in-memory identity provider for tests.
package identitytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/suteetoe/shopfleet/internal/identity"
)

// Operation names a Provider method for failure injection.
type Operation string

const (
	OpCreateUser         Operation = "create_user"
	OpCreateOrganization Operation = "create_organization"
	OpUpdateUserMetadata Operation = "update_user_metadata"
	OpDeleteUser         Operation = "delete_user"
	OpDeleteOrganization Operation = "delete_organization"
)

// Fake is a thread-safe in-memory identity.Provider.
type Fake struct {
	mu       sync.Mutex
	seq      int
	users    map[string]identity.CreateUserInput
	orgs     map[string]identity.CreateOrganizationInput
	metadata map[string]map[string]any
	failures map[Operation]error
	delays   map[Operation]time.Duration
	calls    map[Operation]int
}

var _ identity.Provider = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		users:    map[string]identity.CreateUserInput{},
		orgs:     map[string]identity.CreateOrganizationInput{},
		metadata: map[string]map[string]any{},
		failures: map[Operation]error{},
		delays:   map[Operation]time.Duration{},
		calls:    map[Operation]int{},
	}
}

// FailOn makes every call of op return err.
func (f *Fake) FailOn(op Operation, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// Delay makes op block for d or until its context is done.
func (f *Fake) Delay(op Operation, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[op] = d
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// UserCount returns the number of live users.
func (f *Fake) UserCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// OrgCount returns the number of live organizations.
func (f *Fake) OrgCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orgs)
}

// Metadata returns the metadata stored for userID.
func (f *Fake) Metadata(userID string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata[userID]
}

func (f *Fake) begin(ctx context.Context, op Operation) error {
	f.mu.Lock()
	f.calls[op]++
	delay := f.delays[op]
	err := f.failures[op]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *Fake) CreateUser(ctx context.Context, in identity.CreateUserInput) (*identity.User, error) {
	if err := f.begin(ctx, OpCreateUser); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == in.Email {
			return nil, identity.ErrDuplicateEmail
		}
	}
	f.seq++
	id := fmt.Sprintf("user_%d", f.seq)
	f.users[id] = in
	return &identity.User{ID: id, Email: in.Email}, nil
}

func (f *Fake) CreateOrganization(ctx context.Context, in identity.CreateOrganizationInput) (*identity.Organization, error) {
	if err := f.begin(ctx, OpCreateOrganization); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orgs {
		if o.Slug == in.Slug {
			return nil, identity.ErrDuplicateSlug
		}
	}
	f.seq++
	id := fmt.Sprintf("org_%d", f.seq)
	f.orgs[id] = in
	return &identity.Organization{ID: id, Slug: in.Slug}, nil
}

func (f *Fake) UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]any) error {
	if err := f.begin(ctx, OpUpdateUserMetadata); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return &identity.APIError{Status: 404, Message: "user not found"}
	}
	f.metadata[userID] = metadata
	return nil
}

func (f *Fake) DeleteUser(ctx context.Context, userID string) error {
	if err := f.begin(ctx, OpDeleteUser); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
	delete(f.metadata, userID)
	return nil
}

func (f *Fake) DeleteOrganization(ctx context.Context, orgID string) error {
	if err := f.begin(ctx, OpDeleteOrganization); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.orgs, orgID)
	return nil
}
