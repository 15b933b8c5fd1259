// Package provisioning onboards a new tenant: identity-provider user and
// organization, local tenant, branding and admin user. The external steps
// run as a saga so a failure leaves no orphaned identity records behind.
package provisioning

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/identity"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/notify"
	"github.com/suteetoe/shopfleet/internal/registry"
	"github.com/suteetoe/shopfleet/internal/saga"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/template"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

// Messages surfaced to callers.
const (
	MsgSubdomainTaken = registry.MsgSubdomainTaken
	MsgEmailTaken     = "Email already registered"
	msgAuthPrefix     = "Authentication Error: "
)

// SettingContactPhone stores the contact phone given at signup.
const SettingContactPhone = "contactPhone"

// ContactInfo is the optional contact block of a request.
type ContactInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

// Request is a tenant signup.
type Request struct {
	BusinessName string      `json:"businessName"`
	Email        string      `json:"email"`
	Password     string      `json:"password"`
	Subdomain    string      `json:"subdomain"`
	LicenseToken string      `json:"licenseToken"`
	CountryCode  string      `json:"countryCode"`
	TemplateID   string      `json:"templateId"`
	ContactInfo  ContactInfo `json:"contactInfo"`
}

// Result identifies what a successful signup created.
type Result struct {
	TenantID       string `json:"tenantId"`
	IdentityUserID string `json:"identityUserId"`
	IdentityOrgID  string `json:"identityOrgId"`
}

// Welcomer sends the welcome notification of a new tenant.
type Welcomer interface {
	SendWelcome(ctx context.Context, w notify.Welcome) error
}

// Config tunes the provisioning flow.
type Config struct {
	// StrictCrossLink fails the signup when the identity user cannot be
	// tagged with its organization id. Off, the failure is only logged.
	StrictCrossLink bool
	// IdentityTimeout bounds every identity-provider call.
	IdentityTimeout time.Duration
	// CompensationTimeout bounds every compensation call.
	CompensationTimeout time.Duration
}

// Service runs signups.
type Service struct {
	client    storage.Client
	registry  *registry.Registry
	identity  identity.Provider
	templates *template.Resolver
	welcomer  Welcomer
	cfg       Config
	now       func() time.Time

	wg sync.WaitGroup
}

// NewService creates a Service. client must be the tenant-scoped client the
// registry and resolver were built on. welcomer may be nil.
func NewService(client storage.Client, reg *registry.Registry, idp identity.Provider, templates *template.Resolver, welcomer Welcomer, cfg Config) *Service {
	if cfg.IdentityTimeout <= 0 {
		cfg.IdentityTimeout = 10 * time.Second
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = cfg.IdentityTimeout
	}
	return &Service{
		client:    client,
		registry:  reg,
		identity:  idp,
		templates: templates,
		welcomer:  welcomer,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Wait blocks until pending welcome notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// normalize trims the request and checks the fields the registry does not.
func normalize(req *Request) error {
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))
	req.CountryCode = strings.ToUpper(strings.TrimSpace(req.CountryCode))
	req.TemplateID = strings.TrimSpace(req.TemplateID)

	if req.Email == "" {
		return apperr.Validation("email is required")
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return apperr.Validation("email is invalid")
	}
	if req.Password == "" {
		return apperr.Validation("password is required")
	}
	if strings.TrimSpace(req.LicenseToken) == "" {
		return apperr.Validation("licenseToken is required")
	}
	return registry.Validate(&model.Tenant{
		BusinessName: req.BusinessName,
		Subdomain:    req.Subdomain,
		CountryCode:  req.CountryCode,
	})
}

// Provision creates a tenant for req. Identity records created before a
// failure are deleted again; the local rows commit together or not at all.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	ctx, log := logger.With(ctx, zap.String("subdomain", strings.ToLower(strings.TrimSpace(req.Subdomain))))

	res, err := s.provision(ctx, &req)
	if err != nil {
		metrics.RecordProvisioning(strings.ToLower(string(apperr.KindOf(err))), started)
		log.Warn("Provisioning failed", zap.Error(err))
		return nil, err
	}
	metrics.RecordProvisioning("success", started)
	log.Info("Tenant provisioned",
		zap.String("tenant_id", res.TenantID),
		zap.String("identity_user_id", res.IdentityUserID),
		zap.String("identity_org_id", res.IdentityOrgID))
	return res, nil
}

func (s *Service) provision(ctx context.Context, req *Request) (*Result, error) {
	if err := normalize(req); err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, req); err != nil {
		return nil, err
	}

	var (
		user   *identity.User
		org    *identity.Organization
		tenant *model.Tenant
	)
	run := saga.New("provision", saga.WithCompensationTimeout(s.cfg.CompensationTimeout)).
		Add(saga.Step{
			Name: "identity_user",
			Action: func(ctx context.Context) (err error) {
				user, err = s.createUser(ctx, req)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return s.identity.DeleteUser(ctx, user.ID)
			},
		}).
		Add(saga.Step{
			Name: "identity_organization",
			Action: func(ctx context.Context) (err error) {
				org, err = s.createOrganization(ctx, req, user.ID)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return s.identity.DeleteOrganization(ctx, org.ID)
			},
		}).
		Add(saga.Step{
			Name: "identity_crosslink",
			Action: func(ctx context.Context) error {
				return s.crossLink(ctx, user.ID, org.ID)
			},
		}).
		Add(saga.Step{
			Name: "local_records",
			Action: func(ctx context.Context) (err error) {
				tenant, err = s.createLocal(ctx, req, user.ID, org.ID)
				return err
			},
		})

	if err := run.Run(ctx); err != nil {
		return nil, err
	}

	s.welcome(ctx, notify.Welcome{
		TenantID:     tenant.ID,
		Email:        req.Email,
		BusinessName: tenant.BusinessName,
		Subdomain:    tenant.Subdomain,
	})
	return &Result{TenantID: tenant.ID, IdentityUserID: user.ID, IdentityOrgID: org.ID}, nil
}

// checkAvailable fails fast on a taken subdomain or an email already attached
// to a tenant. The unique indexes still decide races.
func (s *Service) checkAvailable(ctx context.Context, req *Request) error {
	taken, err := s.registry.SubdomainTaken(ctx, req.Subdomain)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "subdomain lookup failed", err)
	}
	if taken {
		return apperr.Conflict(MsgSubdomainTaken)
	}

	platform, err := tenantctx.WithPlatformBypass(ctx, "provisioning: email availability")
	if err != nil {
		return err
	}
	n, err := s.client.Count(platform, tenancy.ModelUsers, storage.And{
		storage.Eq{Field: "email", Value: req.Email},
		storage.Not{Cond: storage.IsNull{Field: tenancy.TenantColumn}},
	})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "email lookup failed", err)
	}
	if n > 0 {
		return apperr.Conflict(MsgEmailTaken)
	}
	return nil
}

func (s *Service) createUser(ctx context.Context, req *Request) (*identity.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.IdentityTimeout)
	defer cancel()

	user, err := s.identity.CreateUser(ctx, identity.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.ContactInfo.FirstName,
		LastName:  req.ContactInfo.LastName,
		Metadata:  map[string]any{"role": model.RoleTenantAdmin},
	})
	if err != nil {
		return nil, identityError(err)
	}
	return user, nil
}

func (s *Service) createOrganization(ctx context.Context, req *Request, userID string) (*identity.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.IdentityTimeout)
	defer cancel()

	org, err := s.identity.CreateOrganization(ctx, identity.CreateOrganizationInput{
		Name:      req.BusinessName,
		Slug:      req.Subdomain,
		CreatedBy: userID,
	})
	if err != nil {
		return nil, identityError(err)
	}
	return org, nil
}

// crossLink tags the identity user with its organization id.
func (s *Service) crossLink(ctx context.Context, userID, orgID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.IdentityTimeout)
	defer cancel()

	err := s.identity.UpdateUserMetadata(ctx, userID, map[string]any{
		"role":                        model.RoleTenantAdmin,
		registry.SettingIdentityOrgID: orgID,
	})
	if err == nil {
		return nil
	}
	if s.cfg.StrictCrossLink {
		return identityError(err)
	}
	logger.FromContext(ctx).Warn("Identity user metadata update failed, continuing",
		zap.String("identity_user_id", userID),
		zap.String("identity_org_id", orgID),
		zap.Error(err))
	return nil
}

func identityError(err error) error {
	switch {
	case errors.Is(err, identity.ErrDuplicateEmail):
		return apperr.Wrap(apperr.KindConflict, MsgEmailTaken, err)
	case errors.Is(err, identity.ErrDuplicateSlug):
		return apperr.Wrap(apperr.KindConflict, MsgSubdomainTaken, err)
	}
	return apperr.Upstream(msgAuthPrefix+identity.Message(err), err)
}

// createLocal writes the tenant, its branding and the admin user in one
// transaction.
func (s *Service) createLocal(ctx context.Context, req *Request, userID, orgID string) (*model.Tenant, error) {
	tmpl, err := s.templates.Resolve(ctx, req.TemplateID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "template lookup failed", err)
	}
	branding := template.BrandingFor(tmpl)

	settings := model.JSONMap{registry.SettingIdentityOrgID: orgID}
	if phone := strings.TrimSpace(req.ContactInfo.Phone); phone != "" {
		settings[SettingContactPhone] = phone
	}

	var tenant *model.Tenant
	err = s.client.Transaction(ctx, func(tx storage.Client) error {
		created, err := s.registry.WithClient(tx).Create(ctx, &model.Tenant{
			BusinessName: req.BusinessName,
			Subdomain:    req.Subdomain,
			CountryCode:  req.CountryCode,
			Settings:     settings,
		})
		if err != nil {
			return err
		}
		tenant = created

		scoped := tenantctx.MustBind(ctx, created.ID)
		now := s.now().UTC()
		if _, err := tx.Create(scoped, tenancy.ModelBrandings, storage.Record{
			"template_key":  branding.TemplateKey,
			"primary_color": branding.PrimaryColor,
			"font_family":   branding.FontFamily,
			"created_at":    now,
			"updated_at":    now,
		}); err != nil {
			return err
		}
		return s.attachAdmin(ctx, tx, req, created.ID, userID)
	})
	if err != nil {
		return nil, localError(err)
	}
	return tenant, nil
}

// attachAdmin links the admin user to tenantID. A row synced earlier by the
// identity webhook has no tenant yet and is adopted; otherwise a new row is
// created.
func (s *Service) attachAdmin(ctx context.Context, tx storage.Client, req *Request, tenantID, userID string) error {
	platform, err := tenantctx.WithPlatformBypass(ctx, "provisioning: attach admin user")
	if err != nil {
		return err
	}
	now := s.now().UTC()

	existing, err := tx.FindFirst(platform, tenancy.ModelUsers, storage.Query{
		Where: storage.Eq{Field: "email", Value: req.Email},
	})
	switch {
	case err == nil:
		if owner := existing.String(tenancy.TenantColumn); owner != "" && owner != tenantID {
			return apperr.Conflict(MsgEmailTaken)
		}
		_, err = tx.Update(platform, tenancy.ModelUsers,
			storage.Eq{Field: storage.IDColumn, Value: existing.String(storage.IDColumn)},
			storage.Record{
				tenancy.TenantColumn: tenantID,
				"role":               model.RoleTenantAdmin,
				"identity_user_id":   userID,
				"updated_at":         now,
			})
		return err
	case storage.IsNotFound(err):
	default:
		return err
	}

	_, err = tx.Create(tenantctx.MustBind(ctx, tenantID), tenancy.ModelUsers, storage.Record{
		"email":            req.Email,
		"password":         model.ExternalAuthPassword,
		"role":             model.RoleTenantAdmin,
		"identity_user_id": userID,
		"first_name":       req.ContactInfo.FirstName,
		"last_name":        req.ContactInfo.LastName,
		"created_at":       now,
		"updated_at":       now,
	})
	return err
}

func localError(err error) error {
	if uv, ok := storage.AsUniqueViolation(err); ok {
		if uv.Field == "email" {
			return apperr.Wrap(apperr.KindConflict, MsgEmailTaken, err)
		}
		return apperr.Wrap(apperr.KindConflict, MsgSubdomainTaken, err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.KindInternal, "tenant records could not be saved", err)
}

// welcome sends the welcome notification in the background. The request
// context's tenant and cancellation do not carry over.
func (s *Service) welcome(ctx context.Context, w notify.Welcome) {
	if s.welcomer == nil {
		return
	}
	bg := tenantctx.Detach(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(bg).Error("Welcome notification panicked", zap.Any("panic", r))
			}
		}()
		if err := s.welcomer.SendWelcome(bg, w); err != nil {
			logger.FromContext(bg).Warn("Welcome notification failed",
				zap.String("tenant_id", w.TenantID),
				zap.Error(err))
		}
	}()
}
