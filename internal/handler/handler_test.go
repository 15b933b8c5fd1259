package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suteetoe/shopfleet/internal/catalog"
	"github.com/suteetoe/shopfleet/internal/identity"
	"github.com/suteetoe/shopfleet/internal/identity/identitytest"
	"github.com/suteetoe/shopfleet/internal/middleware"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/provisioning"
	"github.com/suteetoe/shopfleet/internal/registry"
	"github.com/suteetoe/shopfleet/internal/storage/memstore"
	"github.com/suteetoe/shopfleet/internal/template"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/pkg/jwtutil"
)

const webhookSecret = "hook-secret"

type testServer struct {
	e     *echo.Echo
	store *memstore.Store
	idp   *identitytest.Fake
	jwt   *jwtutil.JWTUtil
	prov  *provisioning.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New(memstore.DefaultUniques()...)
	client := tenancy.New(store, tenancy.DefaultPolicy())
	reg := registry.New(client, registry.WithBaseDomain("shops.test"))
	templates := template.NewResolver(client)
	idp := identitytest.New()
	prov := provisioning.NewService(client, reg, idp, templates, nil, provisioning.Config{})

	h := &Handler{
		ServiceName:  "shopfleet",
		Provisioning: prov,
		Registry:     reg,
		Products:     catalog.NewProducts(client),
		Templates:    templates,
		Client:       client,
	}
	j := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})
	e := echo.New()
	h.Register(e, RouteConfig{
		JWT:              j,
		ProvisionLimiter: middleware.NewIPRateLimiter(100, 100),
		WebhookSecret:    webhookSecret,
	})
	return &testServer{e: e, store: store, idp: idp, jwt: j, prov: prov}
}

func (s *testServer) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		if k == "Host" {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) token(t *testing.T, tenantID, role string) map[string]string {
	t.Helper()
	tok, err := s.jwt.GenerateToken("someone@acme.test", "u-"+role, tenantID, role)
	require.NoError(t, err)
	return map[string]string{echo.HeaderAuthorization: "Bearer " + tok}
}

func (s *testServer) provision(t *testing.T, subdomain, email string) provisioning.Result {
	t.Helper()
	body := `{"businessName":"Acme Outfitters","email":"` + email + `","password":"secret1","subdomain":"` + subdomain + `","licenseToken":"lic","countryCode":"US","contactInfo":{"firstName":"Ada"}}`
	rec := s.do(t, http.MethodPost, "/api/provision", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res provisioning.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Kind, body.Message
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"shopfleet"}`, rec.Body.String())
}

func TestProvisionEndpoint(t *testing.T) {
	s := newTestServer(t)

	res := s.provision(t, "acme", "owner@acme.test")
	assert.NotEmpty(t, res.TenantID)
	assert.NotEmpty(t, res.IdentityUserID)
	assert.NotEmpty(t, res.IdentityOrgID)

	rec := s.do(t, http.MethodPost, "/api/provision",
		`{"businessName":"Copy","email":"other@acme.test","password":"x","subdomain":"acme","licenseToken":"lic","countryCode":"US"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	kind, msg := decodeError(t, rec)
	assert.Equal(t, "CONFLICT", kind)
	assert.Equal(t, "Subdomain already taken", msg)

	rec = s.do(t, http.MethodPost, "/api/provision",
		`{"businessName":"Bad","email":"nope","password":"x","subdomain":"bad","licenseToken":"lic","countryCode":"US"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/provision", `{"businessName":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProvisionEndpointUpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.idp.FailOn(identitytest.OpCreateUser, &identity.APIError{Status: 422, Message: "password too weak"})

	rec := s.do(t, http.MethodPost, "/api/provision",
		`{"businessName":"Acme","email":"owner@acme.test","password":"x","subdomain":"acme","licenseToken":"lic","countryCode":"US"}`, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	kind, msg := decodeError(t, rec)
	assert.Equal(t, "UPSTREAM", kind)
	assert.Equal(t, "Authentication Error: password too weak", msg)
}

func TestIdentityWebhook(t *testing.T) {
	s := newTestServer(t)
	event := `{"type":"user.created","data":{"id":"user_ext","first_name":"Ada","email_addresses":[{"email_address":"owner@acme.test"}]}}`

	rec := s.do(t, http.MethodPost, "/webhooks/identity", event, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/webhooks/identity", event, map[string]string{middleware.WebhookSecretHeader: webhookSecret})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	users := s.store.Rows(tenancy.ModelUsers)
	require.Len(t, users, 1)
	assert.Equal(t, "user_ext", users[0].String("identity_user_id"))

	res := s.provision(t, "acme", "owner@acme.test")
	users = s.store.Rows(tenancy.ModelUsers)
	require.Len(t, users, 1)
	assert.Equal(t, res.TenantID, users[0].String(tenancy.TenantColumn))

	rec = s.do(t, http.MethodPost, "/webhooks/identity", `{"type":"session.created","data":{}}`,
		map[string]string{middleware.WebhookSecretHeader: webhookSecret})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPlatformAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	res := s.provision(t, "acme", "owner@acme.test")
	s.provision(t, "globex", "owner@globex.test")

	platform := s.token(t, "", model.RolePlatformAdmin)
	tenantAdmin := s.token(t, res.TenantID, model.RoleTenantAdmin)

	rec := s.do(t, http.MethodGet, "/admin/tenants", "", tenantAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/tenants?q=glob", "", platform)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Tenants []model.Tenant `json:"tenants"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "globex", list.Tenants[0].Subdomain)

	rec = s.do(t, http.MethodPost, "/admin/tenants/"+res.TenantID+"/deactivate", "", platform)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/store", "", map[string]string{"Host": "acme.shops.test"}).Code)

	rec = s.do(t, http.MethodPost, "/admin/tenants/"+res.TenantID+"/activate", "", platform)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/store", "", map[string]string{"Host": "acme.shops.test"}).Code)

	rec = s.do(t, http.MethodPost, "/admin/tenants/missing/activate", "", platform)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	a := s.provision(t, "acme", "owner@acme.test")
	b := s.provision(t, "globex", "owner@globex.test")
	adminA := s.token(t, a.TenantID, model.RoleTenantAdmin)
	adminB := s.token(t, b.TenantID, model.RoleTenantAdmin)

	rec := s.do(t, http.MethodGet, "/api/tenant", "", adminA)
	require.Equal(t, http.StatusOK, rec.Code)
	var tenant model.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, a.TenantID, tenant.ID)

	rec = s.do(t, http.MethodPatch, "/api/tenant", `{"business_name":"Acme Gear","settings":{"theme":"dark"}}`, adminA)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, "Acme Gear", tenant.BusinessName)

	rec = s.do(t, http.MethodPatch, "/api/tenant", `{"settings":{"identityOrgId":"org_x"}}`, adminA)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/tenant/domain", `{"domain":"shop.acme.com"}`, adminA)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPut, "/api/tenant/domain", `{"domain":"shop.acme.com"}`, adminB)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/products", `{"name":"Trail Boots","sku":"BOOT-1","price":120,"stock":3}`, adminA)
	require.Equal(t, http.StatusCreated, rec.Code)
	var product model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	assert.Equal(t, a.TenantID, product.TenantID)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/products/"+product.ID, "", adminB).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/products/"+product.ID, `{"price":1}`, adminB).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/products/"+product.ID, "", adminB).Code)

	rec = s.do(t, http.MethodGet, "/api/products", "", adminB)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodPut, "/api/products/"+product.ID, `{"price":99}`, adminA)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/tenant/stats", "", adminA)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats catalog.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Products)
	assert.Equal(t, 99.0, stats.HighestPrice)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/products/"+product.ID, "", adminA).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/products/"+product.ID, "", adminA).Code)
}

func TestStorefrontRoutes(t *testing.T) {
	s := newTestServer(t)
	a := s.provision(t, "acme", "owner@acme.test")
	adminA := s.token(t, a.TenantID, model.RoleTenantAdmin)
	acmeHost := map[string]string{"Host": "acme.shops.test"}

	rec := s.do(t, http.MethodGet, "/store", "", acmeHost)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"template_key":"default"`)

	visible := s.do(t, http.MethodPost, "/api/products", `{"name":"Boots","sku":"B1","price":10}`, adminA)
	require.Equal(t, http.StatusCreated, visible.Code)
	hidden := s.do(t, http.MethodPost, "/api/products", `{"name":"Prototype","sku":"P1","price":10,"is_active":false}`, adminA)
	require.Equal(t, http.StatusCreated, hidden.Code)
	var hiddenProduct model.Product
	require.NoError(t, json.Unmarshal(hidden.Body.Bytes(), &hiddenProduct))

	rec = s.do(t, http.MethodGet, "/store/products", "", acmeHost)
	require.Equal(t, http.StatusOK, rec.Code)
	var products []model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "B1", products[0].SKU)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/store/products/"+hiddenProduct.ID, "", acmeHost).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/store/products", "", map[string]string{"Host": "nobody.shops.test"}).Code)

	rec = s.do(t, http.MethodGet, "/store/email-templates", "", acmeHost)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
