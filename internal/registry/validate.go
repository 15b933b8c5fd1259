package registry

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/model"
)

const maxBusinessNameLen = 120

var (
	subdomainPattern   = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,61}[a-z0-9])$`)
	countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)
	hostnamePattern    = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
)

var reservedSubdomains = map[string]struct{}{
	"www":   {},
	"api":   {},
	"admin": {},
	"app":   {},
	"mail":  {},
}

// ValidateBusinessName checks the display name of a tenant.
func ValidateBusinessName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Validation("business name is required")
	}
	if utf8.RuneCountInString(name) > maxBusinessNameLen {
		return apperr.Validation("business name must be at most 120 characters")
	}
	return nil
}

// ValidateSubdomain checks the DNS label a tenant is served under.
func ValidateSubdomain(subdomain string) error {
	if !subdomainPattern.MatchString(subdomain) {
		return apperr.Validation("subdomain must be 3-63 lowercase letters, digits or hyphens and may not start or end with a hyphen")
	}
	if _, reserved := reservedSubdomains[subdomain]; reserved {
		return apperr.Validation("subdomain " + subdomain + " is reserved")
	}
	return nil
}

// ValidateCountryCode checks an ISO 3166-1 alpha-2 code.
func ValidateCountryCode(code string) error {
	if !countryCodePattern.MatchString(code) {
		return apperr.Validation("country code must be an ISO 3166-1 alpha-2 code")
	}
	return nil
}

// ValidateCustomDomain checks a fully qualified hostname.
func ValidateCustomDomain(domain string) error {
	if len(domain) > 253 || !hostnamePattern.MatchString(domain) {
		return apperr.Validation("custom domain must be a valid hostname")
	}
	return nil
}

// Validate checks every user supplied field of t.
func Validate(t *model.Tenant) error {
	if err := ValidateBusinessName(t.BusinessName); err != nil {
		return err
	}
	if err := ValidateSubdomain(t.Subdomain); err != nil {
		return err
	}
	if err := ValidateCountryCode(t.CountryCode); err != nil {
		return err
	}
	if t.CustomDomain != nil {
		if err := ValidateCustomDomain(*t.CustomDomain); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeHost lowercases host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}
