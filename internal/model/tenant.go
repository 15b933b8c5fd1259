package model

import (
	"time"
)

// Tenant is one storefront on the platform. Tenants are not tenant scoped;
// the registry guards them explicitly.
type Tenant struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	BusinessName string    `json:"business_name" gorm:"type:varchar(120);not null"`
	Subdomain    string    `json:"subdomain" gorm:"type:varchar(63);uniqueIndex:idx_tenants_subdomain;not null"`
	CustomDomain *string   `json:"custom_domain,omitempty" gorm:"type:varchar(253);uniqueIndex:idx_tenants_custom_domain"`
	CountryCode  string    `json:"country_code" gorm:"type:char(2);not null"`
	IsActive     bool      `json:"is_active" gorm:"default:true"`
	Settings     JSONMap   `json:"settings" gorm:"type:jsonb"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Branding holds the look of a storefront, seeded from a template preset.
type Branding struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID     string    `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	TemplateKey  string    `json:"template_key" gorm:"type:varchar(100)"`
	PrimaryColor string    `json:"primary_color" gorm:"type:varchar(20)"`
	FontFamily   string    `json:"font_family" gorm:"type:varchar(100)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Template is an entry of the platform template catalog.
type Template struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Key         string    `json:"key" gorm:"type:varchar(100);uniqueIndex:idx_templates_key;not null"`
	Name        string    `json:"name" gorm:"type:varchar(120)"`
	ColorPreset string    `json:"color_preset" gorm:"type:varchar(50)"`
	FontPreset  string    `json:"font_preset" gorm:"type:varchar(50)"`
	IsDefault   bool      `json:"is_default" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
}
