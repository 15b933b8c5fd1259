// Package template resolves storefront templates from the platform catalog
// and maps their presets to branding values.
package template

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

// Collection is the platform template catalog table.
const Collection = "templates"

// DefaultKey is the key of the fallback template.
const DefaultKey = "default"

var colorPresets = map[string]string{
	"default":  "#2563eb",
	"ocean":    "#0ea5e9",
	"forest":   "#16a34a",
	"sunset":   "#f97316",
	"midnight": "#1e293b",
}

var fontPresets = map[string]string{
	"default": "system-ui, sans-serif",
	"modern":  "Inter, sans-serif",
	"classic": "Georgia, serif",
	"playful": "Poppins, sans-serif",
}

// Branding is the look derived from a template.
type Branding struct {
	TemplateKey  string `json:"template_key"`
	PrimaryColor string `json:"primary_color"`
	FontFamily   string `json:"font_family"`
}

// BrandingFor maps t's presets to concrete values. Unknown presets fall
// back to the defaults.
func BrandingFor(t *model.Template) Branding {
	color, ok := colorPresets[t.ColorPreset]
	if !ok {
		color = colorPresets["default"]
	}
	font, ok := fontPresets[t.FontPreset]
	if !ok {
		font = fontPresets["default"]
	}
	return Branding{TemplateKey: t.Key, PrimaryColor: color, FontFamily: font}
}

// Catalog is the template set seeded at startup.
var Catalog = []model.Template{
	{Key: DefaultKey, Name: "Default", ColorPreset: "default", FontPreset: "default", IsDefault: true},
	{Key: "boutique", Name: "Boutique", ColorPreset: "sunset", FontPreset: "classic"},
	{Key: "outdoor", Name: "Outdoor", ColorPreset: "forest", FontPreset: "modern"},
	{Key: "tech", Name: "Tech", ColorPreset: "midnight", FontPreset: "modern"},
	{Key: "kids", Name: "Kids", ColorPreset: "ocean", FontPreset: "playful"},
}

// Resolver looks templates up in the catalog.
type Resolver struct {
	client storage.Client
}

// NewResolver creates a Resolver.
func NewResolver(client storage.Client) *Resolver {
	return &Resolver{client: client}
}

func toRecord(t *model.Template) storage.Record {
	return storage.Record{
		"key":          t.Key,
		"name":         t.Name,
		"color_preset": t.ColorPreset,
		"font_preset":  t.FontPreset,
		"is_default":   t.IsDefault,
		"created_at":   time.Now().UTC(),
	}
}

func fromRecord(r storage.Record) *model.Template {
	return &model.Template{
		ID:          r.String(storage.IDColumn),
		Key:         r.String("key"),
		Name:        r.String("name"),
		ColorPreset: r.String("color_preset"),
		FontPreset:  r.String("font_preset"),
		IsDefault:   r.Bool("is_default"),
		CreatedAt:   r.Time("created_at"),
	}
}

// Resolve returns the template identified by ref (id or key), else the
// platform default, else a freshly created minimal default.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*model.Template, error) {
	log := logger.FromContext(ctx)

	if ref != "" {
		row, err := r.client.FindFirst(ctx, Collection, storage.Query{Where: storage.Or{
			storage.Eq{Field: storage.IDColumn, Value: ref},
			storage.Eq{Field: "key", Value: ref},
		}})
		if err == nil {
			return fromRecord(row), nil
		}
		if !storage.IsNotFound(err) {
			return nil, err
		}
		log.Warn("Template not found, using platform default", zap.String("template", ref))
	}

	row, err := r.client.FindFirst(ctx, Collection, storage.Query{
		Where:   storage.Eq{Field: "is_default", Value: true},
		OrderBy: []storage.Order{{Field: "created_at"}},
	})
	if err == nil {
		return fromRecord(row), nil
	}
	if !storage.IsNotFound(err) {
		return nil, err
	}

	log.Warn("No default template in catalog, creating one")
	created, err := r.client.Create(ctx, Collection, toRecord(&Catalog[0]))
	if _, dup := storage.AsUniqueViolation(err); dup {
		// Lost a race with another creator.
		row, err := r.client.FindFirst(ctx, Collection, storage.Query{Where: storage.Eq{Field: "key", Value: DefaultKey}})
		if err != nil {
			return nil, err
		}
		return fromRecord(row), nil
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(created), nil
}

// Seed inserts every Catalog template that is missing.
func (r *Resolver) Seed(ctx context.Context) (int, error) {
	inserted := 0
	for i := range Catalog {
		t := &Catalog[i]
		n, err := r.client.Count(ctx, Collection, storage.Eq{Field: "key", Value: t.Key})
		if err != nil {
			return inserted, err
		}
		if n > 0 {
			continue
		}
		if _, err := r.client.Create(ctx, Collection, toRecord(t)); err != nil {
			if _, dup := storage.AsUniqueViolation(err); dup {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// Branding returns the branding of the tenant bound to ctx, or the default
// template's branding when the tenant has none.
func (r *Resolver) Branding(ctx context.Context) (Branding, error) {
	row, err := r.client.FindFirst(ctx, tenancy.ModelBrandings, storage.Query{
		OrderBy: []storage.Order{{Field: "created_at", Desc: true}},
	})
	if storage.IsNotFound(err) {
		return BrandingFor(&Catalog[0]), nil
	}
	if err != nil {
		return Branding{}, err
	}
	return Branding{
		TemplateKey:  row.String("template_key"),
		PrimaryColor: row.String("primary_color"),
		FontFamily:   row.String("font_family"),
	}, nil
}
