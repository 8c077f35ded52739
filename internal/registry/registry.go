package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"wpinsight/internal/models"
)

// Category groups event definitions for reporting.
type Category string

const (
	CategoryEngagement Category = "engagement"
	CategoryEcommerce  Category = "ecommerce"
	CategoryForm       Category = "form"
	CategoryVideo      Category = "video"
	CategoryDownload   Category = "download"
	CategorySocial     Category = "social"
	CategoryCustom     Category = "custom"
)

// ValidCategories returns all valid categories
func ValidCategories() []Category {
	return []Category{
		CategoryEngagement,
		CategoryEcommerce,
		CategoryForm,
		CategoryVideo,
		CategoryDownload,
		CategorySocial,
		CategoryCustom,
	}
}

// IsValidCategory checks if the given category is valid
func IsValidCategory(c Category) bool {
	for _, valid := range ValidCategories() {
		if c == valid {
			return true
		}
	}
	return false
}

// PropertyType is the declared type of an event property.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
)

// Schema maps property names to their expected types.
type Schema map[string]PropertyType

// Built-in event names tracked without registration.
const (
	EventPageview    = "pageview"
	EventClick       = "click"
	EventEmailClick  = "email_click"
	EventProductView = "product_view"
	EventPurchase    = "purchase"
)

var builtins = map[string]Definition{
	EventPageview:    {Label: "Pageview", Category: CategoryEngagement, Owner: "core"},
	EventClick:       {Label: "Click", Category: CategoryEngagement, Owner: "core", Schema: Schema{"element": TypeString}},
	EventEmailClick:  {Label: "Email click", Category: CategoryEngagement, Owner: "core", Schema: Schema{"url": TypeString}},
	EventProductView: {Label: "Product view", Category: CategoryEcommerce, Owner: "core", Schema: Schema{"product": TypeString, "price": TypeNumber}},
	EventPurchase:    {Label: "Purchase", Category: CategoryEcommerce, Owner: "core", Schema: Schema{"amount": TypeNumber, "currency": TypeString}},
}

// ErrDefinitionNotFound is returned when no definition exists for an event name.
var ErrDefinitionNotFound = errors.New("event definition not found")

// Definition is the registration payload.
type Definition struct {
	Label    string
	Category Category
	Owner    string
	Schema   Schema
}

// EventDefinition is a registry row
type EventDefinition struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	EventName string      `gorm:"not null;size:128;uniqueIndex:idx_event_definitions_name" json:"event_name"`
	Label     string      `gorm:"size:255" json:"label"`
	Category  Category    `gorm:"size:50;not null;default:'custom'" json:"category"`
	Owner     string      `gorm:"size:255" json:"owner"`
	Schema    models.JSON `gorm:"type:text" json:"schema"`
	Active    bool        `gorm:"not null;default:true" json:"active"`
	BuiltIn   bool        `gorm:"-" json:"built_in"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (EventDefinition) TableName() string {
	return "event_definitions"
}

// PropertySchema decodes the stored schema. A definition without one has an empty schema.
func (d EventDefinition) PropertySchema() (Schema, error) {
	schema := Schema{}
	if err := d.Schema.Decode(&schema); err != nil {
		return nil, fmt.Errorf("failed to decode schema for %s: %w", d.EventName, err)
	}
	return schema, nil
}

// Builtin returns the definition of a built-in event name.
func Builtin(name string) (EventDefinition, bool) {
	def, ok := builtins[name]
	if !ok {
		return EventDefinition{}, false
	}
	schema, _ := models.MarshalJSONColumn(def.Schema)
	return EventDefinition{
		EventName: name,
		Label:     def.Label,
		Category:  def.Category,
		Owner:     def.Owner,
		Schema:    schema,
		Active:    true,
		BuiltIn:   true,
	}, true
}

// Registry stores event definitions.
type Registry struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB, logger *slog.Logger) *Registry {
	return &Registry{db: db, logger: logger}
}

// Register creates or replaces the definition for name. Registration is
// idempotent by event name and the last write wins. The active flag of an
// existing definition is preserved.
func (r *Registry) Register(ctx context.Context, name string, def Definition) (*EventDefinition, error) {
	eventName, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if def.Category == "" {
		def.Category = CategoryCustom
	}
	if !IsValidCategory(def.Category) {
		return nil, &ValidationError{Field: "category", Value: string(def.Category), Reason: "unknown category"}
	}
	for prop, typ := range def.Schema {
		switch typ {
		case TypeString, TypeNumber, TypeBoolean:
		default:
			return nil, &ValidationError{Field: "schema", Value: prop, Reason: fmt.Sprintf("unknown property type %q", typ)}
		}
	}
	if def.Schema == nil {
		def.Schema = Schema{}
	}
	schema, err := models.MarshalJSONColumn(def.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO event_definitions (event_name, label, category, owner, schema, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, true, ?, ?)
		ON CONFLICT (event_name) DO UPDATE SET
			label = excluded.label,
			category = excluded.category,
			owner = excluded.owner,
			schema = excluded.schema,
			updated_at = excluded.updated_at
	`
	err = models.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Exec(query, eventName, def.Label, def.Category, def.Owner, schema, now, now).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", eventName, err)
	}

	r.logger.Info("Registered event definition",
		slog.String("event_name", eventName),
		slog.String("category", string(def.Category)),
		slog.String("owner", def.Owner))

	return r.Lookup(ctx, eventName)
}

// SetActive toggles a stored definition.
func (r *Registry) SetActive(ctx context.Context, name string, active bool) error {
	eventName, err := NormalizeName(name)
	if err != nil {
		return err
	}
	var affected int64
	err = models.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&EventDefinition{}).
			Where("event_name = ?", eventName).
			Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", eventName, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", eventName, ErrDefinitionNotFound)
	}
	return nil
}

// Lookup returns the stored definition for name, falling back to the built-in
// definitions. It returns ErrDefinitionNotFound for unregistered names.
func (r *Registry) Lookup(ctx context.Context, name string) (*EventDefinition, error) {
	var def EventDefinition
	err := r.db.WithContext(ctx).Where("event_name = ?", name).First(&def).Error
	if err == nil {
		return &def, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if builtin, ok := Builtin(name); ok {
		return &builtin, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrDefinitionNotFound)
}

// List returns all stored definitions ordered by name.
func (r *Registry) List(ctx context.Context) ([]EventDefinition, error) {
	var defs []EventDefinition
	if err := r.db.WithContext(ctx).Order("event_name ASC").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}
