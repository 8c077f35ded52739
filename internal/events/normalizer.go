package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"wpinsight/internal/registry"
)

// ValidationError and ErrInvalidEventName are shared with the registry so a
// name rejected at registration is rejected the same way at ingestion.
type ValidationError = registry.ValidationError

var ErrInvalidEventName = registry.ErrInvalidEventName

// Definitions looks up event definitions. *registry.Registry implements it.
type Definitions interface {
	Lookup(ctx context.Context, name string) (*registry.EventDefinition, error)
}

// NormalizedEvent is a validated event name with its category and coerced properties.
type NormalizedEvent struct {
	Name       string
	Category   registry.Category
	Registered bool
	Properties Properties
}

// Normalizer validates events against the registry. The registry is
// advisory: unregistered names are accepted under the custom category and
// property type mismatches are coerced or kept, never rejected.
type Normalizer struct {
	defs   Definitions
	logger *slog.Logger
}

func NewNormalizer(defs Definitions, logger *slog.Logger) *Normalizer {
	return &Normalizer{defs: defs, logger: logger}
}

// Normalize rejects only malformed event names, with a *ValidationError.
func (n *Normalizer) Normalize(ctx context.Context, name string, raw Properties) (*NormalizedEvent, error) {
	eventName, err := registry.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	props := make(Properties, len(raw))
	for key, value := range raw {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		props[key] = value
	}

	event := &NormalizedEvent{Name: eventName, Category: registry.CategoryCustom, Properties: props}

	def, err := n.defs.Lookup(ctx, eventName)
	switch {
	case errors.Is(err, registry.ErrDefinitionNotFound):
		return event, nil
	case err != nil:
		n.logger.Warn("Event definition lookup failed, tracking as custom",
			slog.String("event_name", eventName),
			slog.Any("error", err))
		return event, nil
	}

	event.Registered = true
	event.Category = def.Category
	if !def.Active {
		n.logger.Debug("Tracking event with inactive definition", slog.String("event_name", eventName))
	}

	schema, err := def.PropertySchema()
	if err != nil {
		n.logger.Warn("Ignoring unreadable event schema",
			slog.String("event_name", eventName),
			slog.Any("error", err))
		return event, nil
	}
	for key, expected := range schema {
		value, ok := props[key]
		if !ok {
			continue
		}
		coerced, ok := value.Coerce(expected)
		if !ok {
			n.logger.Warn("Event property does not match schema, keeping value as sent",
				slog.String("event_name", eventName),
				slog.String("property", key),
				slog.String("expected", string(expected)),
				slog.String("got", value.Kind().String()))
			continue
		}
		if coerced.Kind() != value.Kind() {
			n.logger.Debug("Coerced event property",
				slog.String("event_name", eventName),
				slog.String("property", key),
				slog.String("from", value.Kind().String()),
				slog.String("to", coerced.Kind().String()))
		}
		props[key] = coerced
	}
	return event, nil
}
