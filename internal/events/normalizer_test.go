package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal/events"
	"wpinsight/internal/registry"
	"wpinsight/internal/testsupport"
)

type failingDefinitions struct{}

func (failingDefinitions) Lookup(context.Context, string) (*registry.EventDefinition, error) {
	return nil, errors.New("database is gone")
}

func TestNormalizeUnregisteredIsCustom(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	n := events.NewNormalizer(registry.New(db, testsupport.GetLogger()), testsupport.GetLogger())

	event, err := n.Normalize(context.Background(), "Third_Party_Thing", events.Properties{"k": events.String("v")})
	require.NoError(t, err)
	assert.Equal(t, "third_party_thing", event.Name)
	assert.Equal(t, registry.CategoryCustom, event.Category)
	assert.False(t, event.Registered)
	assert.Equal(t, "v", event.Properties.Get("k"))
}

func TestNormalizeCoercesRegisteredSchema(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	reg := registry.New(db, testsupport.GetLogger())
	n := events.NewNormalizer(reg, testsupport.GetLogger())
	ctx := context.Background()

	_, err := reg.Register(ctx, "add_to_cart", registry.Definition{
		Category: registry.CategoryEcommerce,
		Schema: registry.Schema{
			"price":    registry.TypeNumber,
			"gift":     registry.TypeBoolean,
			"quantity": registry.TypeNumber,
		},
	})
	require.NoError(t, err)

	event, err := n.Normalize(ctx, "add_to_cart", events.Properties{
		"price":    events.String("12.50"),
		"gift":     events.String("no"),
		"quantity": events.String("lots"),
		"extra":    events.Bool(true),
	})
	require.NoError(t, err)
	assert.True(t, event.Registered)
	assert.Equal(t, registry.CategoryEcommerce, event.Category)
	assert.Equal(t, events.Number(12.5), event.Properties["price"])
	assert.Equal(t, events.Bool(false), event.Properties["gift"])
	// Non-coercible values are kept as sent
	assert.Equal(t, events.String("lots"), event.Properties["quantity"])
	// Properties outside the schema are kept
	assert.Equal(t, events.Bool(true), event.Properties["extra"])
}

func TestNormalizeRejectsMalformedNames(t *testing.T) {
	n := events.NewNormalizer(failingDefinitions{}, testsupport.GetLogger())

	for _, name := range []string{"", "  ", "two words", "tab\tname"} {
		_, err := n.Normalize(context.Background(), name, nil)
		var verr *events.ValidationError
		assert.True(t, errors.As(err, &verr), name)
		assert.ErrorIs(t, err, events.ErrInvalidEventName, name)
	}
}

func TestNormalizeLookupFailureDegradesToCustom(t *testing.T) {
	n := events.NewNormalizer(failingDefinitions{}, testsupport.GetLogger())

	event, err := n.Normalize(context.Background(), "signup", nil)
	require.NoError(t, err)
	assert.Equal(t, registry.CategoryCustom, event.Category)
}
