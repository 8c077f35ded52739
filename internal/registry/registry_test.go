package registry_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal/registry"
	"wpinsight/internal/testsupport"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "lower-cases and trims", input: "  Form_Submit ", want: "form_submit"},
		{name: "keeps punctuation", input: "video.play-25%", want: "video.play-25%"},
		{name: "empty", input: "", wantErr: true},
		{name: "only spaces", input: "   ", wantErr: true},
		{name: "inner whitespace", input: "add to cart", wantErr: true},
		{name: "control character", input: "add\x00cart", wantErr: true},
		{name: "too long", input: strings.Repeat("a", registry.MaxEventNameLength+1), wantErr: true},
		{name: "max length", input: strings.Repeat("a", registry.MaxEventNameLength), want: strings.Repeat("a", registry.MaxEventNameLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.NormalizeName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var verr *registry.ValidationError
				assert.True(t, errors.As(err, &verr))
				assert.ErrorIs(t, err, registry.ErrInvalidEventName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegisterLastWriteWins(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	reg := registry.New(db, testsupport.GetLogger())
	ctx := context.Background()

	first, err := reg.Register(ctx, "Newsletter_Signup", registry.Definition{
		Label:    "Newsletter signup",
		Category: registry.CategoryForm,
		Owner:    "mailer-plugin",
		Schema:   registry.Schema{"list_id": registry.TypeNumber},
	})
	require.NoError(t, err)
	assert.Equal(t, "newsletter_signup", first.EventName)
	assert.True(t, first.Active)

	second, err := reg.Register(ctx, "newsletter_signup", registry.Definition{
		Label:    "Signup",
		Category: registry.CategorySocial,
		Owner:    "other-plugin",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Signup", second.Label)
	assert.Equal(t, registry.CategorySocial, second.Category)
	assert.Equal(t, "other-plugin", second.Owner)

	schema, err := second.PropertySchema()
	require.NoError(t, err)
	assert.Empty(t, schema)

	defs, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestRegisterValidation(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	reg := registry.New(db, testsupport.GetLogger())
	ctx := context.Background()

	_, err := reg.Register(ctx, "", registry.Definition{})
	assert.ErrorIs(t, err, registry.ErrInvalidEventName)

	_, err = reg.Register(ctx, "signup", registry.Definition{Category: "marketing"})
	var verr *registry.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "category", verr.Field)

	_, err = reg.Register(ctx, "signup", registry.Definition{Schema: registry.Schema{"x": "date"}})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "schema", verr.Field)

	def, err := reg.Register(ctx, "signup", registry.Definition{})
	require.NoError(t, err)
	assert.Equal(t, registry.CategoryCustom, def.Category)
}

func TestSetActiveAndLookup(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	reg := registry.New(db, testsupport.GetLogger())
	ctx := context.Background()

	_, err := reg.Lookup(ctx, "video_play")
	assert.ErrorIs(t, err, registry.ErrDefinitionNotFound)
	assert.ErrorIs(t, reg.SetActive(ctx, "video_play", false), registry.ErrDefinitionNotFound)

	_, err = reg.Register(ctx, "video_play", registry.Definition{Category: registry.CategoryVideo})
	require.NoError(t, err)
	require.NoError(t, reg.SetActive(ctx, "video_play", false))

	def, err := reg.Lookup(ctx, "video_play")
	require.NoError(t, err)
	assert.False(t, def.Active)

	// Re-registering keeps the toggle
	def, err = reg.Register(ctx, "video_play", registry.Definition{Category: registry.CategoryVideo, Label: "Play"})
	require.NoError(t, err)
	assert.False(t, def.Active)
}

func TestLookupBuiltins(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	reg := registry.New(db, testsupport.GetLogger())

	def, err := reg.Lookup(context.Background(), registry.EventProductView)
	require.NoError(t, err)
	assert.True(t, def.BuiltIn)
	assert.Equal(t, registry.CategoryEcommerce, def.Category)

	schema, err := def.PropertySchema()
	require.NoError(t, err)
	assert.Equal(t, registry.TypeNumber, schema["price"])
}
