package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal/registry"
)

func TestValueJSON(t *testing.T) {
	props, err := ParseProperties([]byte(`{"s":"x","n":1.5,"b":true,"z":null,"obj":{"a":1}}`))
	require.NoError(t, err)

	assert.Equal(t, KindString, props["s"].Kind())
	assert.Equal(t, 1.5, props["n"].Num())
	assert.True(t, props["b"].Boolean())
	assert.True(t, props["z"].IsNull())
	assert.Equal(t, `{"a":1}`, props["obj"].Str())

	data, err := json.Marshal(props)
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"x","n":1.5,"b":true,"z":null,"obj":"{\"a\":1}"}`, string(data))
}

func TestValueCoerce(t *testing.T) {
	tests := []struct {
		name   string
		in     Value
		to     registry.PropertyType
		want   Value
		wantOK bool
	}{
		{"numeric string to number", String(" 19.99 "), registry.TypeNumber, Number(19.99), true},
		{"bool to number", Bool(true), registry.TypeNumber, Number(1), true},
		{"text to number fails", String("abc"), registry.TypeNumber, String("abc"), false},
		{"yes to boolean", String("YES"), registry.TypeBoolean, Bool(true), true},
		{"zero to boolean", Number(0), registry.TypeBoolean, Bool(false), true},
		{"maybe to boolean fails", String("maybe"), registry.TypeBoolean, String("maybe"), false},
		{"number to string", Number(3), registry.TypeString, String("3"), true},
		{"bool to string", Bool(false), registry.TypeString, String("false"), true},
		{"null stays null", Null(), registry.TypeNumber, Null(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Coerce(tt.to)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPropertiesFirst(t *testing.T) {
	props := Properties{"element": String(" "), "url": String("https://x.test/a"), "n": Number(2)}
	assert.Equal(t, "https://x.test/a", props.First("element", "url"))
	assert.Equal(t, "2", props.Get("n"))
	assert.Equal(t, "", props.First("missing"))
}
