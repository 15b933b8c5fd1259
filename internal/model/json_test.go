package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONMap(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  JSONMap
	}{
		{"nil", nil, JSONMap{}},
		{"text", `{"identityOrgId":"org_1"}`, JSONMap{"identityOrgId": "org_1"}},
		{"bytes", []byte(`{"a":"b"}`), JSONMap{"a": "b"}},
		{"empty bytes", []byte{}, JSONMap{}},
		{"map", map[string]any{"a": "b"}, JSONMap{"a": "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONMap(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseJSONMap(42)
	assert.Error(t, err)

	_, err = ParseJSONMap("{not json")
	assert.Error(t, err)
}

func TestJSONMapValue(t *testing.T) {
	v, err := JSONMap{"identityOrgId": "org_1"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"identityOrgId":"org_1"}`, v)

	v, err = JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}
