package config_test

import (
	"reflect"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/chanflow/config"
)

func TestMapConfig_Get(t *testing.T) {
	c := config.NewMapConfig().
		Put("a", "x").
		Put("b", 1883)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestMapConfig_GetRequired(t *testing.T) {
	c := config.NewMapConfig().Put("a", "x")

	v, err := c.GetRequired("a")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = c.GetRequired("nope")
	require.ErrorIs(t, err, config.ErrMissingKey)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestMapConfig_GetTypedNeverConverts(t *testing.T) {
	c := config.NewMapConfig().
		Put("port", "1883").
		Put("count", 3).
		Put("ratio", 0.5)

	tests := []struct {
		key  string
		typ  reflect.Type
		want any
		err  bool
	}{
		{"port", reflect.TypeFor[string](), "1883", false},
		{"port", reflect.TypeFor[int](), nil, true},
		{"count", reflect.TypeFor[int](), 3, false},
		{"count", reflect.TypeFor[int64](), nil, true},
		{"count", reflect.TypeFor[string](), nil, true},
		{"ratio", reflect.TypeFor[float32](), nil, true},
		{"count", reflect.TypeFor[any](), 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.typ.String(), func(t *testing.T) {
			v, ok, err := c.GetTyped(tt.key, tt.typ)
			assert.True(t, ok)
			if tt.err {
				require.ErrorIs(t, err, config.ErrTypeMismatch)
				assert.Nil(t, v)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestMapConfig_GetTypedAbsent(t *testing.T) {
	v, ok, err := config.NewMapConfig().GetTyped("x", reflect.TypeFor[string]())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestValueAndRequired(t *testing.T) {
	c := config.NewMapConfig().Put("port", 1883)

	port, ok, err := config.Value[int](c, "port")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1883, port)

	_, _, err = config.Value[string](c, "port")
	require.ErrorIs(t, err, config.ErrTypeMismatch)

	_, err = config.Required[string](c, "host")
	require.ErrorIs(t, err, config.ErrMissingKey)
}

func TestMapConfig_PropertyNamesRestartable(t *testing.T) {
	c := config.NewMapConfig().
		Put("z", 1).
		Put("a", 2).
		Put("m", 3).
		Put("a", 4) // replacing keeps the position

	first := slices.Collect(c.PropertyNames())
	second := slices.Collect(c.PropertyNames())

	assert.Equal(t, []string{"z", "a", "m"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, c.Len())

	v, _ := c.Get("a")
	assert.Equal(t, 4, v)
}

func TestMapConfig_PropertyNamesEarlyStop(t *testing.T) {
	c := config.NewMapConfig().Put("a", 1).Put("b", 2)
	var seen []string
	for k := range c.PropertyNames() {
		seen = append(seen, k)
		break
	}
	assert.Equal(t, []string{"a"}, seen)
}

func TestFromMap_SortsKeys(t *testing.T) {
	c := config.FromMap(map[string]any{"b": 1, "c": 2, "a": 3})
	assert.Equal(t, []string{"a", "b", "c"}, slices.Collect(c.PropertyNames()))
}
