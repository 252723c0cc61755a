package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	assert.Equal(t, "12 bytes", KnownSize(12).String())
	assert.Equal(t, "unknown", Size{}.String())

	data, err := json.Marshal([]Size{KnownSize(3), {}})
	require.NoError(t, err)
	assert.Equal(t, `[3,"unknown"]`, string(data))

	var got []Size
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []Size{KnownSize(3), {}}, got)
}

func TestStoreDescriptor_Inline(t *testing.T) {
	assert.True(t, StoreDescriptor{Name: "users", KeyPath: "id"}.Inline())
	assert.False(t, StoreDescriptor{Name: "items"}.Inline())
}
