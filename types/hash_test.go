package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashJSON(t *testing.T) {
	h := MustParseHash("0x03170a2e7597b7b7e3d84c05391d139a62b157e78786d8c082f29dcf4c111314")
	bz, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `"0x03170a2e7597b7b7e3d84c05391d139a62b157e78786d8c082f29dcf4c111314"`, string(bz))

	var decoded Hash
	require.NoError(t, json.Unmarshal(bz, &decoded))
	assert.Equal(t, h, decoded)
}

func TestNewHash(t *testing.T) {
	_, err := NewHash([]byte{1, 2, 3})
	require.Error(t, err)

	h, err := NewHash(make([]byte, HashLen))
	require.NoError(t, err)
	assert.True(t, h.IsZero())

	_, err = ParseHash("zz")
	require.Error(t, err)
}
