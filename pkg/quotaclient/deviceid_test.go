package quotaclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceID_StableAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first, err := DeviceID(dir)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := DeviceID(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDeviceID_DiffersAcrossStateDirs(t *testing.T) {
	first, err := DeviceID(t.TempDir())
	require.NoError(t, err)

	second, err := DeviceID(t.TempDir())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDeviceID_IsHexDigest(t *testing.T) {
	id, err := DeviceID(t.TempDir())
	require.NoError(t, err)
	assert.Len(t, id, 64)
	assert.Regexp(t, "^[0-9a-f]+$", id)
}

func TestPersistedID_SurvivesRewrite(t *testing.T) {
	dir := t.TempDir()

	id, err := persistedID(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "device_id"))
	require.NoError(t, err)
	assert.Contains(t, string(data), id)

	again, err := persistedID(dir)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}
