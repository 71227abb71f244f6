package hostapi

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/hostapi/internal/changes"
	"github.com/CosmWasm/hostapi/internal/testutil"
	"github.com/CosmWasm/hostapi/types"
)

func testConfig(t *testing.T) types.Config {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Adapter.Path = testutil.WriteAdapter(t)
	cfg.Keystore.Dir = filepath.Join(t.TempDir(), types.KeystoreSubdir)
	cfg.Cache.InstanceMemoryLimit = types.NewSizeMebi(16)
	return cfg
}

func newTestEnv(t *testing.T) *Environment {
	t.Helper()
	ctx := context.Background()
	env, err := New(ctx, testConfig(t), WithRandom(rand.New(rand.NewSource(7))), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, env.Close(ctx)) })
	return env
}

func TestNewSeedsDefaults(t *testing.T) {
	env := newTestEnv(t)

	code, ok := env.Get(CodeKey)
	require.True(t, ok)
	assert.Empty(t, code)

	pages, ok := env.Get(HeapPagesKey)
	require.True(t, ok)
	assert.Equal(t, []byte{8, 0, 0, 0, 0, 0, 0, 0}, pages)

	assert.False(t, env.Provider().IsActive())
	assert.Greater(t, env.HostFunctions().Len(), 40)

	head, err := env.Headers().GetHeader(env.Head())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), head.Number)
	assert.Equal(t, env.StateRoot(), head.StateRoot)
}

func TestSetCodeAndHeapPages(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := Call[struct{}](ctx, env, "rtm_ext_storage_set_version_1", ":code", []byte{})
	require.NoError(t, err)
	value, err := Call[*[]byte](ctx, env, "rtm_ext_storage_get_version_1", ":code")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Empty(t, *value)

	heapPages := []byte{8, 0, 0, 0, 0, 0, 0, 0}
	_, err = Call[struct{}](ctx, env, "rtm_ext_storage_set_version_1", ":heappages", heapPages)
	require.NoError(t, err)
	value, err = Call[*[]byte](ctx, env, "rtm_ext_storage_get_version_1", ":heappages")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, heapPages, *value)
}

func TestUnknownFunctionLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := Call[struct{}](ctx, env, "rtm_ext_storage_set_version_1", "key", "value")
	require.NoError(t, err)
	root, head := env.StateRoot(), env.Head()

	_, err = env.Exec(ctx, "rtm_ext_does_not_exist", "key")
	require.ErrorIs(t, err, types.ErrHostFunctionNotFound)
	require.ErrorIs(t, err, types.ErrHostCall)

	assert.Equal(t, root, env.StateRoot())
	assert.Equal(t, head, env.Head())
	assert.False(t, env.Provider().IsActive())

	// the environment stays usable
	value, err := Call[*[]byte](ctx, env, "rtm_ext_storage_get_version_1", "key")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, []byte("value"), *value)
}

func TestTrapsAreReported(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	root := env.StateRoot()

	_, err := env.Exec(ctx, testutil.TrapExport)
	require.ErrorIs(t, err, types.ErrExecutionTrap)

	_, err = env.Exec(ctx, "rtm_ext_storage_commit_transaction_version_1")
	require.ErrorIs(t, err, types.ErrExecutionTrap)
	require.ErrorIs(t, err, types.ErrNoActiveTransaction)

	assert.Equal(t, root, env.StateRoot())
}

func TestChangesArePublished(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var got []changes.Record
	sub := env.Subscriptions().Subscribe("watched", func(r changes.Record) error {
		got = append(got, r)
		return nil
	})
	defer sub.Unsubscribe()

	_, err := Call[struct{}](ctx, env, "rtm_ext_storage_set_version_1", "watched", "v1")
	require.NoError(t, err)
	_, err = Call[struct{}](ctx, env, "rtm_ext_storage_set_version_1", "other", "v1")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, []byte("watched"), got[0].Key)
	assert.Equal(t, []byte("v1"), got[0].NewValue)
}

func TestNewFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing adapter", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Adapter.Path = filepath.Join(t.TempDir(), "missing.wasm")
		_, err := New(ctx, cfg)
		require.ErrorIs(t, err, types.ErrAdapterModuleNotFound)
		require.ErrorIs(t, err, types.ErrStartup)
	})

	t.Run("adapter imports memory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Adapter.Path = filepath.Join(t.TempDir(), "imported.wasm")
		require.NoError(t, os.WriteFile(cfg.Adapter.Path, testutil.ImportedMemoryModule(), 0o600))
		_, err := New(ctx, cfg)
		require.ErrorIs(t, err, types.ErrUnsupportedModule)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = "rocksdb"
		_, err := New(ctx, cfg)
		require.ErrorIs(t, err, types.ErrStartup)
	})
}

func TestGoLevelDBBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage.Backend = types.BackendGoLevelDB
	cfg.Storage.Dir = t.TempDir()
	cfg.Storage.Prefix = "state/"

	env, err := New(ctx, cfg)
	require.NoError(t, err)
	defer env.Close(ctx)

	_, err = Call[struct{}](ctx, env, "rtm_ext_storage_set_version_1", "persisted", "yes")
	require.NoError(t, err)
	value, ok := env.Get([]byte("persisted"))
	require.True(t, ok)
	assert.Equal(t, []byte("yes"), value)
	root := env.StateRoot()
	require.NoError(t, env.Close(ctx))

	reopened, err := New(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close(ctx)
	value, ok = reopened.Get([]byte("persisted"))
	require.True(t, ok)
	assert.Equal(t, []byte("yes"), value)
	// seeding rewrites the same values, so the root is unchanged
	assert.Equal(t, root, reopened.StateRoot())
}

func TestEncodeArgs(t *testing.T) {
	input, err := EncodeArgs("ab", []byte{1}, uint32(7))
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 'a', 'b', 4, 1, 7, 0, 0, 0}, input)

	_, err = EncodeArgs(make(chan int))
	require.ErrorIs(t, err, types.ErrInvalidHostCallArguments)
}
