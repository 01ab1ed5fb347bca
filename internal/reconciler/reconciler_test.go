package reconciler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/container-registry/containerd-operator/internal/kv"
	"github.com/container-registry/containerd-operator/internal/registry"
	"github.com/container-registry/containerd-operator/internal/render"
	"github.com/container-registry/containerd-operator/pkg/config"
)

const (
	testConfigDir  = "/etc/containerd"
	testCertsDir   = "/etc/containerd/certs.d"
	testServiceDir = "/etc/systemd/system/containerd.service.d"

	caB64  = "aGVsbG8gd29ybGQgY2EtZmlsZQ=="  // "hello world ca-file"
	keyB64 = "aGVsbG8gd29ybGQga2V5LWZpbGU=" // "hello world key-file"
)

// noHardwareRunner fails every probe, which DetectGPU treats as "no GPU".
type noHardwareRunner struct{}

func (noHardwareRunner) Output(name string, args ...string) ([]byte, error) {
	return nil, errors.New("exec: not found")
}

type testHarness struct {
	r       *Reconciler
	cm      *config.Manager
	fs      afero.Fs
	store   kv.Store
	cfgPath string
}

func newHarness(t *testing.T, configTOML string) *testHarness {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "operator.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configTOML), 0o644))

	cm, _, err := config.NewManager(cfgPath, filepath.Join(dir, "previous.json"))
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	store := kv.NewMemoryStore()
	log := zerolog.Nop()

	r := New(Options{
		FS:         fs,
		Store:      store,
		Manager:    cm,
		Runner:     noHardwareRunner{},
		Log:        &log,
		ConfigDir:  testConfigDir,
		CertsDir:   testCertsDir,
		ServiceDir: testServiceDir,
	})
	return &testHarness{r: r, cm: cm, fs: fs, store: store, cfgPath: cfgPath}
}

func (h *testHarness) rewriteConfig(t *testing.T, configTOML string) {
	t.Helper()
	require.NoError(t, os.WriteFile(h.cfgPath, []byte(configTOML), 0o644))
	_, _, err := h.cm.Reload()
	require.NoError(t, err)
}

func (h *testHarness) readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(h.fs, path)
	require.NoError(t, err)
	return string(data)
}

func clearProxyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"JUJU_CHARM_HTTP_PROXY", "JUJU_CHARM_HTTPS_PROXY", "JUJU_CHARM_NO_PROXY",
		"http_proxy", "https_proxy", "no_proxy",
		"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
	} {
		t.Setenv(key, "")
	}
}

func TestReconcileWritesConfigAndTLSMaterial(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, `
custom_registries = '[{"url": "https://10.10.10.10:8000", "username": "user", "password": "pass", "ca_file": "`+caB64+`", "key_file": "`+keyB64+`", "cert_file": "bad-base64"}]'
`)

	require.NoError(t, h.r.Reconcile(context.Background()))

	state, msg := h.r.Status()
	require.Equal(t, StateContextReady, state)
	require.Empty(t, msg)
	require.True(t, h.r.RestartRequested())
	require.False(t, h.r.RestartRequested(), "request must be read-and-clear")

	require.Equal(t, "hello world ca-file", h.readFile(t, testConfigDir+"/10.10.10.10:8000.ca"))
	require.Equal(t, "hello world key-file", h.readFile(t, testConfigDir+"/10.10.10.10:8000.key"))
	exists, err := afero.Exists(h.fs, testConfigDir+"/10.10.10.10:8000.cert")
	require.NoError(t, err)
	require.False(t, exists, "undecodable material is skipped, not written")

	conf := h.readFile(t, testConfigDir+"/config.toml")
	require.Contains(t, conf, "docker.io")
	require.Contains(t, conf, "10.10.10.10:8000")
	require.Contains(t, conf, `sandbox_image = "registry.k8s.io/pause:3.6"`)
	require.Contains(t, conf, "runc")
}

func TestReconcileIsIdempotent(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, `
custom_registries = '[{"url": "https://10.10.10.10:8000", "ca_file": "`+caB64+`"}]'
`)

	require.NoError(t, h.r.Reconcile(context.Background()))
	first := h.readFile(t, testConfigDir+"/config.toml")

	require.NoError(t, h.r.Reconcile(context.Background()))
	require.Equal(t, first, h.readFile(t, testConfigDir+"/config.toml"))
	require.Equal(t, "hello world ca-file", h.readFile(t, testConfigDir+"/10.10.10.10:8000.ca"))
}

func TestReconcileRemovesStaleTLSMaterial(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, `
custom_registries = '[{"url": "https://old.registry:8000", "ca_file": "`+caB64+`"}]'
`)

	require.NoError(t, h.r.Reconcile(context.Background()))
	exists, err := afero.Exists(h.fs, testConfigDir+"/old.registry:8000.ca")
	require.NoError(t, err)
	require.True(t, exists)

	h.rewriteConfig(t, `
custom_registries = '[{"url": "https://new.registry:8000", "ca_file": "`+caB64+`"}]'
`)
	require.NoError(t, h.r.Reconcile(context.Background()))

	exists, err = afero.Exists(h.fs, testConfigDir+"/old.registry:8000.ca")
	require.NoError(t, err)
	require.False(t, exists, "material of the dropped registry must be removed")
	require.Equal(t, "hello world ca-file", h.readFile(t, testConfigDir+"/new.registry:8000.ca"))
}

func TestReconcileKeepsEntriesWithFalsyFields(t *testing.T) {
	clearProxyEnv(t)
	// A falsy non-string field passes validation; the entry must survive the
	// parse instead of the whole list silently collapsing to the default.
	h := newHarness(t, `
custom_registries = '[{"url": "https://10.10.10.10:8000", "username": false}]'
`)

	require.NoError(t, h.r.Reconcile(context.Background()))

	state, msg := h.r.Status()
	require.Equal(t, StateContextReady, state)
	require.Empty(t, msg)
	require.Contains(t, h.readFile(t, testConfigDir+"/config.toml"), "10.10.10.10:8000")
}

func TestReconcileBlocksOnInvalidRegistries(t *testing.T) {
	clearProxyEnv(t)
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{
			name:  "not json",
			value: "this is not json",
			want:  "Invalid custom_registries: Failed to decode json string",
		},
		{
			name:  "missing url",
			value: `[{"host": "example.com"}]`,
			want:  "Invalid custom_registries: registry #0 missing required field 'url'",
		},
		{
			name:  "duplicate docker.io",
			value: `[{"url": "https://docker.io"}, {"url": "https://docker.io"}]`,
			want:  "Invalid custom_registries: registry #1 defines docker.io more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "custom_registries = '"+tt.value+"'\n")
			require.NoError(t, h.r.Reconcile(context.Background()))

			state, msg := h.r.Status()
			require.Equal(t, StateBlocked, state)
			require.Equal(t, tt.want, msg)
			require.False(t, h.r.RestartRequested())

			exists, err := afero.Exists(h.fs, testConfigDir+"/config.toml")
			require.NoError(t, err)
			require.False(t, exists, "blocked pass must not touch the config")
		})
	}
}

func TestReconcileBlocksOnInvalidGPUDriver(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, "gpu_driver = \"bogus\"\n")

	require.NoError(t, h.r.Reconcile(context.Background()))

	state, msg := h.r.Status()
	require.Equal(t, StateBlocked, state)
	require.Equal(t, "bogus is an invalid option for gpu_driver", msg)
}

func TestReconcileRecoversAfterBlocked(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, "custom_registries = 'not json'\n")

	require.NoError(t, h.r.Reconcile(context.Background()))
	state, _ := h.r.Status()
	require.Equal(t, StateBlocked, state)

	h.rewriteConfig(t, "custom_registries = '[]'\n")
	require.NoError(t, h.r.Reconcile(context.Background()))

	state, msg := h.r.Status()
	require.Equal(t, StateContextReady, state)
	require.Empty(t, msg)
}

func TestReconcileAppendsRelationRegistry(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, "")

	require.NoError(t, h.store.Set(kv.KeyRegistry, registry.Entry{
		URL:      "https://relation.registry:5000",
		Host:     "relation.registry:5000",
		Username: "robot",
		Password: "secret",
	}))

	require.NoError(t, h.r.Reconcile(context.Background()))

	conf := h.readFile(t, testConfigDir+"/config.toml")
	require.Contains(t, conf, "relation.registry:5000")
	require.Contains(t, conf, `sandbox_image = "relation.registry:5000/pause:3.6"`)
}

func TestReconcileRendersUntrustedRuntime(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, "")

	require.NoError(t, h.store.Set(kv.KeyUntrusted, render.UntrustedRuntime{
		Name:       "untrusted",
		BinaryPath: "/usr/local/bin/kata-runtime",
	}))

	require.NoError(t, h.r.Reconcile(context.Background()))

	conf := h.readFile(t, testConfigDir+"/config.toml")
	require.Contains(t, conf, "untrusted")
	require.Contains(t, conf, "kata-runtime")
}

func TestReconcileV2WritesHostsFiles(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, `
config_version = "v2"
custom_registries = '[{"url": "https://10.10.10.10:8000", "ca_file": "`+caB64+`"}]'
`)

	require.NoError(t, h.r.Reconcile(context.Background()))

	conf := h.readFile(t, testConfigDir+"/config.toml")
	require.Contains(t, conf, "config_path")

	hosts := h.readFile(t, testCertsDir+"/10.10.10.10:8000/hosts.toml")
	require.Contains(t, hosts, `server = "https://10.10.10.10:8000"`)
	require.Contains(t, hosts, testConfigDir+"/10.10.10.10:8000.ca")

	defaultHosts := h.readFile(t, testCertsDir+"/docker.io/hosts.toml")
	require.Contains(t, defaultHosts, "registry-1.docker.io")
}

func TestReconcileV2RemovesDepartedHosts(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, `
config_version = "v2"
custom_registries = '[{"url": "https://old.registry:8000"}]'
`)

	require.NoError(t, h.r.Reconcile(context.Background()))
	exists, err := afero.Exists(h.fs, testCertsDir+"/old.registry:8000/hosts.toml")
	require.NoError(t, err)
	require.True(t, exists)

	h.rewriteConfig(t, "config_version = \"v2\"\n")
	require.NoError(t, h.r.Reconcile(context.Background()))

	exists, err = afero.Exists(h.fs, testCertsDir+"/old.registry:8000")
	require.NoError(t, err)
	require.False(t, exists, "departed registry's hosts directory must be removed")

	exists, err = afero.Exists(h.fs, testCertsDir+"/docker.io/hosts.toml")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestSyncProxyLifecycle(t *testing.T) {
	clearProxyEnv(t)
	h := newHarness(t, `
http_proxy = "http://proxy.internal:3128"
no_proxy = "localhost,127.0.0.1"
`)

	restart, err := h.r.SyncProxy(context.Background())
	require.NoError(t, err)
	require.True(t, restart)
	require.True(t, h.r.RestartRequested())

	conf := h.readFile(t, testServiceDir+"/proxy.conf")
	require.Contains(t, conf, "[Service]")
	require.Contains(t, conf, `Environment="HTTP_PROXY=http://proxy.internal:3128"`)
	require.Contains(t, conf, `Environment="NO_PROXY=localhost,127.0.0.1"`)
	require.NotContains(t, conf, "HTTPS_PROXY")

	// Unchanged settings are a no-op.
	restart, err = h.r.SyncProxy(context.Background())
	require.NoError(t, err)
	require.False(t, restart)

	// Clearing the proxy removes the drop-in and restarts once more.
	h.rewriteConfig(t, "")
	restart, err = h.r.SyncProxy(context.Background())
	require.NoError(t, err)
	require.True(t, restart)

	exists, err := afero.Exists(h.fs, testServiceDir+"/proxy.conf")
	require.NoError(t, err)
	require.False(t, exists)
}
