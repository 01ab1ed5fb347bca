package reconciler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/container-registry/containerd-operator/internal/registry"
)

func TestResolveSandboxImage(t *testing.T) {
	log := zerolog.Nop()
	r := New(Options{Log: &log})

	tests := []struct {
		name     string
		endpoint *Endpoint
		rel      *registry.Entry
		want     string
	}{
		{
			name: "no endpoint and no relation uses upstream",
			want: "registry.k8s.io/pause:3.6",
		},
		{
			name:     "endpoint override wins",
			endpoint: &Endpoint{SandboxImage: "custom.io/my-pause:3.7"},
			rel:      &registry.Entry{URL: "https://10.10.10.10:8000"},
			want:     "custom.io/my-pause:3.7",
		},
		{
			name:     "invalid endpoint override is ignored",
			endpoint: &Endpoint{SandboxImage: "!!!not-a-reference!!!"},
			want:     "registry.k8s.io/pause:3.6",
		},
		{
			name: "related registry hosts the image",
			rel:  &registry.Entry{URL: "http://10.10.10.10:8000"},
			want: "10.10.10.10:8000/pause:3.6",
		},
		{
			name:     "kubernetes relation picks the vendor mirror",
			endpoint: &Endpoint{RemoteApps: []string{"kubernetes-control-plane"}},
			want:     "rocks.canonical.com:443/cdk/pause:3.6",
		},
		{
			name:     "related registry beats the vendor mirror",
			endpoint: &Endpoint{RemoteApps: []string{"kubernetes-worker"}},
			rel:      &registry.Entry{URL: "https://myregistry.io:8000/"},
			want:     "myregistry.io:8000/pause:3.6",
		},
		{
			name:     "unrelated application stays on upstream",
			endpoint: &Endpoint{RemoteApps: []string{"postgresql"}},
			want:     "registry.k8s.io/pause:3.6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, r.resolveSandboxImage(tt.endpoint, tt.rel))
		})
	}
}

func TestResolveRuntime(t *testing.T) {
	tests := []struct {
		configured string
		gpuActive  bool
		want       string
	}{
		{"auto", false, "runc"},
		{"auto", true, "nvidia-container-runtime"},
		{"runc", true, "runc"},
		{"kata", false, "kata"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, resolveRuntime(tt.configured, tt.gpuActive))
	}
}
