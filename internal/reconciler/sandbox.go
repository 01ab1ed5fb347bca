package reconciler

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/container-registry/containerd-operator/internal/registry"
)

const (
	// vendorRegistry hosts the pause image for charm-managed Kubernetes.
	vendorRegistry = "rocks.canonical.com:443/cdk"
	// upstreamRegistry is the public default when nothing better is related.
	upstreamRegistry = "registry.k8s.io"
	pauseImage       = "pause:3.6"
)

var kubernetesApps = map[string]bool{
	"kubernetes-control-plane": true,
	"kubernetes-master":        true,
	"kubernetes-worker":        true,
}

// resolveSandboxImage picks the pause image location. Precedence: a value
// supplied on the endpoint, then the related docker registry, then the
// vendor mirror when a Kubernetes application is on the other side of the
// relation, then upstream.
func (r *Reconciler) resolveSandboxImage(endpoint *Endpoint, relationRegistry *registry.Entry) string {
	if endpoint != nil && endpoint.SandboxImage != "" {
		if _, err := name.ParseReference(endpoint.SandboxImage); err != nil {
			r.log.Warn().
				Str("sandbox_image", endpoint.SandboxImage).
				Err(err).
				Msg("Endpoint-supplied sandbox image is not a valid reference, using default")
		} else {
			r.log.Info().Str("sandbox_image", endpoint.SandboxImage).Msg("Using endpoint-supplied sandbox image")
			return endpoint.SandboxImage
		}
	}

	sandboxRegistry := upstreamRegistry
	switch {
	case relationRegistry != nil:
		sandboxRegistry = registry.StripURL(relationRegistry.URL)
	case endpoint != nil && relatedToKubernetes(endpoint.RemoteApps):
		sandboxRegistry = vendorRegistry
	}

	image := fmt.Sprintf("%s/%s", sandboxRegistry, pauseImage)
	if _, err := name.ParseReference(image); err != nil {
		r.log.Warn().Str("sandbox_image", image).Err(err).Msg("Derived sandbox image is not a valid reference, using upstream")
		return fmt.Sprintf("%s/%s", upstreamRegistry, pauseImage)
	}
	return image
}

func relatedToKubernetes(apps []string) bool {
	for _, app := range apps {
		if kubernetesApps[app] {
			return true
		}
	}
	return false
}
