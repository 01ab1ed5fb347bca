package hostfacts

import (
	"fmt"
	"strings"

	"github.com/container-registry/containerd-operator/pkg/config"
)

// ErrInvalidGPUDriver marks a gpu_driver option outside {auto, none, nvidia}.
// The caller turns it into a blocked status rather than failing the pass.
type ErrInvalidGPUDriver struct {
	Option string
}

func (e ErrInvalidGPUDriver) Error() string {
	return fmt.Sprintf("%s is an invalid option for gpu_driver", e.Option)
}

// DetectGPU resolves whether NVIDIA GPU support should be active.
//
//	none   -> never
//	nvidia -> always
//	auto   -> probe the PCI bus for NVIDIA hardware
func DetectGPU(r Runner, driver string) (bool, error) {
	switch driver {
	case config.GPUDriverNone:
		return false, nil
	case config.GPUDriverNvidia:
		return true, nil
	case config.GPUDriverAuto:
		out, err := r.Output("lspci", "-nnk")
		if err != nil {
			// No lspci or probe failure means we cannot claim hardware.
			return false, nil
		}
		return strings.Contains(strings.ToLower(string(out)), "nvidia"), nil
	default:
		return false, ErrInvalidGPUDriver{Option: driver}
	}
}
