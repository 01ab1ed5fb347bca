package hostfacts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

var versionRe = regexp.MustCompile(`^\s*Version:\s+([\d.]+)`)

// ContainerdVersion runs `ctr version` and extracts the daemon version.
// ctr reports both client and server sides; a successful call is therefore a
// reasonable sign the runtime is fully up. Disagreeing or missing version
// lines are an error so we never publish a bogus version.
func ContainerdVersion(r Runner) (string, error) {
	out, err := r.Output("ctr", "version")
	if err != nil {
		return "", fmt.Errorf("ctr version: %w", err)
	}

	versions := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		if m := versionRe.FindStringSubmatch(line); m != nil {
			versions[m[1]] = true
		}
	}
	if len(versions) != 1 {
		return "", fmt.Errorf("expected one containerd version, found %d", len(versions))
	}
	for v := range versions {
		return v, nil
	}
	return "", nil // unreachable
}

// ContainerdRunning reports whether a containerd process exists on the host.
// Cheaper than ctr and usable even when the client socket is unhealthy.
func ContainerdRunning() bool {
	procs, err := process.Processes()
	if err != nil {
		return false
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if name == "containerd" {
			return true
		}
	}
	return false
}
