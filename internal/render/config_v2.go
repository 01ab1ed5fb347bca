package render

// The v2 schema points the CRI registry plugin at a certs.d directory and
// writes one hosts.toml per registry host. Auth stays in config.toml; the
// hosts.toml format has no credential fields.

type configV2 struct {
	Version int       `toml:"version"`
	Plugins pluginsV2 `toml:"plugins"`
}

type pluginsV2 struct {
	Cri criV2 `toml:"io.containerd.grpc.v1.cri"`
}

type criV2 struct {
	SandboxImage string          `toml:"sandbox_image,omitempty"`
	Containerd   criContainerdV1 `toml:"containerd"`
	Registry     registryPathV2  `toml:"registry"`
}

type registryPathV2 struct {
	ConfigPath string                    `toml:"config_path"`
	Configs    map[string]registryHostV1 `toml:"configs,omitempty"`
}

// hostsToml is the per-host file under {certs_dir}/{host}/hosts.toml.
type hostsToml struct {
	Server string                `toml:"server,omitempty"`
	Host   map[string]hostConfig `toml:"host,omitempty"`
}

type hostConfig struct {
	Capabilities []string   `toml:"capabilities,omitempty"`
	CA           string     `toml:"ca,omitempty"`
	Client       [][]string `toml:"client,omitempty"`
	SkipVerify   bool       `toml:"skip_verify,omitempty"`
}

func buildConfigV2(ctx Context, certsDir string) configV2 {
	configs := make(map[string]registryHostV1)
	for _, e := range ctx.Registries {
		if e.Username == "" && e.Password == "" {
			continue
		}
		configs[e.EffectiveHost()] = registryHostV1{
			Auth: &authConfig{Username: e.Username, Password: e.Password},
		}
	}

	return configV2{
		Version: 2,
		Plugins: pluginsV2{
			Cri: criV2{
				SandboxImage: ctx.SandboxImage,
				Containerd: criContainerdV1{
					DefaultRuntimeName: ctx.RuntimeName,
					Runtimes:           buildRuntimes(ctx),
				},
				Registry: registryPathV2{
					ConfigPath: certsDir,
					Configs:    configs,
				},
			},
		},
	}
}

func buildHostsToml(e hostsEntry) hostsToml {
	cfg := hostConfig{
		Capabilities: []string{"pull", "resolve"},
		CA:           e.CA,
		SkipVerify:   e.SkipVerify,
	}
	if e.Cert != "" && e.Key != "" {
		cfg.Client = [][]string{{e.Cert, e.Key}}
	}
	return hostsToml{
		Server: e.Server,
		Host:   map[string]hostConfig{e.Server: cfg},
	}
}

// hostsEntry is the slice of a registry entry hosts.toml cares about.
type hostsEntry struct {
	Server     string
	CA         string
	Cert       string
	Key        string
	SkipVerify bool
}
