package render

// The v1 schema keeps the registry tables inline under
// plugins.cri.registry, the layout containerd used before config_path
// and hosts.toml existed.

type configV1 struct {
	Plugins pluginsV1 `toml:"plugins"`
}

type pluginsV1 struct {
	Cri criV1 `toml:"cri"`
}

type criV1 struct {
	SandboxImage string           `toml:"sandbox_image,omitempty"`
	Containerd   criContainerdV1  `toml:"containerd"`
	Registry     registryTablesV1 `toml:"registry"`
}

type criContainerdV1 struct {
	DefaultRuntimeName string                  `toml:"default_runtime_name,omitempty"`
	Runtimes           map[string]runtimeEntry `toml:"runtimes,omitempty"`
}

type runtimeEntry struct {
	RuntimeType string         `toml:"runtime_type"`
	Options     runtimeOptions `toml:"options,omitempty"`
}

type runtimeOptions struct {
	BinaryName string `toml:"BinaryName,omitempty"`
}

type registryTablesV1 struct {
	Mirrors map[string]mirrorV1       `toml:"mirrors,omitempty"`
	Configs map[string]registryHostV1 `toml:"configs,omitempty"`
}

type mirrorV1 struct {
	Endpoints []string `toml:"endpoint"`
}

type registryHostV1 struct {
	Auth *authConfig    `toml:"auth,omitempty"`
	TLS  *tlsHostConfig `toml:"tls,omitempty"`
}

type authConfig struct {
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

type tlsHostConfig struct {
	CAFile             string `toml:"ca_file,omitempty"`
	CertFile           string `toml:"cert_file,omitempty"`
	KeyFile            string `toml:"key_file,omitempty"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify,omitempty"`
}

func buildConfigV1(ctx Context) configV1 {
	tables := registryTablesV1{
		Mirrors: make(map[string]mirrorV1, len(ctx.Registries)),
		Configs: make(map[string]registryHostV1),
	}

	for _, e := range ctx.Registries {
		host := e.EffectiveHost()
		tables.Mirrors[host] = mirrorV1{Endpoints: []string{e.URL}}

		var hostCfg registryHostV1
		if e.Username != "" || e.Password != "" {
			hostCfg.Auth = &authConfig{Username: e.Username, Password: e.Password}
		}
		if e.CA != "" || e.Cert != "" || e.Key != "" || e.SkipVerify() {
			hostCfg.TLS = &tlsHostConfig{
				CAFile:             e.CA,
				CertFile:           e.Cert,
				KeyFile:            e.Key,
				InsecureSkipVerify: e.SkipVerify(),
			}
		}
		if hostCfg.Auth != nil || hostCfg.TLS != nil {
			tables.Configs[host] = hostCfg
		}
	}

	return configV1{
		Plugins: pluginsV1{
			Cri: criV1{
				SandboxImage: ctx.SandboxImage,
				Containerd: criContainerdV1{
					DefaultRuntimeName: ctx.RuntimeName,
					Runtimes:           buildRuntimes(ctx),
				},
				Registry: tables,
			},
		},
	}
}

// buildRuntimes is shared between schemas: the runtime table layout did not
// change between v1 and v2.
func buildRuntimes(ctx Context) map[string]runtimeEntry {
	runtimes := map[string]runtimeEntry{
		ctx.RuntimeName: {
			RuntimeType: "io.containerd.runc.v2",
			Options:     runtimeOptions{BinaryName: ctx.RuntimeName},
		},
	}
	if ctx.Untrusted != nil {
		runtimes[ctx.Untrusted.Name] = runtimeEntry{
			RuntimeType: "io.containerd.runc.v1",
			Options:     runtimeOptions{BinaryName: ctx.Untrusted.BinaryPath},
		}
	}
	return runtimes
}
