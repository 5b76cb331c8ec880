// Package rhsm reads the subscription-manager configuration the agent
// needs to derive its messaging settings.
package rhsm

import (
	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

// DefaultConfigPath is where subscription-manager keeps its configuration.
const DefaultConfigPath = "/etc/rhsm/rhsm.conf"

// Config is the subset of rhsm.conf the agent cares about.
type Config struct {
	// ServerHostname is the entitlement server hostname ([server] hostname).
	ServerHostname string
	// RepoCACert is the CA certificate path used for repository and broker
	// TLS ([rhsm] repo_ca_cert, with %(ca_cert_dir)s interpolation applied).
	RepoCACert string
}

// LoadConfig parses the rhsm configuration file at path.
func LoadConfig(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading rhsm config %s", path)
	}

	// Key.String resolves %(key)s references against the same section,
	// matching how subscription-manager expands repo_ca_cert.
	return &Config{
		ServerHostname: cfg.Section("server").Key("hostname").String(),
		RepoCACert:     cfg.Section("rhsm").Key("repo_ca_cert").String(),
	}, nil
}
