// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for dirmesh-server.
type ServerConfig struct {
	Server     ServerSection     `koanf:"server"`
	Federation FederationSection `koanf:"federation"`
	Security   SecuritySection   `koanf:"security"`
	Storage    StorageSection    `koanf:"storage"`
	Metrics    MetricsSection    `koanf:"metrics"`
	Log        LogSection        `koanf:"log"`
}

// ServerSection configures the node listeners.
type ServerSection struct {
	// Host is the bind address of both listeners.
	Host string `koanf:"host"`

	// Port is the plaintext listener port.
	Port int `koanf:"port"`

	// SecurePort is the TLS listener port. The listener starts only when
	// the TLS files are configured.
	SecurePort int `koanf:"secure_port"`

	// AdvertisedHostname is the host announced to peers and stamped on
	// outgoing resources. Empty means the machine hostname.
	AdvertisedHostname string `koanf:"advertised_hostname"`

	// ReadTimeout bounds the wait for the command of a connection.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds every write to a client.
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// FederationSection configures peer gossip and relaying.
type FederationSection struct {
	// ExchangeInterval is the period of the gossip round.
	ExchangeInterval time.Duration `koanf:"exchange_interval"`

	// ConnectionIntervalLimit is the minimum time between two connections
	// from one address. Zero disables the limit.
	ConnectionIntervalLimit time.Duration `koanf:"connection_interval_limit"`

	// RelayPoolSize bounds concurrent relayed queries.
	RelayPoolSize int `koanf:"relay_pool_size"`

	// RelayTimeout bounds one relayed query and one peer write.
	RelayTimeout time.Duration `koanf:"relay_timeout"`

	// NotifyWorkers is the number of subscription delivery workers.
	NotifyWorkers int `koanf:"notify_workers"`

	// Seeds are peers (host:port) of the plain federation known at startup.
	Seeds []string `koanf:"seeds"`

	// SecureSeeds are peers (host:port) of the secure federation known at
	// startup.
	SecureSeeds []string `koanf:"secure_seeds"`
}

// SecuritySection configures the SHARE secret and TLS.
type SecuritySection struct {
	// Secret authorizes SHARE. Plaintext or an $argon2id$ digest. Empty
	// generates a random secret at startup.
	Secret string `koanf:"secret"`

	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
	TLSCAFile   string `koanf:"tls_ca_file"`
}

// StorageSection configures access to shared files.
type StorageSection struct {
	// ShareRoot confines shared files to one directory tree. Empty allows
	// any readable file.
	ShareRoot string `koanf:"share_root"`
}

// MetricsSection configures the admin HTTP endpoint.
type MetricsSection struct {
	// Addr is the admin listener address. Empty disables it.
	Addr string `koanf:"addr"`

	// AllowList restricts the admin endpoint to these IPs or CIDRs.
	AllowList []string `koanf:"allow_list"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TLSEnabled reports whether the TLS listener is configured.
func (c *ServerConfig) TLSEnabled() bool {
	return c.Security.TLSCertFile != "" && c.Security.TLSKeyFile != ""
}
