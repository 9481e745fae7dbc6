// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 3780
	DefaultSecurePort   = 3781
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second

	DefaultExchangeInterval        = 10 * time.Minute
	DefaultConnectionIntervalLimit = time.Second
	DefaultRelayPoolSize           = 32
	DefaultRelayTimeout            = 30 * time.Second
	DefaultNotifyWorkers           = 16

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Host:         DefaultHost,
			Port:         DefaultPort,
			SecurePort:   DefaultSecurePort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Federation: FederationSection{
			ExchangeInterval:        DefaultExchangeInterval,
			ConnectionIntervalLimit: DefaultConnectionIntervalLimit,
			RelayPoolSize:           DefaultRelayPoolSize,
			RelayTimeout:            DefaultRelayTimeout,
			NotifyWorkers:           DefaultNotifyWorkers,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
