package options

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/config"
)

// ServerFlagCategory groups the listen flags in the help output.
const ServerFlagCategory = "[Server]"

// The inspection API binds to loopback unless asked otherwise, it serves
// stored payloads without authentication.
const (
	DefaultServerHost       = "127.0.0.1"
	DefaultServerPort int64 = 8080
)

// NewServerOptions returns empty server options. Complete layers in the
// configuration file and the built-in defaults.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{}
}

// ServerOptions carries the listen address of the inspection server.
type ServerOptions struct {
	Host string
	Port int64
}

// Flags returns the []cli.Flag related to current options.
func (o *ServerOptions) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "host",
			Usage:       "address to listen on",
			Sources:     cli.EnvVars("STOWAGE_SERVER_HOST"),
			Destination: &o.Host,
			Category:    ServerFlagCategory,
		},
		&cli.IntFlag{
			Name:        "port",
			Aliases:     []string{"p"},
			Usage:       "port to listen on",
			Sources:     cli.EnvVars("STOWAGE_SERVER_PORT"),
			Destination: &o.Port,
			Category:    ServerFlagCategory,
		},
	}
}

// Complete fills options left unset by flags from the configuration file,
// then from the built-in defaults.
func (o *ServerOptions) Complete(cfg *config.Config) {
	if o.Host == "" {
		o.Host = cfg.StringOr(config.KeyServerHost, DefaultServerHost)
	}
	if o.Port == 0 {
		o.Port = cfg.Int64Or(config.KeyServerPort, DefaultServerPort)
	}
}

// Address joins host and port into a dialable listen address.
func (o *ServerOptions) Address() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}
