package tokensvc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Environment variables read by [LoadConfig].
const (
	EnvScheme    = "UGREEN_NAS_API_SCHEME"
	EnvPort      = "UGREEN_NAS_API_PORT"
	EnvVerifyTLS = "UGREEN_NAS_API_VERIFY_SSL"
	EnvHostIP    = "UGREEN_NAS_API_IP"
)

const (
	dockerHost  = "host.docker.internal"
	defaultHost = "127.0.0.1"
	defaultPort = 9999
)

// Config locates the NAS web UI.
type Config struct {
	Scheme    string
	Host      string
	Port      int
	VerifyTLS bool
}

// URL is the login page address.
func (c Config) URL() string {
	return fmt.Sprintf("%s://%s", c.Scheme, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// LookupEnv reads an environment variable; os.LookupEnv satisfies it.
type LookupEnv func(key string) (string, bool)

// LookupHost resolves a host name; net.DefaultResolver.LookupHost satisfies it.
type LookupHost func(ctx context.Context, host string) ([]string, error)

// ResolveHost returns the address of host.docker.internal when it resolves,
// else UGREEN_NAS_API_IP, else 127.0.0.1.
func ResolveHost(ctx context.Context, lookup LookupHost, env LookupEnv) string {
	if addrs, err := lookup(ctx, dockerHost); err == nil && len(addrs) > 0 {
		return addrs[0]
	}
	if ip, ok := env(EnvHostIP); ok && ip != "" {
		return ip
	}
	return defaultHost
}

// LoadConfig builds a [Config] from the environment. Scheme defaults to
// https, port to 9999 and TLS verification to on.
func LoadConfig(ctx context.Context, lookup LookupHost, env LookupEnv) (Config, error) {
	cfg := Config{
		Scheme:    "https",
		Host:      ResolveHost(ctx, lookup, env),
		Port:      defaultPort,
		VerifyTLS: true,
	}

	if v, ok := env(EnvScheme); ok && v != "" {
		cfg.Scheme = strings.ToLower(v)
	}
	if cfg.Scheme != "http" && cfg.Scheme != "https" {
		return Config{}, fmt.Errorf("%s must be http or https, got %q", EnvScheme, cfg.Scheme)
	}

	if v, ok := env(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("%s must be a port number, got %q", EnvPort, v)
		}
		cfg.Port = port
	}

	if v, ok := env(EnvVerifyTLS); ok {
		cfg.VerifyTLS = strings.EqualFold(v, "true")
	}

	return cfg, nil
}
