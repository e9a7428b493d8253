/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads, validates, and hot-reloads the gateway's
// configuration tree via viper, go-playground/validator, and fsnotify.
package config

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ServerConfig controls the listener and connection lifecycle.
type ServerConfig struct {
	BindAddress        string        `mapstructure:"bindAddress" validate:"required"`
	Port               int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	MaxConnections     int           `mapstructure:"maxConnections" validate:"required,min=1,max=100000"`
	ConnectionTimeout  time.Duration `mapstructure:"connectionTimeout" validate:"required,min=1s,max=3600s"`
	HandshakeTimeout   time.Duration `mapstructure:"handshakeTimeout" validate:"required,min=1s,max=120s"`
	BufferSize         int           `mapstructure:"bufferSize" validate:"required,min=1024,max=1048576"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdownTimeout" validate:"required,min=1s,max=600s"`
	IdleTimeout        time.Duration `mapstructure:"idleTimeout" validate:"required,min=1s,max=3600s"`
	MaxMemoryMB        int64         `mapstructure:"maxMemoryMb" validate:"min=0"`
	ConnectionPoolSize int           `mapstructure:"connectionPoolSize" validate:"required,min=1,max=1000"`
	EnableKeepalive    bool          `mapstructure:"enableKeepalive"`
	KeepaliveInterval  time.Duration `mapstructure:"keepaliveInterval" validate:"min=0"`
	// SystemMemoryFloorPercent rejects new connections once host memory
	// usage reaches this percentage, independent of MaxMemoryMB's
	// per-connection accounting. Zero disables the guard.
	SystemMemoryFloorPercent float64 `mapstructure:"systemMemoryFloorPercent" validate:"min=0,max=100"`
}

// AuthConfig controls the RFC 1929 userpass gate.
type AuthConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Users   []UserSpec `mapstructure:"users" validate:"dive"`
}

// UserSpec is one statically-configured credential.
type UserSpec struct {
	Username string `mapstructure:"username" validate:"required,max=255"`
	Password string `mapstructure:"password" validate:"required,max=255"`
	Enabled  bool   `mapstructure:"enabled"`
}

// AccessControlEntry is one allow or block line of the legacy flat ACL: a
// pattern plus optional port and country restrictions.
type AccessControlEntry struct {
	Pattern   string   `mapstructure:"pattern" validate:"required"`
	Ports     []uint16 `mapstructure:"ports"`
	Countries []string `mapstructure:"countries"`
}

// AccessControlConfig is the legacy flat ACL plus the country-restriction
// hook. DefaultPolicy governs targets matched by neither list.
type AccessControlConfig struct {
	Enabled       bool                 `mapstructure:"enabled"`
	DefaultPolicy string               `mapstructure:"defaultPolicy" validate:"omitempty,oneof=allow block"`
	Allow         []AccessControlEntry `mapstructure:"allow" validate:"dive"`
	Block         []AccessControlEntry `mapstructure:"block" validate:"dive"`
	GeoIPDatabase string               `mapstructure:"geoIPDatabase"`
}

// RoutingRuleConfig is the on-disk shape of a routing.Rule.
type RoutingRuleConfig struct {
	ID               string   `mapstructure:"id" validate:"required"`
	Priority         uint32   `mapstructure:"priority"`
	Enabled          bool     `mapstructure:"enabled"`
	Pattern          string   `mapstructure:"pattern" validate:"required"`
	Action           string   `mapstructure:"action" validate:"required,oneof=allow block redirect proxy proxy_chain"`
	Upstream         string   `mapstructure:"upstream"`
	ProxyChain       []string `mapstructure:"proxyChain"`
	RedirectAddr     string   `mapstructure:"redirectAddr"`
	AllowedPorts     []uint16 `mapstructure:"allowedPorts"`
	AllowedSourceIPs []string `mapstructure:"allowedSourceIPs"`
	AllowedUsers     []string `mapstructure:"allowedUsers"`
}

// UpstreamConfig is one configured upstream proxy.
type UpstreamConfig struct {
	ID       string `mapstructure:"id" validate:"required"`
	Addr     string `mapstructure:"addr" validate:"required"`
	Protocol string `mapstructure:"protocol" validate:"required,oneof=socks5 http_connect"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// SmartRoutingConfig gates the upstream health/latency selector's behavior.
type SmartRoutingConfig struct {
	EnableLatencyRouting bool `mapstructure:"enableLatencyRouting"`
	EnableHealthRouting  bool `mapstructure:"enableHealthRouting"`
	MinMeasurements      int  `mapstructure:"minMeasurements" validate:"min=0"`
}

// RoutingConfig groups the rules engine, upstream registry, and smart
// selector gating.
type RoutingConfig struct {
	Rules        []RoutingRuleConfig `mapstructure:"rules" validate:"dive"`
	Upstreams    []UpstreamConfig    `mapstructure:"upstreams" validate:"dive"`
	SmartRouting SmartRoutingConfig  `mapstructure:"smartRouting"`
}

// MonitoringConfig controls logging and the management API.
type MonitoringConfig struct {
	LogLevel          string `mapstructure:"logLevel" validate:"required,oneof=debug info warn error"`
	ManagementEnabled bool   `mapstructure:"managementEnabled"`
	ManagementAddr    string `mapstructure:"managementAddr"`
	ManagementAuth    string `mapstructure:"managementAuth" validate:"omitempty,oneof=none basic apikey jwt"`
	ManagementToken   string `mapstructure:"managementToken"`
}

// SecurityConfig groups the rate limiter, DDoS protector, and fail2ban
// thresholds.
type SecurityConfig struct {
	RateLimit ratelimitConfig `mapstructure:"rateLimit"`
	DDoS      ddosConfig      `mapstructure:"ddos"`
	Fail2Ban  fail2banConfig  `mapstructure:"fail2ban"`
}

type ratelimitConfig struct {
	ConnectionCapacity     float64       `mapstructure:"connectionCapacity"`
	ConnectionRefillPerMin float64       `mapstructure:"connectionRefillPerMin"`
	AuthCapacity           float64       `mapstructure:"authCapacity"`
	AuthRefillPerMin       float64       `mapstructure:"authRefillPerMin"`
	GlobalConnectionCap    float64       `mapstructure:"globalConnectionCap"`
	GlobalConnRefillPerMin float64       `mapstructure:"globalConnRefillPerMin"`
	BlockDuration          time.Duration `mapstructure:"blockDuration"`
}

type ddosConfig struct {
	Window         time.Duration `mapstructure:"window"`
	FloodThreshold int           `mapstructure:"floodThreshold"`
	BaseBan        time.Duration `mapstructure:"baseBan"`
	MaxPerIP       int           `mapstructure:"maxPerIP"`
	GlobalMax      int           `mapstructure:"globalMax"`
}

type fail2banConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxFailures int           `mapstructure:"maxFailures"`
	BaseBan     time.Duration `mapstructure:"baseBan"`
	MaxBan      time.Duration `mapstructure:"maxBan"`
	Whitelist   []string      `mapstructure:"whitelist"`
}

// Config is the full configuration tree.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Auth          AuthConfig          `mapstructure:"auth"`
	AccessControl AccessControlConfig `mapstructure:"accessControl"`
	Routing       RoutingConfig       `mapstructure:"routing"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring" validate:"required"`
	Security      SecurityConfig      `mapstructure:"security"`
}

// Default returns a Config populated with the reference defaults, suitable
// as a base before a file/env overlay is applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:              "0.0.0.0",
			Port:                     1080,
			MaxConnections:           1000,
			ConnectionTimeout:        30 * time.Second,
			HandshakeTimeout:         10 * time.Second,
			BufferSize:               32 * 1024,
			ShutdownTimeout:          15 * time.Second,
			IdleTimeout:              300 * time.Second,
			MaxMemoryMB:              0,
			ConnectionPoolSize:       8,
			EnableKeepalive:          true,
			KeepaliveInterval:        30 * time.Second,
			SystemMemoryFloorPercent: 0,
		},
		AccessControl: AccessControlConfig{
			DefaultPolicy: "allow",
		},
		Routing: RoutingConfig{
			SmartRouting: SmartRoutingConfig{
				EnableLatencyRouting: true,
				EnableHealthRouting:  true,
			},
		},
		Monitoring: MonitoringConfig{
			LogLevel:       "info",
			ManagementAddr: "127.0.0.1:9090",
			ManagementAuth: "none",
		},
		Security: SecurityConfig{
			RateLimit: ratelimitConfig{
				ConnectionCapacity:     20,
				ConnectionRefillPerMin: 60,
				AuthCapacity:           5,
				AuthRefillPerMin:       10,
				GlobalConnectionCap:    1000,
				GlobalConnRefillPerMin: 6000,
				BlockDuration:          15 * time.Minute,
			},
			DDoS: ddosConfig{
				Window:         60 * time.Second,
				FloodThreshold: 30,
				BaseBan:        30 * time.Minute,
				MaxPerIP:       50,
				GlobalMax:      10000,
			},
			Fail2Ban: fail2banConfig{
				Window:      10 * time.Minute,
				MaxFailures: 5,
				BaseBan:     30 * time.Minute,
				MaxBan:      24 * time.Hour,
			},
		},
	}
}

// ErrInvalidConfig wraps a validation or load failure.
type ErrInvalidConfig struct {
	Cause error
}

func (e *ErrInvalidConfig) Error() string { return fmt.Sprintf("config: invalid configuration: %v", e.Cause) }
func (e *ErrInvalidConfig) Unwrap() error { return e.Cause }

// Snapshot is the atomically-swapped live configuration pointer read by
// every hot-path collaborator.
type Snapshot struct {
	ptr atomic.Pointer[Config]
}

// NewSnapshot builds a Snapshot initialized to cfg.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.ptr.Store(cfg)
	return s
}

// Get returns the current configuration. Safe for concurrent use; never
// blocks on a reload in progress.
func (s *Snapshot) Get() *Config { return s.ptr.Load() }

// Swap atomically replaces the live configuration.
func (s *Snapshot) Swap(cfg *Config) { s.ptr.Store(cfg) }
