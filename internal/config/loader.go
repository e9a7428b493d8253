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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/nabbar/socks5-gateway/internal/logger"
)

var validate = validator.New()

// envPrefix is the base prefix every environment variable this loader
// consults is rooted under, both the nested SOCKS5GW_SECTION_KEY form
// viper's AutomaticEnv produces and the literal short names bound below.
const envPrefix = "SOCKS5GW"

// Load reads path (TOML/YAML/JSON inferred from extension) over the
// compiled-in defaults, overlays SOCKS5GW_-prefixed environment variables
// (both the nested per-field form and the literal short names below),
// applies any per-user/per-proxy credential environment variables, and
// validates the result.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	bindDefaults(v, cfg)
	bindLiteralEnvVars(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, &ErrInvalidConfig{Cause: err}
		}
	}

	out := Default()
	if err := v.Unmarshal(out); err != nil {
		return nil, nil, &ErrInvalidConfig{Cause: err}
	}

	loadCredentialEnvVars(out)

	if err := validate.Struct(out); err != nil {
		return nil, nil, &ErrInvalidConfig{Cause: err}
	}

	return out, v, nil
}

// bindLiteralEnvVars binds the literal environment variable names the
// configuration documents, which do not follow viper's SECTION_FIELD
// nesting convention (e.g. SOCKS5GW_BIND_ADDR rather than
// SOCKS5GW_SERVER_BINDADDRESS).
func bindLiteralEnvVars(v *viper.Viper) {
	bind := func(key, name string) {
		_ = v.BindEnv(key, envPrefix+"_"+name)
	}
	bind("server.bindAddress", "BIND_ADDR")
	bind("server.maxConnections", "MAX_CONNECTIONS")
	bind("server.connectionTimeout", "CONNECTION_TIMEOUT")
	bind("server.bufferSize", "BUFFER_SIZE")
	bind("auth.enabled", "AUTH_ENABLED")
	bind("monitoring.logLevel", "LOG_LEVEL")
}

// loadCredentialEnvVars scans for the indexed user- and proxy-credential
// environment variables: SOCKS5GW_USER_<n>_USERNAME/_PASSWORD/_ENABLED for
// statically-configured SOCKS5 users, and SOCKS5GW_PROXY_<n>_NAME/
// _USERNAME/_PASSWORD for upstream proxy credentials, matched onto the
// already-loaded upstream by ID. Scanning stops at the first missing
// index in each series.
func loadCredentialEnvVars(out *Config) {
	for i := 0; ; i++ {
		username, ok := os.LookupEnv(fmt.Sprintf("%s_USER_%d_USERNAME", envPrefix, i))
		if !ok {
			break
		}
		password := os.Getenv(fmt.Sprintf("%s_USER_%d_PASSWORD", envPrefix, i))
		enabled := true
		if raw, ok := os.LookupEnv(fmt.Sprintf("%s_USER_%d_ENABLED", envPrefix, i)); ok {
			if parsed, err := strconv.ParseBool(raw); err == nil {
				enabled = parsed
			}
		}
		out.Auth.Users = append(out.Auth.Users, UserSpec{Username: username, Password: password, Enabled: enabled})
	}

	for i := 0; ; i++ {
		name, ok := os.LookupEnv(fmt.Sprintf("%s_PROXY_%d_NAME", envPrefix, i))
		if !ok {
			break
		}
		username := os.Getenv(fmt.Sprintf("%s_PROXY_%d_USERNAME", envPrefix, i))
		password := os.Getenv(fmt.Sprintf("%s_PROXY_%d_PASSWORD", envPrefix, i))
		for j := range out.Routing.Upstreams {
			if out.Routing.Upstreams[j].ID == name {
				out.Routing.Upstreams[j].Username = username
				out.Routing.Upstreams[j].Password = password
				break
			}
		}
	}
}

// bindDefaults seeds viper's own default layer from cfg, so env vars and
// file keys left unset still resolve to the reference defaults.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.bindAddress", cfg.Server.BindAddress)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.maxConnections", cfg.Server.MaxConnections)
	v.SetDefault("server.connectionTimeout", cfg.Server.ConnectionTimeout)
	v.SetDefault("server.handshakeTimeout", cfg.Server.HandshakeTimeout)
	v.SetDefault("server.bufferSize", cfg.Server.BufferSize)
	v.SetDefault("server.shutdownTimeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.idleTimeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.maxMemoryMb", cfg.Server.MaxMemoryMB)
	v.SetDefault("server.connectionPoolSize", cfg.Server.ConnectionPoolSize)
	v.SetDefault("server.enableKeepalive", cfg.Server.EnableKeepalive)
	v.SetDefault("server.keepaliveInterval", cfg.Server.KeepaliveInterval)
	v.SetDefault("monitoring.logLevel", cfg.Monitoring.LogLevel)
	v.SetDefault("monitoring.managementAddr", cfg.Monitoring.ManagementAddr)
	v.SetDefault("monitoring.managementAuth", cfg.Monitoring.ManagementAuth)
}

// WatchFunc is called with the newly loaded and validated configuration
// after each on-disk change. A non-nil error from a previous load leaves
// the prior snapshot untouched.
type WatchFunc func(cfg *Config)

// Watcher hot-reloads path on fsnotify events, publishing through an
// atomic.Pointer swap so the fsnotify callback goroutine never blocks a
// hot-path reader.
type Watcher struct {
	path string
	log  logger.Logger
	snap *Snapshot
}

// NewWatcher builds a Watcher that will publish reloads into snap.
func NewWatcher(path string, log logger.Logger, snap *Snapshot) *Watcher {
	return &Watcher{path: path, log: log, snap: snap}
}

// Start begins watching path via viper's fsnotify integration. It returns
// immediately; reloads happen on a background goroutine owned by viper.
func (w *Watcher) Start() error {
	_, v, err := Load(w.path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, _, err := Load(w.path)
		if err != nil {
			w.log.Warn("config reload failed, keeping previous snapshot", nil, "error", err, "event", e.Name)
			return
		}
		w.snap.Swap(cfg)
		w.log.Info("config reloaded", nil, "event", e.Name)
	})
	v.WatchConfig()
	return nil
}
