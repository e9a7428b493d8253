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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nabbar/socks5-gateway/internal/config"
)

// flags holds the persistent CLI overrides layered on top of the loaded
// configuration file, applied in loadConfig after config.Load.
type flags struct {
	configPath     string
	bindAddress    string
	port           int
	logLevel       string
	verbose        bool
	noAuth         bool
	maxConnections int
	timeout        string
	bufferSize     int
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "socks5gwd",
		Short: "SOCKS5 gateway daemon",
		Long:  "socks5gwd serves a SOCKS5 (RFC 1928/1929) proxy gateway with rate limiting, DDoS and fail2ban protection, rule-based routing, smart upstream selection, and a management API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}

	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to the gateway configuration file (YAML/TOML/JSON)")
	root.PersistentFlags().StringVar(&f.bindAddress, "bind", "", "override server.bindAddress")
	root.PersistentFlags().IntVar(&f.port, "port", 0, "override server.port")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "override monitoring.logLevel (debug|info|warn|error)")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "shorthand for --log-level debug")
	root.PersistentFlags().BoolVar(&f.noAuth, "no-auth", false, "override auth.enabled to false")
	root.PersistentFlags().IntVar(&f.maxConnections, "max-connections", 0, "override server.maxConnections")
	root.PersistentFlags().StringVar(&f.timeout, "timeout", "", "override server.connectionTimeout (e.g. 30s)")
	root.PersistentFlags().IntVar(&f.bufferSize, "buffer-size", 0, "override server.bufferSize, in bytes")

	root.AddCommand(newValidateCommand(f))

	return root
}

func newValidateCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			fmt.Printf("configuration valid: listening on %s:%d, %d routing rules, %d upstreams\n",
				cfg.Server.BindAddress, cfg.Server.Port, len(cfg.Routing.Rules), len(cfg.Routing.Upstreams))
			return nil
		},
	}
}

// loadConfig loads the file at f.configPath (or compiled-in defaults when
// empty) and layers the persistent flag overrides on top, mirroring the
// precedence order defaults < file < env < flags.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, _, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.bindAddress != "" {
		cfg.Server.BindAddress = f.bindAddress
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.logLevel != "" {
		cfg.Monitoring.LogLevel = f.logLevel
	}
	if f.verbose {
		cfg.Monitoring.LogLevel = "debug"
	}
	if f.noAuth {
		cfg.Auth.Enabled = false
	}
	if f.maxConnections != 0 {
		cfg.Server.MaxConnections = f.maxConnections
	}
	if f.bufferSize != 0 {
		cfg.Server.BufferSize = f.bufferSize
	}
	if f.timeout != "" {
		d, err := parseDuration(f.timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Server.ConnectionTimeout = d
	}

	return cfg, nil
}
