// Copyright (C) 2026 Trevor Vaughan
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, write to the Free Software Foundation, Inc.,
// 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.

package main

import (
	"fmt"
	"os"
	"strconv"

	"go.yaml.in/yaml/v3"
)

// agentConfig holds all configuration for the puppet-ssl agent.
// Fields are populated from (lowest → highest priority):
//
//	built-in defaults → config file → env vars → CLI flags
type agentConfig struct {
	Certname              string `yaml:"certname"`
	CAServer              string `yaml:"ca_server"`
	Ssldir                string `yaml:"ssldir"`
	KeyType               string `yaml:"key_type"`
	KeyLength             int    `yaml:"keylength"`
	NamedCurve            string `yaml:"named_curve"`
	DNSAltNames           string `yaml:"dns_alt_names"`
	CSRAttributes         string `yaml:"csr_attributes"`
	CertificateRevocation string `yaml:"certificate_revocation"`
	CRLRefreshInterval    string `yaml:"crl_refresh_interval"`
	WaitForCert           int    `yaml:"waitforcert"`
	MaxWaitForCert        int    `yaml:"maxwaitforcert"`
	HTTPTimeout           int    `yaml:"http_timeout"`
	Verbosity             int    `yaml:"verbosity"`
	LogFile               string `yaml:"logfile"`
}

// loadAgentConfig applies built-in defaults, optionally loads a YAML config
// file, then overlays environment variables. configFile may be "" to skip
// file loading.
func loadAgentConfig(configFile string) (*agentConfig, error) {
	hostname, _ := os.Hostname()
	cfg := &agentConfig{
		Certname:              hostname,
		CAServer:              "https://puppet:8140",
		KeyType:               "rsa",
		NamedCurve:            "prime256v1",
		CertificateRevocation: "chain",
		CRLRefreshInterval:    "24h",
		WaitForCert:           120,
		HTTPTimeout:           30,
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configFile, err)
		}
	}

	applyAgentEnv(cfg)
	return cfg, nil
}

// applyAgentEnv overlays PUPPET_SSL_* environment variables onto cfg.
func applyAgentEnv(cfg *agentConfig) {
	if v := os.Getenv("PUPPET_SSL_CERTNAME"); v != "" {
		cfg.Certname = v
	}
	if v := os.Getenv("PUPPET_SSL_CA_SERVER"); v != "" {
		cfg.CAServer = v
	}
	if v := os.Getenv("PUPPET_SSL_SSLDIR"); v != "" {
		cfg.Ssldir = v
	}
	if v := os.Getenv("PUPPET_SSL_KEY_TYPE"); v != "" {
		cfg.KeyType = v
	}
	if v := os.Getenv("PUPPET_SSL_KEYLENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.KeyLength = n
		}
	}
	if v := os.Getenv("PUPPET_SSL_NAMED_CURVE"); v != "" {
		cfg.NamedCurve = v
	}
	if v := os.Getenv("PUPPET_SSL_DNS_ALT_NAMES"); v != "" {
		cfg.DNSAltNames = v
	}
	if v := os.Getenv("PUPPET_SSL_CSR_ATTRIBUTES"); v != "" {
		cfg.CSRAttributes = v
	}
	if v := os.Getenv("PUPPET_SSL_CERTIFICATE_REVOCATION"); v != "" {
		cfg.CertificateRevocation = v
	}
	if v := os.Getenv("PUPPET_SSL_CRL_REFRESH_INTERVAL"); v != "" {
		cfg.CRLRefreshInterval = v
	}
	if v := os.Getenv("PUPPET_SSL_WAITFORCERT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WaitForCert = n
		}
	}
	if v := os.Getenv("PUPPET_SSL_MAXWAITFORCERT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWaitForCert = n
		}
	}
	if v := os.Getenv("PUPPET_SSL_HTTP_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPTimeout = n
		}
	}
	if v := os.Getenv("PUPPET_SSL_VERBOSITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Verbosity = n
		}
	}
	if v := os.Getenv("PUPPET_SSL_LOGFILE"); v != "" {
		cfg.LogFile = v
	}
}

// resolveConfigFile returns the config file path to use:
// cliFlag → envVar → defaultPath (if it exists) → "".
func resolveConfigFile(cliFlag, envVar, defaultPath string) string {
	if cliFlag != "" {
		return cliFlag
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}
	return ""
}
