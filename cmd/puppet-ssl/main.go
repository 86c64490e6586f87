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

// puppet-ssl bootstraps a node's SSL credentials against a puppet-ca
// server: CA bundle, CRLs, private key, and a signed client certificate.
//
// Subcommands:
//
//	bootstrap     Run the full bootstrap to a signed client certificate
//	download-ca   Fetch and validate only the trust material (CA + CRLs)
//	verify        Validate the on-disk credentials, optionally via OCSP
//	clean         Remove the node's key, certificate, and saved CSR
//	show          Print the on-disk credential paths and certificate facts
package main

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ocsp"

	"github.com/tvaughan/puppet-ssl/internal/caclient"
	"github.com/tvaughan/puppet-ssl/internal/machine"
	"github.com/tvaughan/puppet-ssl/internal/provider"
	"github.com/tvaughan/puppet-ssl/internal/ssl"
)

func main() {
	var (
		configFile     string
		certname       string
		caServer       string
		ssldir         string
		keyType        string
		keyLength      int
		namedCurve     string
		dnsAltNames    string
		csrAttributes  string
		certRevocation string
		crlRefresh     string
		waitForCert    int
		maxWaitForCert int
		httpTimeout    int
		verbosity      int
		logFile        string
	)

	var cfg *agentConfig

	root := &cobra.Command{
		Use:          "puppet-ssl",
		Short:        "SSL bootstrap client for a puppet-ca server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			resolved := resolveConfigFile(configFile, "PUPPET_SSL_CONFIG", "/etc/puppet-ssl/config.yaml")
			loaded, err := loadAgentConfig(resolved)
			if err != nil {
				return err
			}

			// Apply explicitly-set CLI flags (highest precedence).
			if cmd.Flags().Changed("certname") {
				loaded.Certname = certname
			}
			if cmd.Flags().Changed("ca-server") {
				loaded.CAServer = caServer
			}
			if cmd.Flags().Changed("ssldir") {
				loaded.Ssldir = ssldir
			}
			if cmd.Flags().Changed("key-type") {
				loaded.KeyType = keyType
			}
			if cmd.Flags().Changed("keylength") {
				loaded.KeyLength = keyLength
			}
			if cmd.Flags().Changed("named-curve") {
				loaded.NamedCurve = namedCurve
			}
			if cmd.Flags().Changed("dns-alt-names") {
				loaded.DNSAltNames = dnsAltNames
			}
			if cmd.Flags().Changed("csr-attributes") {
				loaded.CSRAttributes = csrAttributes
			}
			if cmd.Flags().Changed("certificate-revocation") {
				loaded.CertificateRevocation = certRevocation
			}
			if cmd.Flags().Changed("crl-refresh-interval") {
				loaded.CRLRefreshInterval = crlRefresh
			}
			if cmd.Flags().Changed("waitforcert") {
				loaded.WaitForCert = waitForCert
			}
			if cmd.Flags().Changed("maxwaitforcert") {
				loaded.MaxWaitForCert = maxWaitForCert
			}
			if cmd.Flags().Changed("http-timeout") {
				loaded.HTTPTimeout = httpTimeout
			}
			if cmd.Flags().Changed("verbosity") {
				loaded.Verbosity = verbosity
			}
			if cmd.Flags().Changed("logfile") {
				loaded.LogFile = logFile
			}

			// --- Validation ---
			if loaded.Ssldir == "" {
				return fmt.Errorf("--ssldir is required (or set PUPPET_SSL_SSLDIR / ssldir in config file)")
			}
			if loaded.Certname == "" {
				return fmt.Errorf("--certname is required (or set PUPPET_SSL_CERTNAME / certname in config file)")
			}
			switch loaded.CertificateRevocation {
			case machine.RevocationChain, machine.RevocationOff:
			default:
				return fmt.Errorf("invalid certificate_revocation %q (expected %q or %q)",
					loaded.CertificateRevocation, machine.RevocationChain, machine.RevocationOff)
			}
			if _, err := time.ParseDuration(loaded.CRLRefreshInterval); err != nil {
				return fmt.Errorf("invalid crl_refresh_interval %q: %w", loaded.CRLRefreshInterval, err)
			}

			// --- Logging setup ---
			var logLevel slog.Level
			switch loaded.Verbosity {
			case 0:
				logLevel = slog.LevelInfo
			case 1:
				logLevel = slog.LevelDebug
			default:
				logLevel = slog.Level(-8) // Trace
			}

			opts := &slog.HandlerOptions{Level: logLevel}
			var logHandler slog.Handler

			if loaded.LogFile != "" {
				f, err := os.OpenFile(loaded.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
				if err != nil {
					return fmt.Errorf("failed to open log file %s: %w", loaded.LogFile, err)
				}
				logHandler = slog.NewJSONHandler(f, opts)
			} else {
				logHandler = slog.NewTextHandler(os.Stderr, opts)
			}
			slog.SetDefault(slog.New(logHandler))

			cfg = loaded
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to YAML config file (default: /etc/puppet-ssl/config.yaml if it exists)")
	pf.StringVar(&certname, "certname", "", "Node identity: CSR subject CN and CA URL path element (default: hostname)")
	pf.StringVar(&caServer, "ca-server", "https://puppet:8140", "Base URL of the puppet-ca server")
	pf.StringVar(&ssldir, "ssldir", "", "Directory for SSL artifacts (or set PUPPET_SSL_SSLDIR)")
	pf.StringVar(&keyType, "key-type", "rsa", "Private key type: rsa or ec")
	pf.IntVar(&keyLength, "keylength", 0, "RSA modulus bits (default 4096)")
	pf.StringVar(&namedCurve, "named-curve", "prime256v1", "EC curve for --key-type ec")
	pf.StringVar(&dnsAltNames, "dns-alt-names", "", "Comma-separated subjectAltName entries (DNS: or IP: prefixed)")
	pf.StringVar(&csrAttributes, "csr-attributes", "", "Path to csr_attributes YAML file")
	pf.StringVar(&certRevocation, "certificate-revocation", "chain", "Revocation checking: chain or off")
	pf.StringVar(&crlRefresh, "crl-refresh-interval", "24h", "Re-fetch the CRL when the local copy is older than this")
	pf.IntVar(&waitForCert, "waitforcert", 120, "Seconds between certificate poll attempts (0 = exit immediately)")
	pf.IntVar(&maxWaitForCert, "maxwaitforcert", 0, "Total seconds to keep polling (0 = forever)")
	pf.IntVar(&httpTimeout, "http-timeout", 30, "Per-request HTTP timeout in seconds")
	pf.IntVarP(&verbosity, "verbosity", "v", 0, "Verbosity: 0=Info 1=Debug 2=Trace")
	pf.StringVar(&logFile, "logfile", "", "Log to file (JSON) instead of stderr")

	newMachine := func() *machine.StateMachine {
		refresh, _ := time.ParseDuration(cfg.CRLRefreshInterval)
		return machine.New(
			provider.New(cfg.Ssldir),
			caclient.New(cfg.CAServer, time.Duration(cfg.HTTPTimeout)*time.Second),
			machine.Config{
				Certname:              cfg.Certname,
				KeyType:               cfg.KeyType,
				KeyLength:             cfg.KeyLength,
				NamedCurve:            cfg.NamedCurve,
				DNSAltNames:           cfg.DNSAltNames,
				CSRAttributesPath:     cfg.CSRAttributes,
				CertificateRevocation: cfg.CertificateRevocation,
				CRLRefreshInterval:    refresh,
				WaitForCert:           time.Duration(cfg.WaitForCert) * time.Second,
				MaxWaitForCert:        time.Duration(cfg.MaxWaitForCert) * time.Second,
			},
		)
	}

	root.AddCommand(&cobra.Command{
		Use:          "bootstrap",
		Short:        "Run the full bootstrap to a signed client certificate",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newMachine().EnsureClientCertificate()
			if err != nil {
				return err
			}
			slog.Info("Completed SSL initialization",
				"certname", cfg.Certname,
				"not_after", ctx.ClientCert.NotAfter.Format(time.RFC3339),
			)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:          "download-ca",
		Short:        "Fetch and validate only the trust material (CA bundle + CRLs)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newMachine().EnsureCACertificates()
			if err != nil {
				return err
			}
			slog.Info("Trust material is in place",
				"cacerts", len(ctx.CACerts),
				"crls", len(ctx.CRLs),
			)
			return nil
		},
	})

	var withOCSP bool
	verifyCmd := &cobra.Command{
		Use:          "verify",
		Short:        "Validate the on-disk credentials without touching the CA",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := loadLocalContext(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("Certificate %s is valid until %s\n",
				ctx.ClientCert.Subject.CommonName,
				ctx.ClientCert.NotAfter.Format(time.RFC3339))

			if withOCSP {
				issuer := findIssuer(ctx.ClientCert, ctx.CACerts)
				if issuer == nil {
					return fmt.Errorf("no issuer for %q in the CA bundle", ctx.ClientCert.Subject.CommonName)
				}
				httpClient := &http.Client{Timeout: time.Duration(cfg.HTTPTimeout) * time.Second}
				resp, err := ssl.CheckOCSP(httpClient, ctx.ClientCert, issuer)
				if err != nil {
					return err
				}
				switch resp.Status {
				case ocsp.Good:
					fmt.Println("OCSP status: good")
				case ocsp.Revoked:
					return fmt.Errorf("%w: OCSP responder reports revoked at %s",
						ssl.ErrCertificateRevoked, resp.RevokedAt.Format(time.RFC3339))
				default:
					fmt.Println("OCSP status: unknown")
				}
			}
			return nil
		},
	}
	verifyCmd.Flags().BoolVar(&withOCSP, "ocsp", false, "Also query the OCSP responder named in the certificate")
	root.AddCommand(verifyCmd)

	var cleanAll bool
	cleanCmd := &cobra.Command{
		Use:          "clean",
		Short:        "Remove the node's key, certificate, and saved CSR",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := provider.New(cfg.Ssldir)
			if err := p.Clean(cfg.Certname, cleanAll); err != nil {
				return err
			}
			fmt.Printf("Cleaned credentials for %s\n", cfg.Certname)
			return nil
		},
	}
	cleanCmd.Flags().BoolVar(&cleanAll, "all", false, "Also remove the CA bundle and CRL")
	root.AddCommand(cleanCmd)

	root.AddCommand(&cobra.Command{
		Use:          "show",
		Short:        "Print the on-disk credential paths and certificate facts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showCredentials(cfg)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadLocalContext rebuilds a validated client context purely from the
// ssldir contents.
func loadLocalContext(cfg *agentConfig) (*ssl.Context, error) {
	p := provider.New(cfg.Ssldir)

	caData, err := p.LoadCACerts()
	if err != nil {
		return nil, fmt.Errorf("loading CA bundle from %s: %w", p.CACertPath(), err)
	}
	cacerts, err := ssl.ParseCertBundle(caData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ssl.ErrMalformedCACert, err)
	}

	var crls []*x509.RevocationList
	if cfg.CertificateRevocation == machine.RevocationChain {
		crlData, err := p.LoadCRLs()
		if err != nil {
			return nil, fmt.Errorf("loading CRL bundle from %s: %w", p.CRLPath(), err)
		}
		crls, err = ssl.ParseCRLBundle(crlData)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ssl.ErrMalformedCRL, err)
		}
	}

	keyData, err := p.LoadPrivateKey(cfg.Certname)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ssl.ErrKeyLoadFailed, p.PrivateKeyPath(cfg.Certname), err)
	}
	key, err := ssl.ParsePrivateKeyPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ssl.ErrKeyLoadFailed, p.PrivateKeyPath(cfg.Certname), err)
	}

	certData, err := p.LoadClientCert(cfg.Certname)
	if err != nil {
		return nil, fmt.Errorf("loading certificate from %s: %w", p.ClientCertPath(cfg.Certname), err)
	}
	cert, err := ssl.ParseCertificate(certData)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate %s: %w", p.ClientCertPath(cfg.Certname), err)
	}

	return ssl.NewClientContext(cacerts, crls, key, cert)
}

// findIssuer locates cert's issuing certificate in the bundle.
func findIssuer(cert *x509.Certificate, cacerts []*x509.Certificate) *x509.Certificate {
	for _, ca := range cacerts {
		if bytes.Equal(cert.RawIssuer, ca.RawSubject) {
			return ca
		}
	}
	return nil
}

func showCredentials(cfg *agentConfig) error {
	p := provider.New(cfg.Ssldir)

	exists := func(path string) string {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return "(absent)"
	}

	fmt.Printf("Certname:     %s\n", cfg.Certname)
	fmt.Printf("CA bundle:    %s\n", exists(p.CACertPath()))
	fmt.Printf("CRL bundle:   %s\n", exists(p.CRLPath()))
	fmt.Printf("Private key:  %s\n", exists(p.PrivateKeyPath(cfg.Certname)))
	fmt.Printf("Certificate:  %s\n", exists(p.ClientCertPath(cfg.Certname)))
	fmt.Printf("Saved CSR:    %s\n", exists(p.RequestPath(cfg.Certname)))

	certData, err := p.LoadClientCert(cfg.Certname)
	if err != nil {
		return nil
	}
	cert, err := ssl.ParseCertificate(certData)
	if err != nil {
		return fmt.Errorf("parsing certificate %s: %w", p.ClientCertPath(cfg.Certname), err)
	}
	fmt.Printf("Subject:      CN=%s\n", cert.Subject.CommonName)
	fmt.Printf("Serial:       %X\n", cert.SerialNumber)
	fmt.Printf("Not before:   %s\n", cert.NotBefore.Format(time.RFC3339))
	fmt.Printf("Not after:    %s\n", cert.NotAfter.Format(time.RFC3339))
	if len(cert.DNSNames) > 0 {
		fmt.Printf("DNS names:    %v\n", cert.DNSNames)
	}
	if len(cert.IPAddresses) > 0 {
		fmt.Printf("IP addresses: %v\n", cert.IPAddresses)
	}
	return nil
}
