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

package machine

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tvaughan/puppet-ssl/internal/ssl"
)

// state is the transition contract. A state performs its I/O inside next()
// and either returns the successor state or an error. Three error policies
// apply: most errors are fatal and propagate; CRL-refresh failures are
// swallowed in favor of the local copy; certificate-poll failures become a
// transition to wait.
type state interface {
	next() (state, error)
}

// needCACerts loads the CA bundle from disk, or downloads it with peer
// verification disabled when no local copy exists yet.
type needCACerts struct {
	m *StateMachine
}

func (s *needCACerts) next() (state, error) {
	m := s.m

	data, err := m.Provider.LoadCACerts()
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading CA bundle from %s: %w", m.Provider.CACertPath(), err)
	}

	if os.IsNotExist(err) {
		slog.Debug("Downloading CA bundle", "path", m.Provider.CACertPath())
		status, body, err := m.Client.DownloadCACerts()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ssl.ErrCACertDownloadFailed, err)
		}
		switch {
		case status == http.StatusNotFound:
			return nil, fmt.Errorf("%w: CA answered 404 for its certificate bundle", ssl.ErrCACertMissing)
		case status < 200 || status > 299:
			return nil, fmt.Errorf("%w: CA answered HTTP %d: %s",
				ssl.ErrCACertDownloadFailed, status, strings.TrimSpace(string(body)))
		}
		if _, perr := ssl.ParseCertBundle(body); perr != nil {
			return nil, fmt.Errorf("%w: %v", ssl.ErrMalformedCACert, perr)
		}
		if err := m.Provider.SaveCACerts(body); err != nil {
			return nil, fmt.Errorf("saving CA bundle to %s: %w", m.Provider.CACertPath(), err)
		}
		slog.Info("Downloaded CA bundle", "path", m.Provider.CACertPath())
		data = body
	}

	cacerts, err := ssl.ParseCertBundle(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ssl.ErrMalformedCACert, err)
	}
	return &needCRLs{m: m, ctx: &ssl.Context{CACerts: cacerts, VerifyPeer: true}}, nil
}

// needCRLs establishes the revocation material. A missing CRL is downloaded
// and any failure is fatal; a stale local CRL is refreshed conditionally
// and every refresh failure falls back to the local copy, except a 200
// whose body does not parse, which is fatal.
type needCRLs struct {
	m   *StateMachine
	ctx *ssl.Context
}

func (s *needCRLs) next() (state, error) {
	m := s.m

	if m.Config.CertificateRevocation == RevocationOff {
		slog.Debug("Certificate revocation is disabled, skipping CRL download")
		return &needKey{m: m, ctx: s.ctx}, nil
	}

	data, err := m.Provider.LoadCRLs()
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading CRL bundle from %s: %w", m.Provider.CRLPath(), err)
	}

	if os.IsNotExist(err) {
		data, err = s.download()
		if err != nil {
			return nil, err
		}
	} else {
		data = s.refresh(data)
	}

	crls, err := ssl.ParseCRLBundle(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ssl.ErrMalformedCRL, err)
	}
	ctx, err := ssl.NewRootContext(s.ctx.CACerts, crls)
	if err != nil {
		return nil, err
	}
	return &needKey{m: m, ctx: ctx}, nil
}

// download fetches the initial CRL bundle. All failure modes are fatal; a
// malformed body is never persisted.
func (s *needCRLs) download() ([]byte, error) {
	m := s.m

	status, body, err := m.Client.DownloadCRLs(s.ctx.CertPool(), time.Time{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ssl.ErrCRLDownloadFailed, err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: CA answered 404 for the certificate revocation list", ssl.ErrCRLMissing)
	case status < 200 || status > 299:
		return nil, fmt.Errorf("%w: CA answered HTTP %d: %s",
			ssl.ErrCRLDownloadFailed, status, strings.TrimSpace(string(body)))
	}
	if _, perr := ssl.ParseCRLBundle(body); perr != nil {
		return nil, fmt.Errorf("%w: %v", ssl.ErrMalformedCRL, perr)
	}
	if err := m.Provider.SaveCRLs(body); err != nil {
		return nil, fmt.Errorf("saving CRL bundle to %s: %w", m.Provider.CRLPath(), err)
	}
	slog.Info("Downloaded CRL bundle", "path", m.Provider.CRLPath())
	return body, nil
}

// refresh re-fetches a stale local CRL with a conditional GET. 304, any
// non-200, and transport errors all keep the local copy: a stale CRL beats
// no trust material. The only fatal outcome is a 200 whose body does not
// parse: that body is returned unsaved and the caller fails on it; a parsed
// 200 replaces the local copy on disk.
func (s *needCRLs) refresh(local []byte) []byte {
	m := s.m

	lastUpdate, err := m.Provider.CRLLastUpdate()
	if err != nil {
		slog.Warn("Could not determine CRL age, keeping local CRLs", "error", err)
		return local
	}
	if m.Now().Sub(lastUpdate) < m.Config.CRLRefreshInterval {
		return local
	}

	slog.Debug("Refreshing CRL bundle", "last_update", lastUpdate)
	status, body, err := m.Client.DownloadCRLs(s.ctx.CertPool(), lastUpdate)
	switch {
	case err != nil:
		slog.Warn("CRL refresh failed, keeping local CRLs", "error", err)
		return local
	case status == http.StatusNotModified:
		slog.Debug("CRL bundle not modified")
		return local
	case status != http.StatusOK:
		slog.Warn("CRL refresh failed, keeping local CRLs", "status", status)
		return local
	}

	if _, perr := ssl.ParseCRLBundle(body); perr != nil {
		// A 200 with an unparseable body is the one refresh outcome that
		// must not be papered over. Returning the body lets the caller
		// fail with ErrMalformedCRL without persisting it.
		return body
	}
	if err := m.Provider.SaveCRLs(body); err != nil {
		slog.Warn("Could not save refreshed CRLs, keeping local CRLs", "error", err)
		return local
	}
	slog.Info("Refreshed CRL bundle", "path", m.Provider.CRLPath())
	return body
}

// needKey loads or generates the private key. An unreadable on-disk key is
// fatal; it is never silently regenerated. When both key and certificate
// already exist they must agree, also fatally.
type needKey struct {
	m   *StateMachine
	ctx *ssl.Context
}

func (s *needKey) next() (state, error) {
	m := s.m
	certname := m.Config.Certname

	keyData, err := m.Provider.LoadPrivateKey(certname)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: reading %s: %v",
			ssl.ErrKeyLoadFailed, m.Provider.PrivateKeyPath(certname), err)
	}

	if os.IsNotExist(err) {
		key, err := s.generate()
		if err != nil {
			return nil, err
		}
		pemData, err := ssl.EncodePrivateKeyPEM(key)
		if err != nil {
			return nil, err
		}
		if err := m.Provider.SavePrivateKey(certname, pemData); err != nil {
			return nil, fmt.Errorf("saving private key to %s: %w",
				m.Provider.PrivateKeyPath(certname), err)
		}
		slog.Info("Generated private key", "path", m.Provider.PrivateKeyPath(certname))
		return &needSubmitCSR{m: m, ctx: s.ctx, key: key}, nil
	}

	key, err := ssl.ParsePrivateKeyPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v",
			ssl.ErrKeyLoadFailed, m.Provider.PrivateKeyPath(certname), err)
	}

	certData, err := m.Provider.LoadClientCert(certname)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading certificate from %s: %w",
				m.Provider.ClientCertPath(certname), err)
		}
		return &needSubmitCSR{m: m, ctx: s.ctx, key: key}, nil
	}

	cert, err := ssl.ParseCertificate(certData)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate %s: %w",
			m.Provider.ClientCertPath(certname), err)
	}
	ctx, err := ssl.NewClientContext(s.ctx.CACerts, s.ctx.CRLs, key, cert)
	if err != nil {
		return nil, err
	}
	return &done{ctx: ctx}, nil
}

func (s *needKey) generate() (crypto.Signer, error) {
	cfg := s.m.Config
	switch cfg.KeyType {
	case "", "rsa":
		return ssl.GenerateRSAKey(cfg.KeyLength)
	case "ec":
		curve := cfg.NamedCurve
		if curve == "" {
			curve = "prime256v1"
		}
		return ssl.GenerateECKey(curve)
	default:
		return nil, fmt.Errorf("unsupported key type %q", cfg.KeyType)
	}
}

// needSubmitCSR builds, persists, and uploads the certificate request. The
// CSR hits disk before the wire so a crashed run leaves evidence of what
// was submitted. A 400 that says a request or certificate already exists
// counts as success.
type needSubmitCSR struct {
	m   *StateMachine
	ctx *ssl.Context
	key crypto.Signer
}

// softRejections are 400 bodies that mean the CA already holds something
// for this certname; polling for the certificate is the right response.
var softRejections = []string{
	"already has a requested certificate",
	"already has a signed certificate",
	"already has a revoked certificate",
}

func (s *needSubmitCSR) next() (state, error) {
	m := s.m
	certname := m.Config.Certname

	attrs, err := ssl.LoadCSRAttributes(m.Config.CSRAttributesPath)
	if err != nil {
		return nil, err
	}
	alt, err := ssl.ParseSubjectAltNames(m.Config.DNSAltNames, certname)
	if err != nil {
		return nil, err
	}
	csrPEM, err := ssl.CreateRequest(certname, s.key, alt, attrs)
	if err != nil {
		return nil, err
	}
	if err := m.Provider.SaveRequest(certname, csrPEM); err != nil {
		return nil, fmt.Errorf("saving certificate request to %s: %w",
			m.Provider.RequestPath(certname), err)
	}

	status, body, err := m.Client.SubmitCSR(s.ctx.CertPool(), certname, csrPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ssl.ErrCSRSubmitFailed, err)
	}
	if status >= 200 && status <= 299 {
		slog.Info("Submitted certificate request", "certname", certname)
		return &needCert{m: m, ctx: s.ctx, key: s.key}, nil
	}
	if status == http.StatusBadRequest {
		for _, phrase := range softRejections {
			if strings.Contains(string(body), phrase) {
				slog.Debug("CA already has a certificate entry for this node", "certname", certname)
				return &needCert{m: m, ctx: s.ctx, key: s.key}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: CA answered HTTP %d: %s",
		ssl.ErrCSRSubmitFailed, status, strings.TrimSpace(string(body)))
}

// needCert polls for the signed certificate. No certificate problem is
// fatal: a missing, malformed, mismatched, or revoked certificate is logged
// and the machine waits for the CA to produce a usable one. Only a valid
// matching unrevoked certificate is persisted; failing to save it is fatal.
type needCert struct {
	m   *StateMachine
	ctx *ssl.Context
	key crypto.Signer
}

func (s *needCert) next() (state, error) {
	m := s.m
	certname := m.Config.Certname
	w := &wait{m: m, ctx: s.ctx, key: s.key}

	status, body, err := m.Client.DownloadCertificate(s.ctx.CertPool(), certname)
	if err != nil {
		slog.Debug("Certificate download failed", "certname", certname, "error", err)
		return w, nil
	}
	if status != http.StatusOK {
		slog.Debug("Certificate not yet available", "certname", certname, "status", status)
		return w, nil
	}

	cert, err := ssl.ParseCertificate(body)
	if err != nil {
		slog.Warn(fmt.Sprintf("Failed to parse certificate for %q, will try again", certname), "error", err)
		return w, nil
	}
	ctx, err := ssl.NewClientContext(s.ctx.CACerts, s.ctx.CRLs, s.key, cert)
	if err != nil {
		switch {
		case errors.Is(err, ssl.ErrKeyCertMismatch):
			slog.Warn(fmt.Sprintf("Certificate for %q does not match its private key, will try again", certname))
		case errors.Is(err, ssl.ErrCertificateRevoked):
			slog.Warn(fmt.Sprintf("Certificate for %q is revoked, will try again", certname))
		default:
			slog.Warn(fmt.Sprintf("Certificate for %q failed validation, will try again", certname), "error", err)
		}
		return w, nil
	}

	if err := m.Provider.SaveClientCert(certname, ssl.EncodeCertBundle([]*x509.Certificate{cert})); err != nil {
		return nil, fmt.Errorf("saving certificate to %s: %w",
			m.Provider.ClientCertPath(certname), err)
	}
	slog.Info("Downloaded certificate", "certname", certname, "path", m.Provider.ClientCertPath(certname))
	return &done{ctx: ctx}, nil
}

// wait is the pause between certificate polls and the only place the
// machine may terminate the process. waitforcert=0 and an exceeded
// maxwaitforcert deadline both print to stdout and exit 1; otherwise the
// machine sleeps and restarts from needCACerts so changed trust material
// is picked up.
type wait struct {
	m   *StateMachine
	ctx *ssl.Context
	key crypto.Signer
}

func (s *wait) next() (state, error) {
	m := s.m
	cfg := m.Config

	if cfg.WaitForCert == 0 {
		fmt.Printf("Couldn't fetch certificate from the CA server; you might still need to sign this agent's certificate (%s). Exiting now because the waitforcert setting is set to 0.\n", cfg.Certname)
		m.Lock.Unlock() //nolint:errcheck
		m.Exit(1)
		return nil, ssl.ErrWaitForCertTimeout
	}
	if !m.waitDeadline.IsZero() && !m.Now().Before(m.waitDeadline) {
		fmt.Printf("Couldn't fetch certificate from the CA server; you might still need to sign this agent's certificate (%s). Exiting now because the maxwaitforcert timeout has been exceeded.\n", cfg.Certname)
		m.Lock.Unlock() //nolint:errcheck
		m.Exit(1)
		return nil, ssl.ErrWaitForCertTimeout
	}

	slog.Info(fmt.Sprintf("Will try again in %d seconds.", int(cfg.WaitForCert.Seconds())))
	m.Sleep(cfg.WaitForCert)
	return &needCACerts{m: m}, nil
}

// done is terminal and carries the final context.
type done struct {
	ctx *ssl.Context
}

func (s *done) next() (state, error) {
	return s, nil
}
