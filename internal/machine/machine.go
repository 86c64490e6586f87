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

// Package machine drives a node from no local credentials to a validated
// private key, signed client certificate, and verified trust material. The
// progression is a fixed sequence of states; each state performs its I/O,
// validates what it produced, and hands the enriched ssl.Context to the
// next state.
package machine

import (
	"fmt"
	"os"
	"time"

	"github.com/tvaughan/puppet-ssl/internal/caclient"
	"github.com/tvaughan/puppet-ssl/internal/provider"
	"github.com/tvaughan/puppet-ssl/internal/ssl"
)

// RevocationChain enables CRL download and chain-wide revocation checking;
// RevocationOff skips CRL handling entirely.
const (
	RevocationChain = "chain"
	RevocationOff   = "off"
)

// Config holds the settings the states read. It is never mutated during a
// run.
type Config struct {
	// Certname is the node identity: CSR subject CN and CA URL path element.
	Certname string

	// KeyType selects "rsa" or "ec" for a newly generated key.
	KeyType string

	// KeyLength is the RSA modulus size; 0 selects ssl.DefaultRSABits.
	KeyLength int

	// NamedCurve is the EC curve for KeyType "ec".
	NamedCurve string

	// DNSAltNames is the comma-separated subjectAltName list. Certname is
	// always added as a DNS entry on top of these.
	DNSAltNames string

	// CSRAttributesPath points at the csr_attributes YAML file; empty means
	// no custom attributes or extension requests.
	CSRAttributesPath string

	// CertificateRevocation is RevocationChain or RevocationOff.
	CertificateRevocation string

	// CRLRefreshInterval is how old the local CRL may grow before a
	// conditional re-fetch is attempted.
	CRLRefreshInterval time.Duration

	// WaitForCert is the pause between certificate poll attempts. Zero
	// means give up immediately when the certificate is not signed yet.
	WaitForCert time.Duration

	// MaxWaitForCert caps the total time spent polling. Zero means wait
	// forever.
	MaxWaitForCert time.Duration
}

// StateMachine owns the run: lock scope, wait deadline, and the transition
// loop. Exit, Sleep, and Now are process seams; tests replace them.
type StateMachine struct {
	Provider *provider.CertProvider
	Client   *caclient.Client
	Config   Config
	Lock     *Lockfile

	// Exit terminates the process; only the wait state calls it.
	Exit func(int)
	// Sleep pauses between certificate polls.
	Sleep func(time.Duration)
	// Now supplies the clock for CRL staleness and the wait deadline.
	Now func() time.Time

	waitDeadline time.Time
}

// New builds a StateMachine with the real process seams. The lock file
// lives inside the provider's ssldir.
func New(p *provider.CertProvider, c *caclient.Client, cfg Config) *StateMachine {
	return &StateMachine{
		Provider: p,
		Client:   c,
		Config:   cfg,
		Lock:     &Lockfile{Path: p.LockPath()},
		Exit:     os.Exit,
		Sleep:    time.Sleep,
		Now:      time.Now,
	}
}

// EnsureCACertificates runs the machine until trust material is on disk and
// validated: a context holding the CA bundle and, unless revocation is off,
// the CRLs. No key is generated and no CSR is submitted.
func (m *StateMachine) EnsureCACertificates() (*ssl.Context, error) {
	return m.run(true)
}

// EnsureClientCertificate runs the machine to completion and returns the
// fully-populated context: trust material, private key, and a signed,
// matching, unrevoked client certificate.
func (m *StateMachine) EnsureClientCertificate() (*ssl.Context, error) {
	return m.run(false)
}

func (m *StateMachine) run(caOnly bool) (*ssl.Context, error) {
	ok, err := m.Lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", m.Lock.Path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: lock file %s is held by another process",
			ssl.ErrAnotherInstanceRunning, m.Lock.Path)
	}
	defer m.Lock.Unlock() //nolint:errcheck

	if err := m.Provider.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating ssldir %s: %w", m.Provider.Ssldir(), err)
	}

	if m.Config.MaxWaitForCert > 0 {
		m.waitDeadline = m.Now().Add(m.Config.MaxWaitForCert)
	} else {
		m.waitDeadline = time.Time{}
	}

	var st state = &needCACerts{m: m}
	for {
		next, err := st.next()
		if err != nil {
			return nil, err
		}
		switch s := next.(type) {
		case *needKey:
			if caOnly {
				return s.ctx, nil
			}
		case *done:
			return s.ctx, nil
		}
		st = next
	}
}
