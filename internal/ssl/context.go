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

// Package ssl holds the trust and identity material of a bootstrapped node
// and the validation rules that tie it together: PEM bundle codecs, key
// generation, CSR construction, and the context builder that verifies the
// key / certificate / chain / CRL relationships.
package ssl

import (
	"crypto"
	"crypto/x509"
)

// Context is an immutable snapshot of a node's trust and identity material.
// CACerts is ordered root-last; CRLs align with the issuing certificates in
// CACerts and is empty iff revocation checking is disabled. PrivateKey and
// ClientCert are nil until the bootstrap reaches the corresponding states.
type Context struct {
	CACerts    []*x509.Certificate
	CRLs       []*x509.RevocationList
	PrivateKey crypto.Signer
	ClientCert *x509.Certificate

	// VerifyPeer is false only while fetching the initial CA bundle, when
	// there is no trust material to verify the server against.
	VerifyPeer bool
}

// CertPool returns the CA certificates as a pool suitable for
// tls.Config.RootCAs. Returns nil when the context has no trust material
// (peer verification disabled).
func (c *Context) CertPool() *x509.CertPool {
	if c == nil || len(c.CACerts) == 0 {
		return nil
	}
	pool := x509.NewCertPool()
	for _, cert := range c.CACerts {
		pool.AddCert(cert)
	}
	return pool
}
