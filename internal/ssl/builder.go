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

package ssl

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"
	"time"
)

// NewRootContext validates that every CRL was issued by a certificate in
// cacerts and returns a Context carrying the trust material. crls may be
// empty (revocation disabled). Performs no I/O.
func NewRootContext(cacerts []*x509.Certificate, crls []*x509.RevocationList) (*Context, error) {
	if len(cacerts) == 0 {
		return nil, fmt.Errorf("%w: empty CA bundle", ErrMalformedCACert)
	}
	for _, crl := range crls {
		if _, err := crlIssuer(crl, cacerts); err != nil {
			return nil, err
		}
	}
	return &Context{CACerts: cacerts, CRLs: crls, VerifyPeer: true}, nil
}

// NewClientContext builds the fully-populated Context: the client cert must
// chain to cacerts with currently-valid signatures, no chain element may be
// revoked by a matching CRL, and the cert's public key must equal the
// private key's. Performs no I/O.
func NewClientContext(cacerts []*x509.Certificate, crls []*x509.RevocationList, key crypto.Signer, cert *x509.Certificate) (*Context, error) {
	root, err := NewRootContext(cacerts, crls)
	if err != nil {
		return nil, err
	}

	chain, err := verifyChain(cert, cacerts)
	if err != nil {
		return nil, err
	}
	if err := checkRevocation(chain, crls); err != nil {
		return nil, err
	}
	if !PublicKeysMatch(cert, key) {
		return nil, fmt.Errorf("%w: the certificate for %q does not match its private key",
			ErrKeyCertMismatch, cert.Subject.CommonName)
	}

	root.PrivateKey = key
	root.ClientCert = cert
	return root, nil
}

// verifyChain verifies cert against the CA bundle and returns the chain
// leaf-first. Self-signed bundle members act as roots, the rest as
// intermediates.
func verifyChain(cert *x509.Certificate, cacerts []*x509.Certificate) ([]*x509.Certificate, error) {
	roots := x509.NewCertPool()
	intermediates := x509.NewCertPool()
	for _, ca := range cacerts {
		if bytes.Equal(ca.RawSubject, ca.RawIssuer) {
			roots.AddCert(ca)
		} else {
			intermediates.AddCert(ca)
		}
	}

	chains, err := cert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   time.Now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("certificate %q failed chain verification: %w",
			cert.Subject.CommonName, err)
	}
	return chains[0], nil
}

// checkRevocation scans each chain element against the CRLs issued by its
// issuer. A serial match anywhere in the chain fails the whole context.
func checkRevocation(chain []*x509.Certificate, crls []*x509.RevocationList) error {
	for _, cert := range chain {
		for _, crl := range crls {
			if !bytes.Equal(crl.RawIssuer, cert.RawIssuer) {
				continue
			}
			for _, entry := range crl.RevokedCertificateEntries {
				if entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
					return fmt.Errorf("%w: certificate %q (serial %X) is revoked",
						ErrCertificateRevoked, cert.Subject.CommonName, cert.SerialNumber)
				}
			}
		}
	}
	return nil
}

// crlIssuer finds the bundle certificate that issued crl and checks the CRL
// signature against it.
func crlIssuer(crl *x509.RevocationList, cacerts []*x509.Certificate) (*x509.Certificate, error) {
	for _, ca := range cacerts {
		if !bytes.Equal(crl.RawIssuer, ca.RawSubject) {
			continue
		}
		if err := crl.CheckSignatureFrom(ca); err != nil {
			return nil, fmt.Errorf("%w: CRL signature check failed for issuer %q: %v",
				ErrMalformedCRL, ca.Subject.CommonName, err)
		}
		return ca, nil
	}
	return nil, fmt.Errorf("%w: CRL issued by %q, which is not in the CA bundle",
		ErrMalformedCRL, crl.Issuer.CommonName)
}
