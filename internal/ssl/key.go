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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// DefaultRSABits is the modulus size used when keylength is not configured.
const DefaultRSABits = 4096

// namedCurves maps OpenSSL-style curve names to their Go implementations.
// prime256v1 is the OpenSSL alias for secp256r1.
var namedCurves = map[string]elliptic.Curve{
	"prime256v1": elliptic.P256(),
	"secp256r1":  elliptic.P256(),
	"secp384r1":  elliptic.P384(),
	"secp521r1":  elliptic.P521(),
}

// GenerateRSAKey generates an RSA private key. bits <= 0 selects
// DefaultRSABits.
func GenerateRSAKey(bits int) (crypto.Signer, error) {
	if bits <= 0 {
		bits = DefaultRSABits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}
	return key, nil
}

// GenerateECKey generates an ECDSA private key on the named curve.
func GenerateECKey(curveName string) (crypto.Signer, error) {
	curve, ok := namedCurves[curveName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurve, curveName)
	}
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating EC key: %w", err)
	}
	return key, nil
}

// EncodePrivateKeyPEM renders key as PEM: PKCS1 for RSA ("RSA PRIVATE KEY",
// the Puppet on-disk format) and SEC1 for EC ("EC PRIVATE KEY").
func EncodePrivateKeyPEM(key crypto.Signer) ([]byte, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(k),
		}), nil
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			return nil, fmt.Errorf("marshaling EC key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}

// ParsePrivateKeyPEM parses a PEM private key. Accepts PKCS1
// ("BEGIN RSA PRIVATE KEY", Go/Puppet-generated), SEC1 EC
// ("BEGIN EC PRIVATE KEY"), and PKCS8 ("BEGIN PRIVATE KEY",
// openssl-3.x default) formats.
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	if k1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k1, nil
	}
	if kec, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return kec, nil
	}
	k8, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not a PKCS1, SEC1, or PKCS8 private key: %w", err)
	}
	signer, ok := k8.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported PKCS8 key type %T", k8)
	}
	return signer, nil
}

// PublicKeysMatch reports whether the certificate's subject public key
// equals the private key's public component.
func PublicKeysMatch(cert *x509.Certificate, key crypto.Signer) bool {
	pub, ok := cert.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}
	return pub.Equal(key.Public())
}
