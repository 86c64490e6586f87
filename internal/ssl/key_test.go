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

package ssl_test

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tvaughan/puppet-ssl/internal/ssl"
	"github.com/tvaughan/puppet-ssl/internal/testutil"
)

var _ = Describe("Private keys", func() {
	Describe("GenerateRSAKey", func() {
		It("honors the requested modulus size", func() {
			key, err := ssl.GenerateRSAKey(2048)
			Expect(err).NotTo(HaveOccurred())
			rsaKey, ok := key.(*rsa.PrivateKey)
			Expect(ok).To(BeTrue())
			Expect(rsaKey.N.BitLen()).To(Equal(2048))
		})
	})

	Describe("GenerateECKey", func() {
		It("generates keys on every supported curve", func() {
			for _, curve := range []string{"prime256v1", "secp256r1", "secp384r1", "secp521r1"} {
				key, err := ssl.GenerateECKey(curve)
				Expect(err).NotTo(HaveOccurred(), "curve %s", curve)
				_, ok := key.(*ecdsa.PrivateKey)
				Expect(ok).To(BeTrue())
			}
		})

		It("rejects an unknown curve", func() {
			_, err := ssl.GenerateECKey("brainpoolP999t1")
			Expect(err).To(MatchError(ssl.ErrUnsupportedCurve))
		})
	})

	Describe("PEM round-trips", func() {
		It("encodes and reparses an RSA key as PKCS1", func() {
			key, err := testutil.NewLeafKey()
			Expect(err).NotTo(HaveOccurred())

			pemData, err := ssl.EncodePrivateKeyPEM(key)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(pemData)).To(ContainSubstring("BEGIN RSA PRIVATE KEY"))

			parsed, err := ssl.ParsePrivateKeyPEM(pemData)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed.Public()).To(Equal(key.Public()))
		})

		It("encodes and reparses an EC key as SEC1", func() {
			key, err := ssl.GenerateECKey("prime256v1")
			Expect(err).NotTo(HaveOccurred())

			pemData, err := ssl.EncodePrivateKeyPEM(key)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(pemData)).To(ContainSubstring("BEGIN EC PRIVATE KEY"))

			parsed, err := ssl.ParsePrivateKeyPEM(pemData)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed.Public()).To(Equal(key.Public()))
		})

		It("parses a PKCS8 key", func() {
			key, err := testutil.NewLeafKey()
			Expect(err).NotTo(HaveOccurred())
			der, err := x509.MarshalPKCS8PrivateKey(key)
			Expect(err).NotTo(HaveOccurred())
			pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

			parsed, err := ssl.ParsePrivateKeyPEM(pemData)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed.Public()).To(Equal(key.Public()))
		})

		It("rejects garbage", func() {
			_, err := ssl.ParsePrivateKeyPEM([]byte("not a key"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("PublicKeysMatch", func() {
		It("reports matching and mismatched pairs", func() {
			ca, err := testutil.NewTestCA("Puppet CA: key-test")
			Expect(err).NotTo(HaveOccurred())
			key, err := testutil.NewLeafKey()
			Expect(err).NotTo(HaveOccurred())
			otherKey, err := testutil.NewLeafKey()
			Expect(err).NotTo(HaveOccurred())

			cert, err := ca.Sign("node1.example.com", &key.PublicKey)
			Expect(err).NotTo(HaveOccurred())

			Expect(ssl.PublicKeysMatch(cert, key)).To(BeTrue())
			Expect(ssl.PublicKeysMatch(cert, otherKey)).To(BeFalse())
		})
	})
})
