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
	"encoding/pem"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tvaughan/puppet-ssl/internal/ssl"
	"github.com/tvaughan/puppet-ssl/internal/testutil"
)

var _ = Describe("PEM bundles", func() {
	var ca, ca2 *testutil.TestCA

	BeforeEach(func() {
		var err error
		ca, err = testutil.NewTestCA("Puppet CA: pem-test")
		Expect(err).NotTo(HaveOccurred())
		ca2, err = testutil.NewTestCA("Puppet CA: pem-test-2")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("ParseCertBundle", func() {
		It("parses concatenated certificates in order", func() {
			bundle := append(ca.CertPEM(), ca2.CertPEM()...)
			certs, err := ssl.ParseCertBundle(bundle)
			Expect(err).NotTo(HaveOccurred())
			Expect(certs).To(HaveLen(2))
			Expect(certs[0].Subject.CommonName).To(Equal("Puppet CA: pem-test"))
			Expect(certs[1].Subject.CommonName).To(Equal("Puppet CA: pem-test-2"))
		})

		It("fails the whole bundle when one block is malformed", func() {
			bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
			bundle := append(ca.CertPEM(), bad...)
			_, err := ssl.ParseCertBundle(bundle)
			Expect(err).To(HaveOccurred())
		})

		It("rejects foreign block types", func() {
			crlPEM, err := ca.CRLPEM()
			Expect(err).NotTo(HaveOccurred())
			_, err = ssl.ParseCertBundle(crlPEM)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an empty input", func() {
			_, err := ssl.ParseCertBundle(nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseCRLBundle", func() {
		It("parses a CRL bundle", func() {
			crlPEM, err := ca.CRLPEM()
			Expect(err).NotTo(HaveOccurred())
			crls, err := ssl.ParseCRLBundle(crlPEM)
			Expect(err).NotTo(HaveOccurred())
			Expect(crls).To(HaveLen(1))
		})

		It("rejects certificate blocks", func() {
			_, err := ssl.ParseCRLBundle(ca.CertPEM())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseCertificate", func() {
		It("accepts exactly one certificate", func() {
			cert, err := ssl.ParseCertificate(ca.CertPEM())
			Expect(err).NotTo(HaveOccurred())
			Expect(cert.Subject.CommonName).To(Equal("Puppet CA: pem-test"))
		})

		It("rejects a bundle of two", func() {
			bundle := append(ca.CertPEM(), ca2.CertPEM()...)
			_, err := ssl.ParseCertificate(bundle)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Encode round-trips", func() {
		It("re-encodes a certificate bundle byte-identically", func() {
			bundle := append(ca.CertPEM(), ca2.CertPEM()...)
			certs, err := ssl.ParseCertBundle(bundle)
			Expect(err).NotTo(HaveOccurred())
			Expect(ssl.EncodeCertBundle(certs)).To(Equal(bundle))
		})

		It("re-encodes a CRL bundle byte-identically", func() {
			crlPEM, err := ca.CRLPEM()
			Expect(err).NotTo(HaveOccurred())
			crls, err := ssl.ParseCRLBundle(crlPEM)
			Expect(err).NotTo(HaveOccurred())
			Expect(ssl.EncodeCRLBundle(crls)).To(Equal(crlPEM))
		})
	})
})
