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
	"net"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tvaughan/puppet-ssl/internal/ssl"
	"github.com/tvaughan/puppet-ssl/internal/testutil"
)

var _ = Describe("Certificate requests", func() {
	Describe("ParseSubjectAltNames", func() {
		It("splits prefixed and bare entries and appends the certname", func() {
			alt, err := ssl.ParseSubjectAltNames("one,IP:192.168.0.1,DNS:two.com", "host")
			Expect(err).NotTo(HaveOccurred())
			Expect(alt.DNSNames).To(Equal([]string{"one", "two.com", "host"}))
			Expect(alt.IPAddresses).To(HaveLen(1))
			Expect(alt.IPAddresses[0].Equal(net.ParseIP("192.168.0.1"))).To(BeTrue())
		})

		It("handles an empty dns_alt_names", func() {
			alt, err := ssl.ParseSubjectAltNames("", "host")
			Expect(err).NotTo(HaveOccurred())
			Expect(alt.DNSNames).To(Equal([]string{"host"}))
			Expect(alt.IPAddresses).To(BeEmpty())
		})

		It("drops duplicates, first occurrence wins", func() {
			alt, err := ssl.ParseSubjectAltNames("host,DNS:host,IP:10.0.0.1,IP:10.0.0.1", "host")
			Expect(err).NotTo(HaveOccurred())
			Expect(alt.DNSNames).To(Equal([]string{"host"}))
			Expect(alt.IPAddresses).To(HaveLen(1))
		})

		It("rejects an invalid IP entry", func() {
			_, err := ssl.ParseSubjectAltNames("IP:not-an-ip", "host")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CreateRequest", func() {
		It("round-trips subject, SANs, and extension requests", func() {
			key, err := testutil.NewLeafKey()
			Expect(err).NotTo(HaveOccurred())

			alt, err := ssl.ParseSubjectAltNames("one,IP:192.168.0.1,DNS:two.com", "host")
			Expect(err).NotTo(HaveOccurred())

			attrs := &ssl.CSRAttributes{
				ExtensionRequests: map[string]string{
					"1.3.6.1.4.1.34380.1.1.1": "node-uuid",
				},
			}

			pemData, err := ssl.CreateRequest("host", key, alt, attrs)
			Expect(err).NotTo(HaveOccurred())

			csr, err := ssl.ParseRequest(pemData)
			Expect(err).NotTo(HaveOccurred())
			Expect(csr.Subject.CommonName).To(Equal("host"))
			Expect(csr.DNSNames).To(ConsistOf("one", "two.com", "host"))
			Expect(csr.IPAddresses).To(HaveLen(1))

			found := false
			for _, ext := range csr.Extensions {
				if ext.Id.String() == "1.3.6.1.4.1.34380.1.1.1" {
					found = true
				}
			}
			Expect(found).To(BeTrue(), "extension request not carried into the CSR")
		})

		It("signs with the private key", func() {
			key, err := testutil.NewLeafKey()
			Expect(err).NotTo(HaveOccurred())
			alt, err := ssl.ParseSubjectAltNames("", "host")
			Expect(err).NotTo(HaveOccurred())

			pemData, err := ssl.CreateRequest("host", key, alt, nil)
			Expect(err).NotTo(HaveOccurred())

			csr, err := ssl.ParseRequest(pemData)
			Expect(err).NotTo(HaveOccurred())
			Expect(csr.CheckSignature()).To(Succeed())
		})
	})

	Describe("ParseRequest", func() {
		It("rejects non-CSR PEM", func() {
			ca, err := testutil.NewTestCA("Puppet CA: csr-test")
			Expect(err).NotTo(HaveOccurred())
			_, err = ssl.ParseRequest(ca.CertPEM())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("LoadCSRAttributes", func() {
		var tmpDir string

		BeforeEach(func() {
			var err error
			tmpDir, err = os.MkdirTemp("", "puppet-ssl-csrattrs-test")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			os.RemoveAll(tmpDir)
		})

		It("returns empty attributes for an empty path", func() {
			attrs, err := ssl.LoadCSRAttributes("")
			Expect(err).NotTo(HaveOccurred())
			Expect(attrs.CustomAttributes).To(BeEmpty())
			Expect(attrs.ExtensionRequests).To(BeEmpty())
		})

		It("parses both attribute maps", func() {
			path := filepath.Join(tmpDir, "csr_attributes.yaml")
			content := "custom_attributes:\n" +
				"  1.2.840.113549.1.9.7: \"challenge phrase\"\n" +
				"extension_requests:\n" +
				"  1.3.6.1.4.1.34380.1.1.1: \"node-uuid\"\n"
			Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())

			attrs, err := ssl.LoadCSRAttributes(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(attrs.CustomAttributes).To(HaveKeyWithValue("1.2.840.113549.1.9.7", "challenge phrase"))
			Expect(attrs.ExtensionRequests).To(HaveKeyWithValue("1.3.6.1.4.1.34380.1.1.1", "node-uuid"))
		})

		It("fails for a configured path that does not exist", func() {
			_, err := ssl.LoadCSRAttributes(filepath.Join(tmpDir, "absent.yaml"))
			Expect(err).To(HaveOccurred())
		})

		It("fails for an invalid OID key", func() {
			path := filepath.Join(tmpDir, "csr_attributes.yaml")
			Expect(os.WriteFile(path, []byte("custom_attributes:\n  bogus: \"x\"\n"), 0644)).To(Succeed())
			_, err := ssl.LoadCSRAttributes(path)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseOID", func() {
		It("parses dotted-decimal strings", func() {
			oid, err := ssl.ParseOID("1.3.6.1.4.1.34380.1.1.1")
			Expect(err).NotTo(HaveOccurred())
			Expect(oid.String()).To(Equal("1.3.6.1.4.1.34380.1.1.1"))
		})

		It("rejects short and non-numeric strings", func() {
			for _, bad := range []string{"1", "a.b", "1.-2", ""} {
				_, err := ssl.ParseOID(bad)
				Expect(err).To(HaveOccurred(), "oid %q", bad)
			}
		})
	})
})
