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

package provider_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tvaughan/puppet-ssl/internal/provider"
)

var _ = Describe("CertProvider", func() {
	var (
		tmpDir string
		p      *provider.CertProvider
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "puppet-ssl-provider-test")
		Expect(err).NotTo(HaveOccurred())
		p = provider.New(tmpDir)
		Expect(p.EnsureDirs()).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("Path helpers", func() {
		It("returns paths rooted in the ssldir", func() {
			Expect(p.Ssldir()).To(Equal(tmpDir))
			Expect(p.CACertPath()).To(Equal(filepath.Join(tmpDir, "certs", "ca.pem")))
			Expect(p.CRLPath()).To(Equal(filepath.Join(tmpDir, "crl.pem")))
			Expect(p.PrivateKeyPath("node1")).To(Equal(filepath.Join(tmpDir, "private_keys", "node1.pem")))
			Expect(p.ClientCertPath("node1")).To(Equal(filepath.Join(tmpDir, "certs", "node1.pem")))
			Expect(p.RequestPath("node1")).To(Equal(filepath.Join(tmpDir, "certificate_requests", "node1.pem")))
			Expect(p.LockPath()).To(Equal(filepath.Join(tmpDir, "ssl.lock")))
		})
	})

	Describe("EnsureDirs", func() {
		It("creates the ssldir tree", func() {
			for _, sub := range []string{"certs", "private_keys", "certificate_requests"} {
				info, err := os.Stat(filepath.Join(tmpDir, sub))
				Expect(err).NotTo(HaveOccurred(), "missing subdirectory: %s", sub)
				Expect(info.IsDir()).To(BeTrue())
			}
		})

		It("is idempotent", func() {
			Expect(p.EnsureDirs()).To(Succeed())
		})
	})

	Describe("Load and save round-trips", func() {
		It("persists the CA bundle", func() {
			Expect(p.SaveCACerts([]byte("ca-pem"))).To(Succeed())
			data, err := p.LoadCACerts()
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("ca-pem")))
		})

		It("persists the private key with restrictive permissions", func() {
			Expect(p.SavePrivateKey("node1", []byte("key-pem"))).To(Succeed())
			info, err := os.Stat(p.PrivateKeyPath("node1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0640)))
		})

		It("persists the client cert and saved CSR", func() {
			Expect(p.SaveClientCert("node1", []byte("cert-pem"))).To(Succeed())
			Expect(p.SaveRequest("node1", []byte("csr-pem"))).To(Succeed())

			cert, err := p.LoadClientCert("node1")
			Expect(err).NotTo(HaveOccurred())
			Expect(cert).To(Equal([]byte("cert-pem")))

			csr, err := p.LoadRequest("node1")
			Expect(err).NotTo(HaveOccurred())
			Expect(csr).To(Equal([]byte("csr-pem")))
		})

		It("reports absence with fs.ErrNotExist", func() {
			_, err := p.LoadCACerts()
			Expect(os.IsNotExist(err)).To(BeTrue())
			_, err = p.LoadPrivateKey("node1")
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("CRLLastUpdate", func() {
		It("is zero when no CRL exists", func() {
			ts, err := p.CRLLastUpdate()
			Expect(err).NotTo(HaveOccurred())
			Expect(ts.IsZero()).To(BeTrue())
		})

		It("tracks the CRL file mtime", func() {
			Expect(p.SaveCRLs([]byte("crl-pem"))).To(Succeed())

			old := time.Now().Add(-48 * time.Hour)
			Expect(os.Chtimes(p.CRLPath(), old, old)).To(Succeed())

			ts, err := p.CRLLastUpdate()
			Expect(err).NotTo(HaveOccurred())
			Expect(ts).To(BeTemporally("~", old, time.Second))
		})
	})

	Describe("Clean", func() {
		BeforeEach(func() {
			Expect(p.SaveCACerts([]byte("ca"))).To(Succeed())
			Expect(p.SaveCRLs([]byte("crl"))).To(Succeed())
			Expect(p.SavePrivateKey("node1", []byte("key"))).To(Succeed())
			Expect(p.SaveClientCert("node1", []byte("cert"))).To(Succeed())
			Expect(p.SaveRequest("node1", []byte("csr"))).To(Succeed())
		})

		It("removes the node credentials but keeps the trust material", func() {
			Expect(p.Clean("node1", false)).To(Succeed())

			_, err := p.LoadPrivateKey("node1")
			Expect(os.IsNotExist(err)).To(BeTrue())
			_, err = p.LoadClientCert("node1")
			Expect(os.IsNotExist(err)).To(BeTrue())
			_, err = p.LoadRequest("node1")
			Expect(os.IsNotExist(err)).To(BeTrue())

			_, err = p.LoadCACerts()
			Expect(err).NotTo(HaveOccurred())
			_, err = p.LoadCRLs()
			Expect(err).NotTo(HaveOccurred())
		})

		It("removes everything with all set", func() {
			Expect(p.Clean("node1", true)).To(Succeed())
			_, err := p.LoadCACerts()
			Expect(os.IsNotExist(err)).To(BeTrue())
			_, err = p.LoadCRLs()
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("is a no-op on an empty ssldir", func() {
			Expect(p.Clean("node1", true)).To(Succeed())
			Expect(p.Clean("node1", true)).To(Succeed())
		})
	})
})
