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

// Package provider persists the node's SSL artifacts under a single ssldir
// using the standard agent layout:
//
//	<ssldir>/certs/ca.pem
//	<ssldir>/crl.pem
//	<ssldir>/certs/<certname>.pem
//	<ssldir>/private_keys/<certname>.pem
//	<ssldir>/certificate_requests/<certname>.pem
//	<ssldir>/ssl.lock
//
// Load methods return fs.ErrNotExist (wrapped) when the artifact is absent;
// callers distinguish "not yet provisioned" from real I/O failures with
// os.IsNotExist.
package provider

import (
	"os"
	"path/filepath"
	"time"
)

const (
	FilePermPrivate = 0640
	FilePermPublic  = 0644
	DirPerm         = 0750
	// Private keys live in a directory that is not world-readable.
	keyDirPerm = 0750
)

// CertProvider loads and saves PEM blobs. It never parses or validates
// content; callers validate before every save.
type CertProvider struct {
	ssldir string
}

func New(ssldir string) *CertProvider {
	return &CertProvider{ssldir: ssldir}
}

// Ssldir returns the base directory.
func (p *CertProvider) Ssldir() string {
	return p.ssldir
}

// EnsureDirs creates the ssldir tree.
func (p *CertProvider) EnsureDirs() error {
	dirs := []string{
		p.ssldir,
		filepath.Join(p.ssldir, "certs"),
		filepath.Join(p.ssldir, "certificate_requests"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, DirPerm); err != nil {
			return err
		}
	}
	return os.MkdirAll(filepath.Join(p.ssldir, "private_keys"), keyDirPerm)
}

func (p *CertProvider) CACertPath() string {
	return filepath.Join(p.ssldir, "certs", "ca.pem")
}

func (p *CertProvider) CRLPath() string {
	return filepath.Join(p.ssldir, "crl.pem")
}

func (p *CertProvider) PrivateKeyPath(name string) string {
	return filepath.Join(p.ssldir, "private_keys", name+".pem")
}

func (p *CertProvider) ClientCertPath(name string) string {
	return filepath.Join(p.ssldir, "certs", name+".pem")
}

func (p *CertProvider) RequestPath(name string) string {
	return filepath.Join(p.ssldir, "certificate_requests", name+".pem")
}

func (p *CertProvider) LockPath() string {
	return filepath.Join(p.ssldir, "ssl.lock")
}

func (p *CertProvider) LoadCACerts() ([]byte, error) {
	return os.ReadFile(p.CACertPath())
}

func (p *CertProvider) SaveCACerts(pemData []byte) error {
	return os.WriteFile(p.CACertPath(), pemData, FilePermPublic)
}

func (p *CertProvider) LoadCRLs() ([]byte, error) {
	return os.ReadFile(p.CRLPath())
}

// SaveCRLs writes the CRL bundle. The file mtime doubles as the CRL
// last-update timestamp consulted by the refresh logic.
func (p *CertProvider) SaveCRLs(pemData []byte) error {
	return os.WriteFile(p.CRLPath(), pemData, FilePermPublic)
}

// CRLLastUpdate returns the mtime of the CRL bundle, or the zero time when
// no CRL file exists.
func (p *CertProvider) CRLLastUpdate() (time.Time, error) {
	info, err := os.Stat(p.CRLPath())
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (p *CertProvider) LoadPrivateKey(name string) ([]byte, error) {
	return os.ReadFile(p.PrivateKeyPath(name))
}

func (p *CertProvider) SavePrivateKey(name string, pemData []byte) error {
	return os.WriteFile(p.PrivateKeyPath(name), pemData, FilePermPrivate)
}

func (p *CertProvider) LoadClientCert(name string) ([]byte, error) {
	return os.ReadFile(p.ClientCertPath(name))
}

func (p *CertProvider) SaveClientCert(name string, pemData []byte) error {
	return os.WriteFile(p.ClientCertPath(name), pemData, FilePermPublic)
}

func (p *CertProvider) LoadRequest(name string) ([]byte, error) {
	return os.ReadFile(p.RequestPath(name))
}

func (p *CertProvider) SaveRequest(name string, pemData []byte) error {
	return os.WriteFile(p.RequestPath(name), pemData, FilePermPublic)
}

// Clean removes the node's key, certificate, and saved CSR. The CA bundle
// and CRL are left in place unless all is set.
func (p *CertProvider) Clean(name string, all bool) error {
	paths := []string{
		p.PrivateKeyPath(name),
		p.ClientCertPath(name),
		p.RequestPath(name),
	}
	if all {
		paths = append(paths, p.CACertPath(), p.CRLPath())
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
