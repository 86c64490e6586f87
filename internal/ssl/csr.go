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
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"net"
	"strings"
)

// AltNames is the parsed subjectAltName set for a CSR.
type AltNames struct {
	DNSNames    []string
	IPAddresses []net.IP
}

// ParseSubjectAltNames splits a comma-separated dns_alt_names value into DNS
// and IP entries. Entries may carry a "DNS:" or "IP:" prefix; bare entries
// default to DNS. The certname is always appended as a DNS entry. Duplicates
// are dropped, first occurrence wins.
func ParseSubjectAltNames(dnsAltNames, certname string) (AltNames, error) {
	var alt AltNames
	seenDNS := map[string]bool{}
	seenIP := map[string]bool{}

	addDNS := func(name string) {
		if !seenDNS[name] {
			seenDNS[name] = true
			alt.DNSNames = append(alt.DNSNames, name)
		}
	}

	for _, entry := range strings.Split(dnsAltNames, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		switch {
		case strings.HasPrefix(entry, "IP:"):
			raw := strings.TrimPrefix(entry, "IP:")
			ip := net.ParseIP(raw)
			if ip == nil {
				return AltNames{}, fmt.Errorf("invalid IP address %q in dns_alt_names", raw)
			}
			if !seenIP[ip.String()] {
				seenIP[ip.String()] = true
				alt.IPAddresses = append(alt.IPAddresses, ip)
			}
		case strings.HasPrefix(entry, "DNS:"):
			addDNS(strings.TrimPrefix(entry, "DNS:"))
		default:
			addDNS(entry)
		}
	}

	addDNS(certname)
	return alt, nil
}

// CreateRequest builds, signs, and PEM-encodes a PKCS#10 certificate request
// with CN=certname, the given subjectAltName set, and the custom attributes
// and extension requests from attrs. Extension request values are encoded as
// UTF8String.
func CreateRequest(certname string, key crypto.Signer, alt AltNames, attrs *CSRAttributes) ([]byte, error) {
	if attrs == nil {
		attrs = &CSRAttributes{}
	}

	template := &x509.CertificateRequest{
		Subject:     pkix.Name{CommonName: certname},
		DNSNames:    alt.DNSNames,
		IPAddresses: alt.IPAddresses,
	}

	for oidStr, value := range attrs.ExtensionRequests {
		oid, err := ParseOID(oidStr)
		if err != nil {
			return nil, err
		}
		der, err := asn1.MarshalWithParams(value, "utf8")
		if err != nil {
			return nil, fmt.Errorf("encoding extension request %s: %w", oidStr, err)
		}
		template.ExtraExtensions = append(template.ExtraExtensions, pkix.Extension{
			Id:    oid,
			Value: der,
		})
	}

	for oidStr, value := range attrs.CustomAttributes {
		oid, err := ParseOID(oidStr)
		if err != nil {
			return nil, err
		}
		template.Attributes = append(template.Attributes, pkix.AttributeTypeAndValueSET{
			Type: oid,
			Value: [][]pkix.AttributeTypeAndValue{{
				{Type: oid, Value: value},
			}},
		})
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate request for %s: %w", certname, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}

// ParseRequest parses a PEM certificate request and checks its signature.
func ParseRequest(data []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("no CERTIFICATE REQUEST block found")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate request: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("certificate request signature check failed: %w", err)
	}
	return csr, nil
}
