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
	"encoding/asn1"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
)

// CSRAttributes is the parsed form of a csr_attributes YAML file: two
// top-level maps from dotted-decimal OID strings to string values.
//
//	custom_attributes:
//	  1.2.840.113549.1.9.7: "challenge phrase"
//	extension_requests:
//	  1.3.6.1.4.1.34380.1.1.1: "node-uuid"
type CSRAttributes struct {
	CustomAttributes  map[string]string `yaml:"custom_attributes"`
	ExtensionRequests map[string]string `yaml:"extension_requests"`
}

// LoadCSRAttributes reads and parses a csr_attributes file. An empty path
// yields empty attribute sets; a configured path that cannot be read or
// parsed is an error.
func LoadCSRAttributes(path string) (*CSRAttributes, error) {
	attrs := &CSRAttributes{}
	if path == "" {
		return attrs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading csr_attributes file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, attrs); err != nil {
		return nil, fmt.Errorf("parsing csr_attributes file %s: %w", path, err)
	}

	for oid := range attrs.CustomAttributes {
		if _, err := ParseOID(oid); err != nil {
			return nil, fmt.Errorf("csr_attributes file %s: custom_attributes: %w", path, err)
		}
	}
	for oid := range attrs.ExtensionRequests {
		if _, err := ParseOID(oid); err != nil {
			return nil, fmt.Errorf("csr_attributes file %s: extension_requests: %w", path, err)
		}
	}
	return attrs, nil
}

// ParseOID converts a dotted-decimal string to an ASN.1 object identifier.
func ParseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid OID %q", s)
	}
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid OID %q", s)
		}
		oid[i] = n
	}
	return oid, nil
}
