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
	"crypto/x509"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/crypto/ocsp"
)

// CheckOCSP queries the OCSP responder named in cert's Authority Information
// Access extension and returns the verified response. Responders are tried
// in order; the first one that answers wins. The puppet-ca server embeds its
// responder URL in every certificate it issues, so a bootstrapped node can
// always reach this path.
func CheckOCSP(httpClient *http.Client, cert, issuer *x509.Certificate) (*ocsp.Response, error) {
	if len(cert.OCSPServer) == 0 {
		return nil, fmt.Errorf("certificate %q carries no OCSP responder URL", cert.Subject.CommonName)
	}

	reqDER, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return nil, fmt.Errorf("creating OCSP request: %w", err)
	}

	var lastErr error
	for _, url := range cert.OCSPServer {
		resp, err := postOCSP(httpClient, url, reqDER)
		if err != nil {
			lastErr = err
			continue
		}
		parsed, err := ocsp.ParseResponseForCert(resp, cert, issuer)
		if err != nil {
			lastErr = fmt.Errorf("parsing OCSP response from %s: %w", url, err)
			continue
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("all OCSP responders failed: %w", lastErr)
}

func postOCSP(httpClient *http.Client, url string, reqDER []byte) ([]byte, error) {
	resp, err := httpClient.Post(url, "application/ocsp-request", bytes.NewReader(reqDER))
	if err != nil {
		return nil, fmt.Errorf("querying OCSP responder %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCSP responder %s answered HTTP %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
