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

// Package caclient speaks the /puppet-ca/v1 wire protocol from the client
// side. It carries no trust state of its own: every request takes the CA
// pool to verify the server against, or nil for the single unverified
// bootstrap fetch of the CA bundle itself.
package caclient

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds each individual request.
const DefaultTimeout = 30 * time.Second

// Client issues HTTP requests against a puppet-ca server. Methods return
// the status code and raw body; status-code policy belongs to the caller.
type Client struct {
	BaseURL string
	Timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
	}
}

// httpClient builds a client verifying the server against pool. A nil pool
// disables verification; that mode exists only for the first CA bundle
// download, when there is nothing to verify against yet.
func (c *Client) httpClient(pool *x509.CertPool) *http.Client {
	tlsCfg := &tls.Config{}
	if pool == nil {
		tlsCfg.InsecureSkipVerify = true //nolint:gosec
	} else {
		tlsCfg.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   c.Timeout,
	}
}

func (c *Client) do(method, path string, pool *x509.CertPool, header http.Header, body []byte) (int, []byte, error) {
	url := c.BaseURL + path
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	slog.Debug("CA request", "method", method, "url", url, "verify_peer", pool != nil)

	resp, err := c.httpClient(pool).Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response from %s %s: %w", method, url, err)
	}
	return resp.StatusCode, respBody, nil
}

// pemHeader asks for the PEM text bodies the CA serves.
func pemHeader() http.Header {
	header := http.Header{}
	header.Set("Accept", "text/plain")
	return header
}

// DownloadCACerts fetches the CA certificate bundle without peer
// verification.
func (c *Client) DownloadCACerts() (int, []byte, error) {
	return c.do("GET", "/puppet-ca/v1/certificate/ca", nil, pemHeader(), nil)
}

// DownloadCRLs fetches the CRL bundle, verified against pool. A non-zero
// ifModifiedSince is sent as an If-Modified-Since header so the server can
// answer 304.
func (c *Client) DownloadCRLs(pool *x509.CertPool, ifModifiedSince time.Time) (int, []byte, error) {
	header := pemHeader()
	if !ifModifiedSince.IsZero() {
		header.Set("If-Modified-Since", ifModifiedSince.UTC().Format(http.TimeFormat))
	}
	return c.do("GET", "/puppet-ca/v1/certificate_revocation_list/ca", pool, header, nil)
}

// SubmitCSR uploads a PEM certificate request for certname.
func (c *Client) SubmitCSR(pool *x509.CertPool, certname string, csrPEM []byte) (int, []byte, error) {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return c.do("PUT", "/puppet-ca/v1/certificate_request/"+certname, pool, header, csrPEM)
}

// DownloadCertificate fetches the signed certificate for certname.
func (c *Client) DownloadCertificate(pool *x509.CertPool, certname string) (int, []byte, error) {
	return c.do("GET", "/puppet-ca/v1/certificate/"+certname, pool, pemHeader(), nil)
}
