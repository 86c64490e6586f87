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

import "errors"

// Sentinel errors for every user-visible failure kind of the bootstrap.
// Callers classify with errors.Is; wrapped messages carry the detail
// (HTTP status, subject names, file paths).
var (
	// ErrAnotherInstanceRunning is returned when the bootstrap lock is held
	// by another live process.
	ErrAnotherInstanceRunning = errors.New("another instance is already running")

	// ErrCACertMissing is returned when the CA answers 404 for its own
	// certificate bundle.
	ErrCACertMissing = errors.New("CA certificate is missing from the server")

	// ErrCACertDownloadFailed covers every other failed CA bundle download.
	ErrCACertDownloadFailed = errors.New("could not download CA certificate")

	// ErrMalformedCACert is returned when a CA bundle (downloaded or on
	// disk) cannot be parsed as one or more PEM certificates.
	ErrMalformedCACert = errors.New("malformed CA certificate")

	// ErrCRLMissing is returned when the CA answers 404 for the CRL bundle.
	ErrCRLMissing = errors.New("CRL is missing from the server")

	// ErrCRLDownloadFailed covers every other failed initial CRL download.
	ErrCRLDownloadFailed = errors.New("could not download CRL")

	// ErrMalformedCRL is returned when a CRL bundle cannot be parsed, or a
	// CRL is not issued by any certificate in the trust chain.
	ErrMalformedCRL = errors.New("malformed CRL")

	// ErrUnsupportedCurve is returned for an unrecognized named_curve.
	ErrUnsupportedCurve = errors.New("unsupported elliptic curve")

	// ErrKeyLoadFailed is returned when an on-disk private key exists but
	// cannot be parsed. The key is never silently regenerated.
	ErrKeyLoadFailed = errors.New("could not load private key")

	// ErrKeyCertMismatch is returned when a certificate's public key does
	// not match the private key it is paired with.
	ErrKeyCertMismatch = errors.New("certificate does not match private key")

	// ErrCertificateRevoked is returned when a certificate in the client
	// chain appears in an applicable CRL.
	ErrCertificateRevoked = errors.New("certificate is revoked")

	// ErrCSRSubmitFailed is returned when the CA rejects a certificate
	// request submission.
	ErrCSRSubmitFailed = errors.New("could not submit certificate request")

	// ErrWaitForCertTimeout is returned when the machine gives up waiting
	// for the CA to sign (waitforcert=0 or maxwaitforcert exceeded).
	ErrWaitForCertTimeout = errors.New("timed out waiting for certificate")
)
