// Copyright 2023 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package security builds TLS configurations from file-based options.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/pkg/errors"
)

// TLSOption holds the TLS settings used when connecting to the
// document service. The zero value leaves TLS disabled.
type TLSOption struct {
	// CertFile is the path to the client certificate, presented when the
	// service requires mutual TLS.
	CertFile string
	// KeyFile is the path to the client private key.
	KeyFile string
	// MinVersion is the minimum TLS version accepted.
	MinVersion uint16
	// TrustedCaFile is the path to the CA bundle used to verify the service
	// certificate, in place of the system roots.
	TrustedCaFile string
	// InsecureSkipVerify controls whether the certificate chain and host name
	// of the service are verified.
	InsecureSkipVerify bool
	// ServerName is the expected server name (for SNI) used when connecting.
	ServerName string
}

var ErrIncompleteKeyPair = errors.New("client certificate requires both cert and key files")

func (t *TLSOption) IsConfigured() bool {
	return t.CertFile != "" || t.KeyFile != "" || t.TrustedCaFile != "" ||
		t.ServerName != "" || t.InsecureSkipVerify
}

// MakeClientTLSConf builds the TLS configuration for the connection to the
// document service.
func (t *TLSOption) MakeClientTLSConf() (*tls.Config, error) {
	var minVersion uint16 = tls.VersionTLS12
	if t.MinVersion != 0 {
		minVersion = t.MinVersion
	}

	tlsConf := &tls.Config{
		MinVersion:         minVersion,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	if t.CertFile != "" || t.KeyFile != "" {
		if t.CertFile == "" || t.KeyFile == "" {
			return nil, ErrIncompleteKeyPair
		}
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}

	if t.TrustedCaFile != "" {
		certPool, err := t.trustedCertPool()
		if err != nil {
			return nil, err
		}
		tlsConf.RootCAs = certPool
	}
	return tlsConf, nil
}

func (t *TLSOption) trustedCertPool() (*x509.CertPool, error) {
	bPem, err := os.ReadFile(t.TrustedCaFile)
	if err != nil {
		return nil, err
	}
	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(bPem) {
		return nil, errors.Errorf("no certificates found in %s", t.TrustedCaFile)
	}
	return certPool, nil
}
