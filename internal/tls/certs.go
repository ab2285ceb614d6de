// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package tls provides certificate generation and loading for serving the
// auth API over HTTPS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names inside a certs directory.
const (
	CAFile         = "root-ca.crt"
	CAKeyFile      = "root-ca.key"
	ServerFile     = "server.crt"
	ServerKeyFile  = "server.key"
	caValidity     = 10 * 365 * 24 * time.Hour
	serverValidity = 365 * 24 * time.Hour
)

// RenewalWindow is how long before expiry a generated server certificate is replaced.
const RenewalWindow = 30 * 24 * time.Hour

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateCA creates a new local root CA.
func GenerateCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("operation", "generate CA key").Wrap(err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"warden"},
			CommonName:   "warden local CA",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(caValidity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("operation", "create CA certificate").Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("operation", "parse CA certificate").Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert creates a server certificate signed by ca for hosts.
// Each host is added as an IP SAN if it parses as an IP, otherwise as a DNS SAN.
// localhost, 127.0.0.1 and ::1 are always included.
func GenerateServerCert(ca *CA, hosts []string) (*ServerCert, error) {
	if ca == nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").Errorf("CA is required")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("operation", "generate server key").Wrap(err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	dnsNames, ips := subjectAltNames(hosts)
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"warden"},
			CommonName:   dnsNames[0],
		},
		NotBefore:   now.Add(-time.Minute),
		NotAfter:    now.Add(serverValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("operation", "create server certificate").Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("operation", "parse server certificate").Wrap(err)
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

func subjectAltNames(hosts []string) ([]string, []net.IP) {
	dnsNames := []string{"localhost"}
	ips := []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
	seen := map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true}
	for _, h := range hosts {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else {
			dnsNames = append(dnsNames, h)
		}
	}
	return dnsNames, ips
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("operation", "generate serial").Wrap(err)
	}
	return serial, nil
}

// SaveCertificates writes the CA and, if non-nil, the server certificate
// into certsDir. Keys are written with 0600 permissions.
func SaveCertificates(certsDir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(certsDir, 0o700); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", certsDir).Wrap(err)
	}

	if err := saveCert(filepath.Join(certsDir, CAFile), ca.Certificate); err != nil {
		return err
	}
	if err := saveKey(filepath.Join(certsDir, CAKeyFile), ca.PrivateKey); err != nil {
		return err
	}
	if server == nil {
		return nil
	}
	if err := saveCert(filepath.Join(certsDir, ServerFile), server.Certificate); err != nil {
		return err
	}
	return saveKey(filepath.Join(certsDir, ServerKeyFile), server.PrivateKey)
}

// LoadCA loads the CA from certsDir.
func LoadCA(certsDir string) (*CA, error) {
	cert, err := loadCert(filepath.Join(certsDir, CAFile))
	if err != nil {
		return nil, err
	}

	keyPath := filepath.Clean(filepath.Join(certsDir, CAKeyFile))
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", keyPath).Errorf("no PEM block in CA key")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

func loadCert(path string) (*x509.Certificate, error) {
	path = filepath.Clean(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Errorf("no PEM block in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return cert, nil
}

// NeedsRenewal reports whether cert is expired or expires within RenewalWindow of now.
func NeedsRenewal(cert *x509.Certificate, now time.Time) bool {
	return cert == nil || now.Add(RenewalWindow).After(cert.NotAfter) || now.Before(cert.NotBefore)
}

// EnsureServerCert returns the paths of a server certificate and key in
// certsDir, generating them (and the CA, if missing) when absent or due for
// renewal. An existing CA is reused so clients that trust it keep working.
func EnsureServerCert(certsDir string, hosts []string) (certFile, keyFile string, err error) {
	certFile = filepath.Join(certsDir, ServerFile)
	keyFile = filepath.Join(certsDir, ServerKeyFile)

	if cert, err := loadCert(certFile); err == nil && !NeedsRenewal(cert, time.Now()) {
		if _, err := os.Stat(keyFile); err == nil {
			return certFile, keyFile, nil
		}
	}

	ca, err := LoadCA(certsDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", "", err
		}
		if ca, err = GenerateCA(); err != nil {
			return "", "", err
		}
	}

	server, err := GenerateServerCert(ca, hosts)
	if err != nil {
		return "", "", err
	}
	if err := SaveCertificates(certsDir, ca, server); err != nil {
		return "", "", err
	}
	return certFile, keyFile, nil
}

// LoadServerConfig loads a certificate and key into a server TLS config
// that requires TLS 1.2 or later.
func LoadServerConfig(certFile, keyFile string) (*stdtls.Config, error) {
	pair, err := stdtls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").
			With("cert_file", certFile).
			With("key_file", keyFile).
			Wrap(err)
	}
	return &stdtls.Config{
		Certificates: []stdtls.Certificate{pair},
		MinVersion:   stdtls.VersionTLS12,
	}, nil
}

func saveCert(path string, cert *x509.Certificate) error {
	return writePEM(path, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func saveKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return writePEM(path, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close() //nolint:errcheck // encode error takes precedence
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
