// Package identity reads the RHSM consumer identity certificate bundle.
// The consumer certificate is owned by subscription-manager; this package
// only ever reads it.
package identity

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	certFilename   = "cert.pem"
	keyFilename    = "key.pem"
	bundleFilename = "bundle.pem"
)

// ConsumerIdentity holds the parsed consumer certificate along with the
// paths the rest of the agent needs to authenticate as this consumer.
type ConsumerIdentity struct {
	dir     string
	cert    *x509.Certificate
	certPEM []byte
	keyPEM  []byte
}

// Read loads and parses the consumer certificate from dir. The consumer ID
// is the subject common name of the identity certificate.
func Read(dir string) (*ConsumerIdentity, error) {
	certPEM, err := os.ReadFile(filepath.Join(dir, certFilename))
	if err != nil {
		return nil, errors.Wrap(err, "reading consumer certificate")
	}

	keyPEM, err := os.ReadFile(filepath.Join(dir, keyFilename))
	if err != nil {
		return nil, errors.Wrap(err, "reading consumer key")
	}

	cert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, err
	}

	return &ConsumerIdentity{
		dir:     dir,
		cert:    cert,
		certPEM: certPEM,
		keyPEM:  keyPEM,
	}, nil
}

func parseCertificate(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("no PEM data in consumer certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing consumer certificate")
	}

	return cert, nil
}

// ConsumerID returns the unique consumer ID assigned by the entitlement
// server at registration time.
func (c *ConsumerIdentity) ConsumerID() string {
	return c.cert.Subject.CommonName
}

// CertPath returns the path to the consumer certificate.
func (c *ConsumerIdentity) CertPath() string {
	return filepath.Join(c.dir, certFilename)
}

// KeyPath returns the path to the consumer private key.
func (c *ConsumerIdentity) KeyPath() string {
	return filepath.Join(c.dir, keyFilename)
}

// Valid reports whether the certificate is currently within its validity
// window.
func (c *ConsumerIdentity) Valid() bool {
	now := time.Now()
	return now.After(c.cert.NotBefore) && now.Before(c.cert.NotAfter)
}

// WriteBundle concatenates the consumer key and certificate into a single
// bundle file next to the certificate, for use as a TLS client identity by
// the message broker connection. It returns the bundle path.
func (c *ConsumerIdentity) WriteBundle() (string, error) {
	path := filepath.Join(c.dir, bundleFilename)

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", errors.Wrap(err, "creating bundle")
	}
	defer fh.Close()

	if _, err := fh.Write(c.keyPEM); err != nil {
		return "", errors.Wrap(err, "writing key to bundle")
	}
	if _, err := fh.Write(c.certPEM); err != nil {
		return "", errors.Wrap(err, "writing certificate to bundle")
	}

	return path, nil
}

// CertPath returns the consumer certificate path under dir without reading
// it. Used to register path monitoring before any consumer exists.
func CertPath(dir string) string {
	return filepath.Join(dir, certFilename)
}

// KeyPath returns the consumer key path under dir without reading it.
func KeyPath(dir string) string {
	return filepath.Join(dir, keyFilename)
}

// ExistsAndValid reports whether a parseable, unexpired consumer
// certificate exists under dir.
func ExistsAndValid(dir string) bool {
	certPEM, err := os.ReadFile(filepath.Join(dir, certFilename))
	if err != nil {
		return false
	}

	cert, err := parseCertificate(certPEM)
	if err != nil {
		return false
	}

	now := time.Now()
	return now.After(cert.NotBefore) && now.Before(cert.NotAfter)
}
