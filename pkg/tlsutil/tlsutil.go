// Package tlsutil builds tls.Config values from file-based settings: the
// gateway listener on the server side, the daemon and relay connections on
// the client side.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/youwol/ywdash/errors"
)

// ServerTLS configures a TLS listener. TLS is off when CertFile is empty.
type ServerTLS struct {
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty"` // "1.2" or "1.3"
}

// Enabled reports whether a certificate is configured.
func (c ServerTLS) Enabled() bool {
	return c.CertFile != ""
}

// ClientTLS configures outbound TLS. The system CA bundle is always trusted;
// CAFiles are additional roots, typically a self-signed daemon certificate.
type ClientTLS struct {
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"`
	MinVersion         string   `json:"min_version,omitempty"`
}

// Enabled reports whether the client settings differ from the defaults.
func (c ClientTLS) Enabled() bool {
	return len(c.CAFiles) > 0 || c.InsecureSkipVerify || c.MinVersion != ""
}

// LoadServerTLSConfig returns the listener config, nil when TLS is off.
func LoadServerTLSConfig(cfg ServerTLS) (*tls.Config, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}, nil
}

// LoadClientTLSConfig returns the outbound config, nil when every setting is
// at its default.
func LoadClientTLSConfig(cfg ClientTLS) (*tls.Config, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	for _, caFile := range cfg.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", fmt.Sprintf("read CA file %s", caFile))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil",
				"LoadClientTLSConfig",
				fmt.Sprintf("parse CA certificate from %s", caFile),
			)
		}
	}

	return &tls.Config{
		RootCAs:            rootCAs,
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed local daemons
	}, nil
}

// ValidVersion reports whether v is an accepted MinVersion value.
func ValidVersion(v string) bool {
	return v == "" || v == "1.2" || v == "1.3"
}

// parseTLSVersion returns tls.VersionTLS12 if empty or invalid.
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
