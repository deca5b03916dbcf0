package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// buildTLSConfig layers the CA and client certificate settings of cfg on a
// copy of cfg.TLSConfig.
func buildTLSConfig(cfg *ConnectionConfig, serverName string) (*tls.Config, error) {
	var tlsConfig *tls.Config
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = serverName
	}

	if cfg.TLSCACertFile != "" || cfg.TLSCACert != "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}

		if cfg.TLSCACertFile != "" {
			pem, err := os.ReadFile(cfg.TLSCACertFile)
			if err != nil {
				return nil, fmt.Errorf("reading CA certificate file: %w", err)
			}
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCACertFile)
			}
		}

		if cfg.TLSCACert != "" && !pool.AppendCertsFromPEM([]byte(cfg.TLSCACert)) {
			return nil, errors.New("no certificates found in inline CA certificate")
		}

		tlsConfig.RootCAs = pool
	}

	if cfg.TLSClientCertFile != "" || cfg.TLSClientKeyFile != "" {
		if cfg.TLSClientCertFile == "" || cfg.TLSClientKeyFile == "" {
			return nil, errors.New("client certificate and key must be configured together")
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLSClientCertFile, cfg.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = append(tlsConfig.Certificates, cert)
	}

	return tlsConfig, nil
}
