package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"eatflow-gateway/internal/config"
	"eatflow-gateway/internal/util"
)

var ErrDisabled = errors.New("tls is disabled")

// Manager serves the gateway certificate from files or through ACME
type Manager struct {
	config   config.TLSConfig
	autoCert *autocert.Manager
	cert     *tls.Certificate
}

// NewManager returns ErrDisabled when TLS is off
func NewManager(cfg config.TLSConfig) (*Manager, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	m := &Manager{config: cfg}

	if cfg.AutoCert {
		if cfg.Domain == "" {
			return nil, fmt.Errorf("autocert requires a domain")
		}
		if err := os.MkdirAll(cfg.AutoCertDir, 0o700); err != nil {
			return nil, fmt.Errorf("create autocert directory: %w", err)
		}
		m.autoCert = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Domain),
			Cache:      autocert.DirCache(cfg.AutoCertDir),
			Email:      cfg.Email,
		}
		util.Info("AutoCert configured",
			zap.String("domain", cfg.Domain),
			zap.String("cache_dir", cfg.AutoCertDir))
		return m, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	m.cert = &cert
	return m, nil
}

func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		return m.autoCert.GetCertificate(hello)
	}
	return m.cert, nil
}

func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}

// ChallengeHandler answers ACME http-01 challenges and redirects the rest
// to HTTPS; nil without autocert.
func (m *Manager) ChallengeHandler() http.Handler {
	if m.autoCert == nil {
		return nil
	}
	return m.autoCert.HTTPHandler(nil)
}
