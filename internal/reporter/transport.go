package reporter

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/arenadata/report-poster/internal/config"
)

const (
	KeyTLSCAFile             = "reporter.post.tls.ca_file"
	KeyTLSCertFile           = "reporter.post.tls.cert_file"
	KeyTLSKeyFile            = "reporter.post.tls.key_file"
	KeyTLSServerName         = "reporter.post.tls.server_name"
	KeyTLSInsecureSkipVerify = "reporter.post.tls.insecure_skip_verify"

	httpMaxIdle     = 4
	httpIdleTimeout = 90 * time.Second
)

type tlsSettings struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

func readTLSSettings(s config.Settings) (tlsSettings, error) {
	insecure, err := s.Bool(KeyTLSInsecureSkipVerify, false)
	return tlsSettings{
		CAFile:             s.String(KeyTLSCAFile, ""),
		CertFile:           s.String(KeyTLSCertFile, ""),
		KeyFile:            s.String(KeyTLSKeyFile, ""),
		ServerName:         s.String(KeyTLSServerName, ""),
		InsecureSkipVerify: insecure,
	}, err
}

func makeHTTPClient(endpoint *url.URL, timeout time.Duration, t tlsSettings, log *slog.Logger) *http.Client {
	return &http.Client{Timeout: timeout, Transport: buildTransport(endpoint, t, log)}
}

func buildTransport(endpoint *url.URL, t tlsSettings, log *slog.Logger) *http.Transport {
	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxIdleConns:    httpMaxIdle,
		IdleConnTimeout: httpIdleTimeout,
	}
	if !strings.EqualFold(endpoint.Scheme, "https") {
		return tr
	}
	tr.TLSClientConfig = buildTLSConfig(t, log)
	return tr
}

// buildTLSConfig never fails: unreadable files are logged and skipped so a
// broken CA path degrades to the system pool.
func buildTLSConfig(t tlsSettings, log *slog.Logger) *tls.Config {
	tlsConf := &tls.Config{MinVersion: tls.VersionTLS12}
	roots, sysErr := x509.SystemCertPool()
	if sysErr != nil || roots == nil {
		roots = x509.NewCertPool()
	}
	if t.CAFile != "" {
		pem, rdErr := os.ReadFile(t.CAFile)
		switch {
		case rdErr != nil:
			log.Warn("tls ca file", "path", t.CAFile, "err", rdErr)
		case !roots.AppendCertsFromPEM(pem):
			log.Warn("tls ca file", "path", t.CAFile, "err", errors.New("no certificates found"))
		}
	}
	tlsConf.RootCAs = roots

	if t.CertFile != "" && t.KeyFile != "" {
		cert, ckErr := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if ckErr != nil {
			log.Warn("tls client certificate", "cert", t.CertFile, "err", ckErr)
		} else {
			tlsConf.Certificates = []tls.Certificate{cert}
		}
	}
	if t.ServerName != "" {
		tlsConf.ServerName = t.ServerName
	}
	if t.InsecureSkipVerify {
		tlsConf.InsecureSkipVerify = true
	}
	return tlsConf
}
