package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrNoCertsFound is returned when a PEM source holds no certificates.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found")
)

// Pool manages a pool of trusted root certificates.
type Pool struct {
	fs       afero.Fs
	certPool *x509.CertPool
	count    int
}

// NewPool creates a pool seeded with the system roots. Where the system
// roots cannot be loaded the pool starts empty.
func NewPool(fs afero.Fs) *Pool {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	return &Pool{fs: fs, certPool: pool}
}

// NewEmptyPool creates a pool without system roots.
func NewEmptyPool(fs afero.Fs) *Pool {
	return &Pool{fs: fs, certPool: x509.NewCertPool()}
}

// Added returns how many certificates were added on top of the seed.
func (p *Pool) Added() int { return p.count }

// AddCertFile adds every certificate in a PEM file.
func (p *Pool) AddCertFile(path string) error {
	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("tlsroots: %s: %w", path, err)
	}
	return nil
}

// AddCertPEM adds certificates from PEM-encoded data. Blocks of other
// types are skipped.
func (p *Pool) AddCertPEM(pemData []byte) error {
	added := 0
	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("parse certificate: %w", err)
		}
		p.certPool.AddCert(cert)
		added++
	}
	if added == 0 {
		return ErrNoCertsFound
	}
	p.count += added
	return nil
}

// AddCertDir adds the .pem, .crt and .cer files of dir. Unreadable files
// are reported together after the rest have been added.
func (p *Pool) AddCertDir(dir string) error {
	entries, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return fmt.Errorf("tlsroots: read dir %s: %w", dir, err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pem", ".crt", ".cer":
			if err := p.AddCertFile(filepath.Join(dir, entry.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// TLSConfig returns a client TLS config trusting this pool.
func (p *Pool) TLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    p.certPool,
		MinVersion: tls.VersionTLS12,
	}
}

// Load builds a pool from the system roots plus caFile and caDir. It
// returns nil, nil when neither is set, meaning the default TLS settings
// apply.
func Load(fs afero.Fs, caFile, caDir string) (*tls.Config, error) {
	if caFile == "" && caDir == "" {
		return nil, nil
	}
	p := NewPool(fs)
	if caFile != "" {
		if err := p.AddCertFile(caFile); err != nil {
			return nil, err
		}
	}
	if caDir != "" {
		if err := p.AddCertDir(caDir); err != nil {
			return nil, err
		}
	}
	return p.TLSConfig(), nil
}
