package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// identityDirEnv overrides the default certificate directory, following
// the Rust prototype's CHIA_ROOT override pattern (SPEC_FULL.md §12.1),
// but scoped to this listener's own identity rather than a full Chia
// install.
const identityDirEnv = "CHIA_BLOCK_LISTENER_SSL_DIR"

var (
	identityOnce sync.Once
	identityCert tls.Certificate
	identityErr  error
)

// ClientIdentity returns the process-wide client certificate/key pair,
// loading it from disk on first use or generating and persisting a new
// self-signed pair if absent (spec.md §4.2, §6). Subsequent calls reuse
// the cached pair; this is the "global mutable state" the design notes
// (spec.md §9) call for guarding with a one-time initializer.
func ClientIdentity() (tls.Certificate, error) {
	identityOnce.Do(func() {
		identityCert, identityErr = loadOrGenerateIdentity()
	})
	return identityCert, identityErr
}

func sslDir() (string, error) {
	if dir := os.Getenv(identityDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("transport: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chia-block-listener", "ssl"), nil
}

func loadOrGenerateIdentity() (tls.Certificate, error) {
	dir, err := sslDir()
	if err != nil {
		return tls.Certificate{}, err
	}
	certPath := filepath.Join(dir, "client.crt")
	keyPath := filepath.Join(dir, "client.key")

	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
		log.Debug("Loaded client identity", "dir", dir)
		return cert, nil
	}

	log.Info("Generating self-signed client identity", "dir", dir)
	certPEM, keyPEM, err := generateSelfSigned("chia-block-listener")
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: generate client identity: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: create ssl dir: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: persist client cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: persist client key: %w", err)
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

func generateSelfSigned(commonName string) (certPEM, keyPEM []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// builtinCAPEM is the fixed CA this client additionally trusts (spec.md
// §4.2), alongside accepting any self-signed peer leaf. A production
// build embeds the target chain's real CA certificate here; left empty
// in this repository since no such certificate was supplied to it (see
// DESIGN.md).
const builtinCAPEM = ""

func builtinCAPool() *x509.CertPool {
	pool := x509.NewCertPool()
	if builtinCAPEM != "" {
		pool.AppendCertsFromPEM([]byte(builtinCAPEM))
	}
	return pool
}

// acceptSelfSigned implements the "additionally accepts any self-signed
// peer certificate" half of spec.md §4.2: full nodes in this family of
// blockchains present per-node self-signed leaves that will never chain
// to a CA, so standard verification is replaced with a check that the
// leaf's signature is valid against its own public key.
func acceptSelfSigned(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("transport: peer presented no certificate")
	}
	leaf, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("transport: parse peer certificate: %w", err)
	}

	caPool := builtinCAPool()
	if caPool.AppendCertsFromPEM([]byte(builtinCAPEM)); len(builtinCAPEM) > 0 {
		if _, err := leaf.Verify(x509.VerifyOptions{Roots: caPool}); err == nil {
			return nil
		}
	}

	if err := leaf.CheckSignatureFrom(leaf); err != nil {
		return fmt.Errorf("transport: peer certificate is neither trusted nor validly self-signed: %w", err)
	}
	return nil
}
