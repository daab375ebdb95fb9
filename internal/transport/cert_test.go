package transport

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedRoundTrip(t *testing.T) {
	certPEM, keyPEM, err := generateSelfSigned("test-identity")
	require.NoError(t, err)
	require.NotEmpty(t, certPEM)
	require.NotEmpty(t, keyPEM)

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	require.Equal(t, "test-identity", cert.Subject.CommonName)
	require.NoError(t, cert.CheckSignatureFrom(cert))
}

func TestAcceptSelfSigned(t *testing.T) {
	certPEM, _, err := generateSelfSigned("peer")
	require.NoError(t, err)
	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	require.NoError(t, acceptSelfSigned([][]byte{block.Bytes}, nil))
}

func TestAcceptSelfSignedRejectsGarbage(t *testing.T) {
	require.Error(t, acceptSelfSigned([][]byte{[]byte("not a certificate")}, nil))
	require.Error(t, acceptSelfSigned(nil, nil))
}
