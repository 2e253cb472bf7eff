package siesta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedCertificateIsUsable(t *testing.T) {
	cert, err := selfSignedCertificate()
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)

	assert.Equal(t, "127.0.0.1", cert.Leaf.Subject.CommonName)
	assert.True(t, cert.Leaf.NotAfter.After(time.Now().AddDate(50, 0, 0)))
}
