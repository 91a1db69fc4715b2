package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCryptoHintKnownSuite(t *testing.T) {
	hint, err := DeriveCryptoHint("AES_CM_128_HMAC_SHA1_80")
	require.NoError(t, err)
	assert.Equal(t, "aes-128-icm", hint.Cipher)
	assert.Equal(t, "hmac-sha1-80", hint.Auth)
}

func TestDeriveCryptoHintUnknownSuite(t *testing.T) {
	_, err := DeriveCryptoHint("NOT_A_REAL_SUITE")
	assert.Error(t, err)
}

func TestDeriveCryptoHintCaseInsensitive(t *testing.T) {
	hint, err := DeriveCryptoHint("aead_aes_128_gcm")
	require.NoError(t, err)
	assert.Equal(t, "aes-128-gcm", hint.Cipher)
}
