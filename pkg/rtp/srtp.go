package rtp

import (
	"fmt"
	"strings"

	"github.com/pion/srtp/v3"
)

// CryptoHint carries the cipher/auth pair a downstream decrypter needs, and
// the pion/srtp ProtectionProfile it corresponds to, per spec.md §4.13:
// "emits caps carrying cipher and auth values derived from crypto-suite".
type CryptoHint struct {
	Suite   string
	Cipher  string
	Auth    string
	Profile srtp.ProtectionProfile
}

// suiteHints maps RFC 4568 crypto-suite names to their cipher/auth
// components and pion/srtp protection profile.
var suiteHints = map[string]CryptoHint{
	"AES_CM_128_HMAC_SHA1_80": {Cipher: "aes-128-icm", Auth: "hmac-sha1-80", Profile: srtp.ProtectionProfileAes128CmHmacSha1_80},
	"AES_CM_128_HMAC_SHA1_32": {Cipher: "aes-128-icm", Auth: "hmac-sha1-32", Profile: srtp.ProtectionProfileAes128CmHmacSha1_32},
	"AEAD_AES_128_GCM":        {Cipher: "aes-128-gcm", Auth: "aead", Profile: srtp.ProtectionProfileAeadAes128Gcm},
	"AEAD_AES_256_GCM":        {Cipher: "aes-256-gcm", Auth: "aead", Profile: srtp.ProtectionProfileAeadAes256Gcm},
}

// DeriveCryptoHint resolves a crypto-suite name (as found on an a=crypto
// attribute) to its cipher/auth hint. This derives hints only; C13 never
// performs the decryption itself (spec.md §1's "optional SRTP decryption
// hints").
func DeriveCryptoHint(suite string) (CryptoHint, error) {
	hint, ok := suiteHints[strings.ToUpper(suite)]
	if !ok {
		return CryptoHint{}, fmt.Errorf("rtp: unknown SRTP crypto-suite %q", suite)
	}
	hint.Suite = suite
	return hint, nil
}
