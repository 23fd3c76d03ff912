package services

import (
	"crypto"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// BuildSignContent canonicalizes params for signing: keys sorted ascending, empty values
// and excluded keys dropped, pairs joined as k=v with '&'.
func BuildSignContent(params map[string]string, exclude ...string) string {
	skip := make(map[string]struct{}, len(exclude))
	for _, k := range exclude {
		skip[k] = struct{}{}
	}

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if _, ok := skip[k]; ok || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// NewNonce returns a 32 character random hex string
func NewNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SignRSA2 signs content with SHA256 and PKCS#1 v1.5, base64 encoded
func SignRSA2(content string, key *rsa.PrivateKey) (string, error) {
	digest := sha256.Sum256([]byte(content))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("rsa2 sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyRSA2 reports whether signature is a valid RSA2 signature of content
func VerifyRSA2(content, signature string, key *rsa.PublicKey) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(content))
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig) == nil
}

// DigestMD5 returns hex(md5(content))
func DigestMD5(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DigestHMACSHA256 returns hex(hmac_sha256(key, content))
func DigestHMACSHA256(content, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

// EqualSignature compares two signatures in constant time, ignoring hex case
func EqualSignature(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToUpper(a)), []byte(strings.ToUpper(b))) == 1
}

// ParseRSAPrivateKey accepts PEM or bare base64 DER in PKCS#1 or PKCS#8 form
func ParseRSAPrivateKey(encoded string) (*rsa.PrivateKey, error) {
	der, err := decodeKeyMaterial(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

// ParseRSAPublicKey accepts PEM or bare base64 DER in PKIX or PKCS#1 form
func ParseRSAPublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := decodeKeyMaterial(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not RSA")
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

func decodeKeyMaterial(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("empty key")
	}
	if strings.HasPrefix(encoded, "-----BEGIN") {
		block, _ := pem.Decode([]byte(encoded))
		if block == nil {
			return nil, fmt.Errorf("invalid PEM block")
		}
		return block.Bytes, nil
	}
	return base64.StdEncoding.DecodeString(encoded)
}
