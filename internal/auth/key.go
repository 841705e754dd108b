package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
)

// ParsePrivateKey imports PEM-armoured PKCS#8 key material. Header and
// footer lines, whitespace and literal "\n" sequences (as left behind by
// single-line environment variables) are stripped before decoding.
func ParsePrivateKey(material string) (*rsa.PrivateKey, error) {
	material = strings.ReplaceAll(material, `\n`, "\n")

	var body strings.Builder
	for _, line := range strings.Split(material, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-----") {
			continue
		}
		body.WriteString(strings.Join(strings.Fields(line), ""))
	}
	if body.Len() == 0 {
		return nil, fmt.Errorf("%w: private key is empty", ErrAuth)
	}

	der, err := base64.StdEncoding.DecodeString(body.String())
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not valid base64: %v", ErrAuth, err)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not PKCS#8: %v", ErrAuth, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is %T, want RSA", ErrAuth, parsed)
	}
	return key, nil
}
