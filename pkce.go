package kick

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// pkceCodes holds the verification codes for one OAuth2 PKCE attempt
// (RFC 7636). Both values live only in process memory for the lifetime of
// a single authorization flow and are never persisted.
type pkceCodes struct {
	// Verifier is the cryptographically random string sent with the token
	// request to prove possession.
	Verifier string
	// Challenge is the SHA256 hash of the verifier, base64url-encoded
	// without padding, sent with the authorization request.
	Challenge string
}

// generatePKCE creates a new pair of PKCE codes. The verifier is 86
// characters of URL-safe random data, well above the 43-character floor
// RFC 7636 requires.
func generatePKCE() (*pkceCodes, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPKCEGeneration, err)
	}
	return &pkceCodes{
		Verifier:  verifier,
		Challenge: challengeFromVerifier(verifier),
	}, nil
}

func generateCodeVerifier() (string, error) {
	// 64 random bytes encode to 86 base64 characters.
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// challengeFromVerifier derives the S256 code challenge for a verifier.
func challengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
