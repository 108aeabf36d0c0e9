// Package signature builds the authorization token the payment processor
// expects on every request.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// NonceBytes is the amount of entropy drawn for every request nonce.
const NonceBytes = 16

var ErrMissingCredentials = errors.New("signature: api key and secret key are required")

// SignedRequest is one serialized request body together with the nonce and
// token computed over exactly those bytes. Build a new one per attempt.
type SignedRequest struct {
	Body      []byte
	Nonce     string
	Signature string
}

// Sign returns base64(apiKey ":" nonce ":" base64(HMAC-SHA256(secretKey, nonce||body))).
func Sign(apiKey, secretKey, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(nonce))
	mac.Write(body)
	hash := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return base64.StdEncoding.EncodeToString([]byte(apiKey + ":" + nonce + ":" + hash))
}

// NewNonce draws NonceBytes from crypto/rand and hex encodes them.
func NewNonce() (string, error) {
	buf := make([]byte, NonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type Signer struct {
	apiKey    string
	secretKey string
}

func NewSigner(apiKey, secretKey string) (*Signer, error) {
	if apiKey == "" || secretKey == "" {
		return nil, ErrMissingCredentials
	}
	return &Signer{apiKey: apiKey, secretKey: secretKey}, nil
}

// SignBody signs body as-is with a fresh nonce. The caller must send Body
// unchanged; re-serializing after this point breaks verification.
func (s *Signer) SignBody(body []byte) (*SignedRequest, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	return &SignedRequest{
		Body:      body,
		Nonce:     nonce,
		Signature: Sign(s.apiKey, s.secretKey, nonce, body),
	}, nil
}

// AuthorizationHeader is the value of the Authorization header for req.
func (s *Signer) AuthorizationHeader(req *SignedRequest) string {
	return "IYZWS " + s.apiKey + ":" + req.Signature
}
