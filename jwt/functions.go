package jwt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	AlgES256K = "ES256K"
	AlgES256  = "ES256"
)

type Header struct {
	Type      string `json:"typ,omitempty"`
	Algorithm string `json:"alg"`
}

// Claims is the atproto service-JWT payload. Lxm binds the token to one
// XRPC method.
type Claims struct {
	Issuer         string `json:"iss"`
	Audience       string `json:"aud"`
	ExpirationTime int64  `json:"exp"`
	IssuedAt       int64  `json:"iat,omitempty"`
	Lxm            string `json:"lxm,omitempty"`
	JTI            string `json:"jti,omitempty"`
}

// Token is a parsed but not yet signature-verified service JWT. The caller
// verifies Signature over SigningInput against the issuer's resolved key.
type Token struct {
	Header       Header
	Claims       Claims
	SigningInput string
	Signature    []byte
}

// Parse splits and decodes a compact JWT and checks its expiry. Signature
// verification is left to the caller, which knows the issuer's key.
func Parse(token string) (*Token, error) {
	split := strings.Split(token, ".")
	if len(split) != 3 {
		return nil, fmt.Errorf("invalid jwt format")
	}

	var header Header
	headerBytes, err := base64.RawURLEncoding.DecodeString(split[0])
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(headerBytes, &header)
	if err != nil {
		return nil, err
	}

	if header.Algorithm != AlgES256K && header.Algorithm != AlgES256 {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", header.Algorithm)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(split[1])
	if err != nil {
		return nil, err
	}

	var claims Claims
	err = json.Unmarshal(payloadBytes, &claims)
	if err != nil {
		return nil, err
	}

	if claims.ExpirationTime == 0 {
		return nil, fmt.Errorf("jwt has no expiry")
	}
	if claims.ExpirationTime < time.Now().Unix() {
		return nil, fmt.Errorf("jwt is already expired")
	}

	signature, err := base64.RawURLEncoding.DecodeString(split[2])
	if err != nil {
		return nil, err
	}

	return &Token{
		Header:       header,
		Claims:       claims,
		SigningInput: split[0] + "." + split[1],
		Signature:    signature,
	}, nil
}
