package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/aviary-social/aviary"
	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/jwt"
)

var tracer = otel.Tracer("auth")

// DIDResolver resolves a DID to its document.
type DIDResolver interface {
	ResolveDID(ctx context.Context, did string) (aviary.DIDDocument, error)
}

// AuthService verifies atproto service JWTs: expiry, audience, and the
// signature against the issuer's atproto signing key.
type AuthService struct {
	identity domain.ServiceIdentity
	resolver DIDResolver
}

func NewAuthService(identity domain.ServiceIdentity, resolver DIDResolver) *AuthService {
	return &AuthService{
		identity: identity,
		resolver: resolver,
	}
}

type AuthResult struct {
	DID      string
	Audience string
	Lxm      string
}

// VerifyServiceJWT authenticates a bearer token. The audience must be one
// of this service's identities; which one a given endpoint requires is
// enforced by the handler.
func (s *AuthService) VerifyServiceJWT(ctx context.Context, token string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.VerifyServiceJWT")
	defer span.End()

	parsed, err := jwt.Parse(token)
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt parsing failed"))
		return nil, domain.AuthRequiredError{Reason: err.Error()}
	}

	claims := parsed.Claims
	if !aviary.IsDID(claims.Issuer) {
		err := fmt.Errorf("jwt issuer is not a did: %q", claims.Issuer)
		span.RecordError(err)
		return nil, domain.AuthRequiredError{Reason: err.Error()}
	}

	if claims.Audience != s.identity.ServiceDid && claims.Audience != s.identity.PublisherDid {
		err := fmt.Errorf("jwt audience mismatch: got %s", claims.Audience)
		span.RecordError(err)
		return nil, domain.AuthRequiredError{Reason: err.Error()}
	}

	doc, err := s.resolver.ResolveDID(ctx, claims.Issuer)
	if err != nil {
		span.RecordError(errors.Wrap(err, "did resolution failed"))
		return nil, domain.AuthRequiredError{Reason: "could not resolve issuer"}
	}

	keyType, key, err := signingKey(doc)
	if err != nil {
		span.RecordError(err)
		return nil, domain.AuthRequiredError{Reason: err.Error()}
	}

	digest := sha256.Sum256([]byte(parsed.SigningInput))
	if err := verifySignature(parsed.Header.Algorithm, keyType, key, digest[:], parsed.Signature); err != nil {
		span.RecordError(err)
		return nil, domain.AuthRequiredError{Reason: err.Error()}
	}

	return &AuthResult{
		DID:      claims.Issuer,
		Audience: claims.Audience,
		Lxm:      claims.Lxm,
	}, nil
}

// signingKey extracts the issuer's atproto signing key from its document.
func signingKey(doc aviary.DIDDocument) (string, []byte, error) {
	for _, method := range doc.VerificationMethod {
		if !strings.HasSuffix(method.ID, "#atproto") {
			continue
		}
		return aviary.DecodeMultibaseKey(method.PublicKeyMultibase)
	}
	return "", nil, fmt.Errorf("no atproto verification method in did document")
}

func verifySignature(alg, keyType string, key, digest, signature []byte) error {
	if len(signature) != 64 {
		return fmt.Errorf("invalid signature length %d", len(signature))
	}

	switch alg {
	case jwt.AlgES256K:
		if keyType != aviary.KeyTypeSecp256k1 {
			return fmt.Errorf("algorithm %s does not match key type %s", alg, keyType)
		}
		if !ethcrypto.VerifySignature(key, digest, signature) {
			return fmt.Errorf("signature verification failed")
		}
		return nil

	case jwt.AlgES256:
		if keyType != aviary.KeyTypeP256 {
			return fmt.Errorf("algorithm %s does not match key type %s", alg, keyType)
		}
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), key)
		if x == nil {
			return fmt.Errorf("malformed p256 public key")
		}
		pub := ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		r := new(big.Int).SetBytes(signature[:32])
		ss := new(big.Int).SetBytes(signature[32:])
		if !ecdsa.Verify(&pub, digest, r, ss) {
			return fmt.Errorf("signature verification failed")
		}
		return nil

	default:
		return fmt.Errorf("unsupported jwt algorithm %q", alg)
	}
}
