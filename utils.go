package aviary

import (
	"fmt"
	"math/big"
	"strings"
)

// ComposeATURI builds the canonical at-uri for a record.
func ComposeATURI(did, collection, rkey string) string {
	return "at://" + did + "/" + collection + "/" + rkey
}

// AuthorFromATURI extracts the authority (DID) segment of an at-uri.
func AuthorFromATURI(uri string) string {
	rest := strings.TrimPrefix(uri, "at://")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}

func IsDID(s string) bool {
	if !strings.HasPrefix(s, "did:") {
		return false
	}
	rest := s[4:]
	i := strings.IndexByte(rest, ':')
	return i > 0 && i < len(rest)-1
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base58Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base58Alphabet); i++ {
		idx[base58Alphabet[i]] = int8(i)
	}
	return idx
}()

// DecodeBase58 decodes a base58btc string.
func DecodeBase58(s string) ([]byte, error) {
	n := new(big.Int)
	radix := big.NewInt(58)
	zeros := 0
	counting := true
	for i := 0; i < len(s); i++ {
		d := base58Index[s[i]]
		if d < 0 {
			return nil, fmt.Errorf("invalid base58 character %q", s[i])
		}
		if counting && d == 0 {
			zeros++
		} else {
			counting = false
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(d)))
	}
	return append(make([]byte, zeros), n.Bytes()...), nil
}

// EncodeBase58 encodes bytes as base58btc.
func EncodeBase58(b []byte) string {
	zeros := 0
	for zeros < len(b) && b[zeros] == 0 {
		zeros++
	}
	n := new(big.Int).SetBytes(b)
	radix := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for i := 0; i < zeros; i++ {
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// Multicodec prefixes used in atproto did key material.
var (
	multicodecSecp256k1 = []byte{0xe7, 0x01}
	multicodecP256      = []byte{0x80, 0x24}
)

// KeyTypeSecp256k1 and KeyTypeP256 identify the curve of a decoded key.
const (
	KeyTypeSecp256k1 = "secp256k1"
	KeyTypeP256      = "p256"
)

// DecodeMultibaseKey decodes a base58btc multibase public key and reports
// its curve. The returned bytes are the compressed SEC1 point.
func DecodeMultibaseKey(s string) (string, []byte, error) {
	if len(s) < 2 || s[0] != 'z' {
		return "", nil, fmt.Errorf("unsupported multibase prefix")
	}
	raw, err := DecodeBase58(s[1:])
	if err != nil {
		return "", nil, err
	}
	switch {
	case len(raw) > 2 && raw[0] == multicodecSecp256k1[0] && raw[1] == multicodecSecp256k1[1]:
		return KeyTypeSecp256k1, raw[2:], nil
	case len(raw) > 2 && raw[0] == multicodecP256[0] && raw[1] == multicodecP256[1]:
		return KeyTypeP256, raw[2:], nil
	default:
		return "", nil, fmt.Errorf("unsupported key multicodec")
	}
}
