package proof

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// NonceSize is the opening nonce length in bytes.
const NonceSize = 32

const (
	commitmentTag = "vitalproof:commitment:v1"
	proofIDTag    = "proof-id"
	proofIDBytes  = 20
)

// NewNonce draws a fresh nonce from r, or crypto/rand when r is nil.
func NewNonce(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return nonce, nil
}

// Commit binds value, nonce and the public inputs hash:
// SHA3-256(tag || 0x00 || value || 0x00 || nonce || publicInputsHash).
// The value uses the shortest decimal form that round-trips.
func Commit(value float64, nonce []byte, publicInputsHash string) string {
	h := sha3.New256()
	h.Write([]byte(commitmentTag))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(value, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write(nonce)
	h.Write([]byte(publicInputsHash))
	return hex.EncodeToString(h.Sum(nil))
}

// ProofIDFor derives a non-sequential id from the commitment.
func ProofIDFor(commitment string) string {
	sum := sha3.Sum256([]byte(proofIDTag + commitment))
	return "prf_" + hex.EncodeToString(sum[:proofIDBytes])
}

// CommitmentsEqual compares two hex commitments in constant time.
func CommitmentsEqual(a, b string) bool {
	ab, errA := hex.DecodeString(a)
	bb, errB := hex.DecodeString(b)
	if errA != nil || errB != nil {
		return false
	}
	return subtle.ConstantTimeCompare(ab, bb) == 1
}
