package proof

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	dErrors "vitalproof/pkg/domain-errors"
)

// AggregationMethod names the root construction reported to clients.
const AggregationMethod = "merkle-sha256"

const (
	leafTag = "vitalproof:aggregate:leaf:v1"
	nodeTag = "vitalproof:aggregate:node:v1"
)

// MerkleRoot builds a root over the commitments sorted ascending, so the
// result does not depend on request order. An odd node is paired with itself.
func MerkleRoot(commitments []string) (string, error) {
	if len(commitments) == 0 {
		return "", dErrors.New(dErrors.CodeMalformedInput, "at least one proof is required")
	}
	sorted := slices.Clone(commitments)
	slices.Sort(sorted)

	level := make([][]byte, len(sorted))
	for i, c := range sorted {
		raw, err := hex.DecodeString(c)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "stored commitment is not hex")
		}
		level[i] = hashWithTag(leafTag, raw)
	}
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashWithTag(nodeTag, level[i], level[i+1])
		}
		level = next
	}
	return hex.EncodeToString(level[0]), nil
}

func hashWithTag(tag string, parts ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(tag)
	buf.WriteByte(0)
	for _, p := range parts {
		buf.Write(p)
	}
	sum := sha256.Sum256(buf.Bytes())
	return sum[:]
}
