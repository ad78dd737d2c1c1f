package versions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/itchyny/gojq"
)

// DefaultVersionPath is the jq path of the version field in a merkle-tree file.
const DefaultVersionPath = ".airdrop_version"

// TreeParser extracts the airdrop version from a merkle-tree JSON artifact.
// The remaining tree contents (root, nodes, proofs) are not interpreted.
type TreeParser struct {
	path string
	code *gojq.Code
}

// NewTreeParser compiles the jq path used to locate the version field.
// An empty path selects DefaultVersionPath.
func NewTreeParser(versionPath string) (*TreeParser, error) {
	if versionPath == "" {
		versionPath = DefaultVersionPath
	}

	query, err := gojq.Parse(versionPath)
	if err != nil {
		return nil, fmt.Errorf("invalid version path %q: %w", versionPath, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile version path %q: %w", versionPath, err)
	}

	return &TreeParser{path: versionPath, code: code}, nil
}

// ParseFile reads a merkle-tree file and returns its airdrop version.
func (p *TreeParser) ParseFile(filename string) (uint64, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	return p.Parse(data)
}

// Parse returns the airdrop version encoded in a merkle-tree document.
func (p *TreeParser) Parse(data []byte) (uint64, error) {
	// Numbers stay json.Number so versions above 2^53 are not rounded.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("not a merkle tree file: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("not a merkle tree file: trailing data after JSON document")
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return 0, fmt.Errorf("not a merkle tree file: expected JSON object")
	}

	iter := p.code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return 0, fmt.Errorf("%s produced no value", p.path)
	}
	if err, isErr := v.(error); isErr {
		return 0, fmt.Errorf("%s: %w", p.path, err)
	}

	return toVersion(p.path, v)
}

const maxExactFloat = 1 << 53

func toVersion(path string, v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("%s must not be negative, got %d", path, n)
		}
		return uint64(n), nil
	case *big.Int:
		if !n.IsUint64() {
			return 0, fmt.Errorf("%s must be an unsigned 64-bit integer, got %s", path, n)
		}
		return n.Uint64(), nil
	case json.Number:
		u, ok := new(big.Int).SetString(n.String(), 10)
		if !ok || !u.IsUint64() {
			return 0, fmt.Errorf("%s must be an unsigned 64-bit integer, got %s", path, n)
		}
		return u.Uint64(), nil
	case float64:
		// Only exponent forms like 1e3 reach here. Above 2^53 the value is not exact.
		if n < 0 || n > maxExactFloat || n != float64(uint64(n)) {
			return 0, fmt.Errorf("%s must be an unsigned integer, got %v", path, n)
		}
		return uint64(n), nil
	case nil:
		return 0, fmt.Errorf("%s is missing", path)
	default:
		return 0, fmt.Errorf("%s must be an unsigned integer, got %T", path, v)
	}
}
