package contract

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"ggloracle/internal/canon"
	"ggloracle/internal/logging"
	"ggloracle/internal/value"
)

// ErrHashMismatch is returned when a loaded ABI does not match a pinned hash.
var ErrHashMismatch = errors.New("abi hash mismatch")

// ABI is the loaded contract pair and its identity hash.
// It is never mutated after Load and is safe for concurrent use.
type ABI struct {
	Hash      string
	Tokenizer *Tokenizer
	Grammar   *Grammar

	tokenizerDoc value.Value
	grammarDoc   value.Value
}

// Source yields the ABI a verification call should use.
type Source interface {
	Current() *ABI
}

// Current lets a fixed ABI act as its own Source.
func (a *ABI) Current() *ABI { return a }

// TokenizerDoc returns the tokenizer contract document as loaded.
func (a *ABI) TokenizerDoc() value.Value { return a.tokenizerDoc }

// GrammarDoc returns the grammar contract document as loaded.
func (a *ABI) GrammarDoc() value.Value { return a.grammarDoc }

// Pin checks the hash against an expected value. An empty expected hash
// pins nothing.
func (a *ABI) Pin(expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" || expected == a.Hash {
		return nil
	}
	return fmt.Errorf("%w: loaded %s, pinned %s", ErrHashMismatch, a.Hash, expected)
}

// Hash computes the ABI hash of two contract documents:
// sha256(canon(tokenizer) || 0x0A || canon(grammar)) as lowercase hex.
func Hash(tokenizer, grammar value.Value) string {
	return canon.JoinHash(canon.Bytes(tokenizer), canon.Bytes(grammar))
}

// Load parses, hashes and decodes a tokenizer and grammar contract.
// Any failure is fatal: no ABI is returned.
func Load(tokenizerJSON, grammarJSON []byte) (*ABI, error) {
	tokDoc, err := value.Parse(tokenizerJSON)
	if err != nil {
		return nil, fmt.Errorf("tokenizer contract: %w", err)
	}
	grDoc, err := value.Parse(grammarJSON)
	if err != nil {
		return nil, fmt.Errorf("grammar contract: %w", err)
	}
	return FromDocuments(tokDoc, grDoc)
}

// FromDocuments hashes and decodes already-parsed contract documents.
func FromDocuments(tokDoc, grDoc value.Value) (*ABI, error) {
	tok, err := DecodeTokenizer(tokDoc)
	if err != nil {
		return nil, fmt.Errorf("tokenizer contract: %w", err)
	}
	gr, err := DecodeGrammar(grDoc)
	if err != nil {
		return nil, fmt.Errorf("grammar contract: %w", err)
	}

	abi := &ABI{
		Hash:         Hash(tokDoc, grDoc),
		Tokenizer:    tok,
		Grammar:      gr,
		tokenizerDoc: tokDoc,
		grammarDoc:   grDoc,
	}
	logging.ContractDebug("loaded abi %s (tokenizer unconstrained=%v, ast_type=%s)",
		abi.Hash, tok.Unconstrained(), gr.ASTType)
	return abi, nil
}

// LoadFiles reads both contracts from disk and loads them.
func LoadFiles(tokenizerPath, grammarPath string) (*ABI, error) {
	tokRaw, err := os.ReadFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer contract: %w", err)
	}
	grRaw, err := os.ReadFile(grammarPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read grammar contract: %w", err)
	}
	abi, err := Load(tokRaw, grRaw)
	if err != nil {
		return nil, err
	}
	logging.Contract("loaded contracts %s + %s -> %s", tokenizerPath, grammarPath, abi.Hash)
	return abi, nil
}

// Default returns the ABI of two empty contract objects: no character
// constraints and the default grammar.
func Default() *ABI {
	abi, err := Load([]byte("{}"), []byte("{}"))
	if err != nil {
		panic(err) // unreachable: both documents are constant
	}
	return abi
}
