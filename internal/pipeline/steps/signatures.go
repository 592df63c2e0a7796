// Package steps implements the concrete pipeline steps named in spec
// component G: secrets/PII redaction and unredaction, the codegate-cli
// control surface, malicious-package context retrieval, system-prompt
// assembly, and output-side comment annotation.
package steps

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Signature is one compiled secret-detection rule: a regex plus the
// {service, type} metadata recorded alongside every redacted value so an
// unredaction step (and the dashboard) can describe what was found
// without re-deriving it from the pattern.
type Signature struct {
	Name    string `yaml:"name"`
	Service string `yaml:"service"`
	Type    string `yaml:"type"`
	Regex   string `yaml:"regex"`

	re *regexp.Regexp
}

// SignatureMatch is one occurrence of a Signature in a piece of text.
type SignatureMatch struct {
	Signature Signature
	Value     string
	Start     int
	End       int
}

// signaturesFile is the on-disk shape of the signatures YAML file: a flat
// list under a top-level "signatures" key, mirroring the original's
// gitleaks-style signatures.yaml.
type signaturesFile struct {
	Signatures []Signature `yaml:"signatures"`
}

// SignatureSet is a compiled, ready-to-scan collection of Signatures.
type SignatureSet struct {
	sigs []Signature
}

// LoadSignatures reads and compiles the signature set from a YAML file at
// path. Each entry's regex is compiled once at load time so scanning
// never pays compilation cost per request.
func LoadSignatures(path string) (*SignatureSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("steps: reading signatures file %q: %w", path, err)
	}
	var doc signaturesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("steps: parsing signatures file %q: %w", path, err)
	}
	return compileSignatureSet(doc.Signatures)
}

// DefaultSignatures returns the built-in signature set used when no
// on-disk signatures file is configured, covering the common
// cloud-provider and VCS token shapes the original ships by default.
func DefaultSignatures() *SignatureSet {
	set, err := compileSignatureSet(builtinSignatures)
	if err != nil {
		// builtinSignatures is a fixed, test-covered literal: a compile
		// failure here is a programming error, not a runtime condition.
		panic(err)
	}
	return set
}

func compileSignatureSet(sigs []Signature) (*SignatureSet, error) {
	out := make([]Signature, 0, len(sigs))
	for _, s := range sigs {
		re, err := regexp.Compile(s.Regex)
		if err != nil {
			return nil, fmt.Errorf("steps: compiling signature %q: %w", s.Name, err)
		}
		s.re = re
		out = append(out, s)
	}
	return &SignatureSet{sigs: out}, nil
}

// FindAll scans text against every compiled signature and returns every
// match, grouped by signature in the order the signatures were declared.
// One signature's matches do not overlap each other and are in text
// order; matches of different signatures may overlap.
func (s *SignatureSet) FindAll(text string) []SignatureMatch {
	var out []SignatureMatch
	for _, sig := range s.sigs {
		locs := sig.re.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			out = append(out, SignatureMatch{
				Signature: sig, Value: text[loc[0]:loc[1]], Start: loc[0], End: loc[1],
			})
		}
	}
	return out
}

// builtinSignatures mirrors the shape (not the exhaustive content) of the
// original's default signatures.yaml: common service API key/token
// formats with enough structural specificity to avoid matching ordinary
// prose.
var builtinSignatures = []Signature{
	{Name: "aws-access-key-id", Service: "aws", Type: "access_key_id", Regex: `\b(AKIA|ASIA)[0-9A-Z]{16}\b`},
	{Name: "aws-secret-access-key", Service: "aws", Type: "secret_access_key",
		Regex: `(?i)aws(.{0,20})?(secret|access)?(.{0,20})?['"][0-9a-zA-Z/+]{40}['"]`},
	{Name: "github-pat", Service: "github", Type: "personal_access_token", Regex: `\bgh[pousr]_[A-Za-z0-9]{36}\b`},
	{Name: "openai-api-key", Service: "openai", Type: "api_key", Regex: `\bsk-[A-Za-z0-9]{20,}\b`},
	{Name: "anthropic-api-key", Service: "anthropic", Type: "api_key", Regex: `\bsk-ant-[A-Za-z0-9_-]{20,}\b`},
	{Name: "slack-token", Service: "slack", Type: "token", Regex: `\bxox[baprs]-[A-Za-z0-9-]{10,}\b`},
	{Name: "stripe-secret-key", Service: "stripe", Type: "secret_key", Regex: `\bsk_(live|test)_[A-Za-z0-9]{24,}\b`},
	{Name: "generic-private-key-block", Service: "generic", Type: "private_key",
		Regex: `-----BEGIN (RSA |EC |OPENSSH |DSA |)PRIVATE KEY-----`},
	{Name: "generic-bearer-token", Service: "generic", Type: "bearer_token",
		Regex: `(?i)bearer\s+[A-Za-z0-9_\-.=]{20,}`},
}
