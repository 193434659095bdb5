package explain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LabelDirectory maps well-known account addresses to organization names.
// It is read-only after construction and safe for concurrent use.
type LabelDirectory struct {
	names map[string]string
}

var builtinLabels = map[string]string{
	"GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF": "Stellar Foundation",
	"GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN": "USDC Issuer (Circle)",
}

// NewLabelDirectory builds a directory from address to name pairs. Addresses
// are matched case-insensitively and ignoring surrounding whitespace.
func NewLabelDirectory(entries map[string]string) *LabelDirectory {
	d := &LabelDirectory{names: make(map[string]string, len(entries))}
	for addr, name := range entries {
		d.names[canonicalAddress(addr)] = name
	}
	return d
}

// DefaultLabels returns the built-in directory.
func DefaultLabels() *LabelDirectory {
	return NewLabelDirectory(builtinLabels)
}

// LoadLabels reads a YAML mapping of address to name from path and layers it
// over the built-in directory. File entries win.
func LoadLabels(path string) (*LabelDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}

	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse labels file %s: %w", path, err)
	}

	merged := make(map[string]string, len(builtinLabels)+len(entries))
	for k, v := range builtinLabels {
		merged[k] = v
	}
	for k, v := range entries {
		merged[k] = v
	}
	return NewLabelDirectory(merged), nil
}

// Resolve returns the organization name for address. A nil directory knows
// no names.
func (d *LabelDirectory) Resolve(address string) (string, bool) {
	if d == nil {
		return "", false
	}
	name, ok := d.names[canonicalAddress(address)]
	return name, ok
}

// Len reports the number of known addresses.
func (d *LabelDirectory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}

func canonicalAddress(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
