package serialmux

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FormatHex renders b as space separated upper-case hex pairs.
func FormatHex(b []byte) string {
	return fmt.Sprintf("% X", b)
}

// ParseHex decodes hex pairs, ignoring spaces, colons, commas and 0x
// prefixes.
func ParseHex(s string) ([]byte, error) {
	r := strings.NewReplacer("0x", "", "0X", "", " ", "", ":", "", ",", "", "\t", "", "\n", "")
	clean := r.Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil, fmt.Errorf("empty hex string")
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}
