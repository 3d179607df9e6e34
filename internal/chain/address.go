package chain

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte account address in canonical form: lowercase hex with a 0x prefix.
// The zero value is not a valid address; obtain one through Normalize.
type Address string

// Normalize validates s and returns its canonical form. It accepts input with or without
// the 0x prefix and in any letter case. Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) (Address, error) {
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw = raw[2:]
	}
	if len(raw) != 2*common.AddressLength {
		return "", validationErrorf("address %q must be %d hex characters", s, 2*common.AddressLength)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", validationErrorf("address %q is not hex", s)
	}
	return Address("0x" + strings.ToLower(raw)), nil
}

// MustNormalize is Normalize for compile-time constants and tests.
func MustNormalize(s string) Address {
	a, err := Normalize(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromCommon converts a go-ethereum address into canonical form.
func FromCommon(a common.Address) Address {
	return Address("0x" + hex.EncodeToString(a.Bytes()))
}

func (a Address) Common() common.Address {
	return common.HexToAddress(string(a))
}

func (a Address) String() string {
	return string(a)
}

// IsZero reports whether a is empty or the all-zero address.
func (a Address) IsZero() bool {
	return a == "" || a.Common() == (common.Address{})
}
