package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/zeoauth/core"
)

// NormalizeAddress returns the EIP-55 checksummed form of address.
// All-lowercase and all-uppercase input is accepted as is, mixed case
// input must carry a valid checksum.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidAddress
	}

	checksummed := common.HexToAddress(address).Hex()

	digits := address
	if len(digits) == 2*common.AddressLength+2 {
		digits = digits[2:]
	}
	if isMixedCase(digits) && digits != checksummed[2:] {
		return "", core.ErrInvalidAddress
	}

	return checksummed, nil
}

// SameAddress reports whether a and b name the same account
func SameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}
