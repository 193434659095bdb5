package explain

import (
	"encoding/hex"
	"strings"

	"github.com/brojonat/stellar-explain/service/apperror"
	"github.com/stellar/go-stellar-sdk/strkey"
)

const (
	transactionHashLen = 64
	accountAddressLen  = 56
)

// ValidateTransactionHash checks that hash is 64 hex characters.
func ValidateTransactionHash(hash string) error {
	if len(hash) != transactionHashLen {
		return apperror.Invalid("transaction hash must be %d hex characters", transactionHashLen)
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return apperror.Invalid("transaction hash must be hexadecimal")
	}
	return nil
}

// ValidateAccountAddress checks that address is a StrKey-encoded account ID
// (G...): version byte, 32-byte key and checksum.
func ValidateAccountAddress(address string) error {
	if len(address) != accountAddressLen || !strings.HasPrefix(address, "G") {
		return apperror.Invalid("account address must be a %d character G... address", accountAddressLen)
	}
	if _, err := strkey.Decode(strkey.VersionByteAccountID, address); err != nil {
		return apperror.Invalid("account address is not a valid account ID: %v", err)
	}
	return nil
}
