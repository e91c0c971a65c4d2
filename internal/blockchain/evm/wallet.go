package evm

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidAddress is returned when an address fails format validation
var ErrInvalidAddress = errors.New("invalid address")

// Wallet is a custodial keypair
type Wallet struct {
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// NewWallet generates a fresh secp256k1 keypair from crypto/rand
func NewWallet() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Wallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}, nil
}

// WalletFromHex restores a wallet from a hex private key, with or without 0x
func WalletFromHex(hexKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Wallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}, nil
}

// PrivateKeyHex returns the 0x-prefixed private key
func (w *Wallet) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(w.PrivateKey))
}

// IsValidAddress accepts 40 hex digits with an optional 0x prefix. Mixed-case
// input must carry a correct EIP-55 checksum.
func IsValidAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}

	digits := s
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return true
	}
	return common.HexToAddress(s).Hex()[2:] == digits
}

// AddressError lists the entries of an address list that failed validation
type AddressError struct {
	Invalid []string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid address(es): %s", strings.Join(e.Invalid, ", "))
}

func (e *AddressError) Unwrap() error {
	return ErrInvalidAddress
}

// ValidateAddresses parses a comma-separated address list. On failure the
// returned *AddressError names every invalid entry in input order.
func ValidateAddresses(input string) ([]common.Address, error) {
	parts := strings.Split(input, ",")

	addresses := make([]common.Address, 0, len(parts))
	var invalid []string
	for _, part := range parts {
		entry := strings.TrimSpace(part)
		if !IsValidAddress(entry) {
			invalid = append(invalid, entry)
			continue
		}
		addresses = append(addresses, common.HexToAddress(entry))
	}

	if len(invalid) > 0 {
		return nil, &AddressError{Invalid: invalid}
	}
	return addresses, nil
}
