// =============================
// File: internal/core/address.go
// =============================
package core

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// BurnAddress receives tokens that are permanently removed from circulation.
// Nothing in the engine can move a balance out of it.
var BurnAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// ZeroAddress is the mint sentinel.
var ZeroAddress = common.Address{}

// DeriveAddress computes a deterministic child address from a deployer and a
// nonce, CREATE-style: keccak256(deployer || nonce)[12:].
func DeriveAddress(deployer common.Address, nonce uint64) common.Address {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h := crypto.Keccak256(deployer.Bytes(), buf[:])
	return common.BytesToAddress(h[12:])
}

// NamedAddress derives a stable address from a label, used for singleton
// service accounts (treasury, factory, wrapper, router).
func NamedAddress(label string) common.Address {
	h := crypto.Keccak256([]byte(label))
	return common.BytesToAddress(h[12:])
}
