package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the trading key and produces action signatures. The
// venue verifies a secp256k1 signature over a keccak hash of the
// serialized action, nonce, and network (mainnet/testnet) flag.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key (with or without 0x prefix) and
// derives the wallet address.
func NewSigner(privateKeyHex string) (*Signer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the wallet address derived from the key.
func (s *Signer) Address() string {
	return strings.ToLower(s.address.Hex())
}

// signature is the r/s/v wire form.
type signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// signAction hashes the serialized action with its nonce and signs it.
func (s *Signer) signAction(action interface{}, nonce int64, isMainnet bool) (*signature, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize action: %w", err)
	}

	data := make([]byte, 0, len(payload)+9)
	data = append(data, payload...)
	for i := 7; i >= 0; i-- {
		data = append(data, byte(nonce>>(8*i)))
	}
	if isMainnet {
		data = append(data, 0x01)
	} else {
		data = append(data, 0x00)
	}

	digest := crypto.Keccak256(data)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign action: %w", err)
	}

	return &signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: int(sig[64]) + 27,
	}, nil
}
