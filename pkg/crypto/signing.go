package crypto

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type Domain [4]byte

// DomainBusMessage prefixes the signing root of bus messages.
var DomainBusMessage = Domain{'d', 'i', 'n', 0x01}

var (
	GenerateKey     = ethcrypto.GenerateKey
	HexToECDSA      = ethcrypto.HexToECDSA
	PubkeyToAddress = ethcrypto.PubkeyToAddress
)

// signedFields is everything but the signature itself.
type signedFields struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"ts"`
	Role          bus.Role      `json:"role"`
	Topic         bus.Topic     `json:"topic"`
	RoutingKey    string        `json:"routingKey,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`
	TTL           time.Duration `json:"ttl,omitempty"`
	Priority      bus.Priority  `json:"priority"`
	Payload       any           `json:"payload"`
}

func ComputeSigningRoot(msg *bus.Message, domain Domain) (common.Hash, error) {
	data, err := json.Marshal(signedFields{
		ID:            msg.ID,
		Timestamp:     msg.Timestamp,
		Role:          msg.Role,
		Topic:         msg.Topic,
		RoutingKey:    msg.RoutingKey,
		CorrelationID: msg.CorrelationID,
		TTL:           msg.TTL,
		Priority:      msg.Priority,
		Payload:       msg.Payload,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not encode message %s: %v", msg.ID, err)
	}
	return ethcrypto.Keccak256Hash(domain[:], data), nil
}

// SignMessage sets the hex encoded secp256k1 signature of msg.
func SignMessage(msg *bus.Message, key *ecdsa.PrivateKey) error {
	root, err := ComputeSigningRoot(msg, DomainBusMessage)
	if err != nil {
		return err
	}
	signature, err := ethcrypto.Sign(root.Bytes(), key)
	if err != nil {
		return fmt.Errorf("could not sign message %s: %v", msg.ID, err)
	}
	msg.Signature = hexutil.Encode(signature)
	return nil
}

// RecoverSigner returns the address that produced the signature of msg.
func RecoverSigner(msg *bus.Message) (common.Address, error) {
	signature, err := hexutil.Decode(msg.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("could not decode signature of message %s: %v", msg.ID, err)
	}
	root, err := ComputeSigningRoot(msg, DomainBusMessage)
	if err != nil {
		return common.Address{}, err
	}
	publicKey, err := ethcrypto.SigToPub(root.Bytes(), signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("could not recover signer of message %s: %v", msg.ID, err)
	}
	return ethcrypto.PubkeyToAddress(*publicKey), nil
}

// VerifyMessage checks that msg was signed by one of allowed, or by anyone when allowed is empty.
func VerifyMessage(msg *bus.Message, allowed ...common.Address) error {
	signer, err := RecoverSigner(msg)
	if err != nil {
		return err
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, address := range allowed {
		if address == signer {
			return nil
		}
	}
	return fmt.Errorf("message %s signed by unknown signer %s", msg.ID, signer.Hex())
}

func NewVerifier(allowed ...common.Address) bus.Verifier {
	return func(msg *bus.Message) error {
		return VerifyMessage(msg, allowed...)
	}
}
