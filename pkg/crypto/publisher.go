package crypto

import (
	"context"
	"crypto/ecdsa"

	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, msg *bus.Message)
}

// SigningPublisher signs every unsigned message before handing it to the
// next publisher. Messages that already carry a signature pass unchanged.
type SigningPublisher struct {
	next   Publisher
	key    *ecdsa.PrivateKey
	logger *zap.Logger
}

func NewSigningPublisher(next Publisher, key *ecdsa.PrivateKey, zapLogger *zap.Logger) *SigningPublisher {
	return &SigningPublisher{
		next:   next,
		key:    key,
		logger: zapLogger,
	}
}

func (p *SigningPublisher) Address() common.Address {
	return PubkeyToAddress(p.key.PublicKey)
}

func (p *SigningPublisher) Publish(ctx context.Context, msg *bus.Message) {
	if msg.Signature == "" {
		if err := SignMessage(msg, p.key); err != nil {
			p.logger.Sugar().Warnw("could not sign message", "id", msg.ID, "topic", msg.Topic, "error", err)
			return
		}
	}
	p.next.Publish(ctx, msg)
}
