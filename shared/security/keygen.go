package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/waterbird-i/wbapi-backend/shared/models"
	"github.com/waterbird-i/wbapi-backend/shared/utils"
)

const (
	accessKeySuffixDigits = 12
	secretKeySuffixDigits = 16
)

// KeyGenerator derives access/secret key pairs from salt + seed + a random
// numeric suffix. The seed is the account name, or the email for accounts
// registered by email code.
type KeyGenerator struct {
	salt string
}

func NewKeyGenerator(salt string) *KeyGenerator {
	return &KeyGenerator{salt: salt}
}

func (g *KeyGenerator) Generate(seed string) (*models.DevKeyView, error) {
	accessSuffix, err := utils.RandomDigits(accessKeySuffixDigits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access key: %w", err)
	}
	secretSuffix, err := utils.RandomDigits(secretKeySuffixDigits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}
	return &models.DevKeyView{
		AccessKey: g.derive(seed, accessSuffix)[:32],
		SecretKey: g.derive(seed, secretSuffix),
	}, nil
}

func (g *KeyGenerator) derive(seed, suffix string) string {
	sum := sha256.Sum256([]byte(g.salt + seed + suffix))
	return hex.EncodeToString(sum[:])
}
