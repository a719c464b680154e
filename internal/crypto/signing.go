package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// SigningKey is a device-independent patient key pair. Only the public half
// is ever stored in clear.
type SigningKey struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateSigningKey creates a fresh ed25519 key pair
func GenerateSigningKey() (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &SigningKey{Public: pub, Private: priv}, nil
}

// Seal шифрует приватный ключ ключом, выведенным из PIN.
// owner привязывает шифротекст к идентичности пациента.
func (k *SigningKey) Seal(pin, owner string) (sealed, salt []byte, err error) {
	salt, err = GenerateSalt()
	if err != nil {
		return nil, nil, err
	}

	key, err := DeriveSealingKey(pin, salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	sealed, err = Encrypt(k.Private.Seed(), key, []byte(owner))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal signing key: %w", err)
	}

	return sealed, salt, nil
}

// OpenSigningKey восстанавливает пару ключей из запечатанного seed.
// Неверный PIN дает ошибку, оборачивающую ErrDecrypt.
func OpenSigningKey(sealed, salt []byte, pin, owner string) (*SigningKey, error) {
	key, err := DeriveSealingKey(pin, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	seed, err := Decrypt(sealed, key, []byte(owner))
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("sealed seed has %d bytes: %w", len(seed), ErrDecrypt)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &SigningKey{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}
