package crypto

import (
	"crypto/subtle"
	"fmt"
)

// HashSecret хеширует PIN или ответ на контрольный вопрос через Argon2id
func HashSecret(secret string, salt []byte) ([]byte, error) {
	hash, err := derive(secret, contextVerify, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}
	return hash, nil
}

// VerifySecret пересчитывает хеш и сравнивает его за постоянное время.
// Пустой секрет или поврежденная соль дают false.
func VerifySecret(secret string, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}

	computed, err := HashSecret(secret, salt)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(computed, expected) == 1
}
