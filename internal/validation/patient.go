package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// PINPattern определяет допустимый формат PIN: ровно 6 цифр
var PINPattern = regexp.MustCompile(`^[0-9]{6}$`)

const (
	// MaxNameLen максимальная длина имени пациента
	MaxNameLen = 128
	// MaxNationalIDLen максимальная длина национального идентификатора
	MaxNationalIDLen = 64
)

// ValidatePIN проверяет, что PIN состоит ровно из 6 цифр
func ValidatePIN(pin string) error {
	if pin == "" {
		return fmt.Errorf("PIN cannot be empty")
	}

	if !PINPattern.MatchString(pin) {
		return fmt.Errorf("PIN must be exactly 6 digits")
	}

	return nil
}

// ValidateName проверяет имя пациента после обрезки пробелов
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if utf8.RuneCountInString(name) > MaxNameLen {
		return fmt.Errorf("name must not exceed %d characters", MaxNameLen)
	}

	return nil
}

// ValidateNationalID проверяет необязательный национальный идентификатор
func ValidateNationalID(id string) error {
	if utf8.RuneCountInString(strings.TrimSpace(id)) > MaxNationalIDLen {
		return fmt.Errorf("national id must not exceed %d characters", MaxNationalIDLen)
	}
	return nil
}

// ValidateRecoveryAnswer требует непустой ответ на контрольный вопрос
func ValidateRecoveryAnswer(answer string) error {
	if strings.TrimSpace(answer) == "" {
		return fmt.Errorf("recovery answer cannot be empty")
	}
	return nil
}
