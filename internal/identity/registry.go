// Package identity owns the single patient identity of a store and the
// registry of paired backup devices.
package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/medpass/internal/crypto"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/storage"
	"github.com/iudanet/medpass/internal/validation"
)

// currentKey is the only row of the identity table.
const currentKey = "current"

// DefaultRecoveryQuestion is offered when onboarding does not supply one.
const DefaultRecoveryQuestion = "What is your mother's maiden name?"

// CreateParams contains the onboarding input. PIN and RecoveryAnswer are
// hashed and never persisted in clear.
type CreateParams struct {
	Name             string
	NationalID       string
	PIN              string
	RecoveryQuestion string
	RecoveryAnswer   string
}

// Registry manages the patient identity
type Registry struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry создает реестр идентичности поверх store
func NewRegistry(store storage.Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create runs onboarding. Only one identity may exist per store.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*models.PatientIdentity, error) {
	if err := validateCreate(p); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}

	existing, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrAlreadyExists
	}

	now := r.now()
	ident := &models.PatientIdentity{
		ID:               uuid.New().String(),
		DeviceID:         uuid.New().String(),
		Name:             strings.TrimSpace(p.Name),
		NationalID:       strings.TrimSpace(p.NationalID),
		RecoveryQuestion: p.RecoveryQuestion,
		CreatedAt:        now,
		LastModified:     now,
	}
	if ident.RecoveryQuestion == "" {
		ident.RecoveryQuestion = DefaultRecoveryQuestion
	}

	if err := setPIN(ident, p.PIN); err != nil {
		return nil, err
	}

	answerHash, answerSalt, err := hashSecret(NormalizeAnswer(p.RecoveryAnswer))
	if err != nil {
		return nil, fmt.Errorf("failed to hash recovery answer: %w", err)
	}
	ident.RecoveryAnswerHash = answerHash
	ident.RecoverySalt = answerSalt

	key, err := crypto.GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	if err := sealKey(ident, key, p.PIN); err != nil {
		return nil, err
	}

	if err := r.save(ctx, ident); err != nil {
		return nil, err
	}

	r.logger.Info("Patient identity created", "patient_id", ident.ID, "device_id", ident.DeviceID)

	return ident, nil
}

// Enroll installs an existing patient identity on a new device, such as a
// clinic tablet restoring the patient's records. The sealed key and hashes
// are copied as they are; the new installation gets its own device id.
// pin must unlock from.
func (r *Registry) Enroll(ctx context.Context, from *models.PatientIdentity, pin string) (*models.PatientIdentity, error) {
	if from == nil {
		return nil, fmt.Errorf("%w: identity is required", models.ErrInvalidInput)
	}

	ok, err := verify(pin, from.PINSalt, from.PINHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrInvalidPIN
	}

	existing, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.ID == from.ID {
			return existing, nil
		}
		return nil, models.ErrAlreadyExists
	}

	ident := *from
	ident.DeviceID = uuid.New().String()
	ident.LastModified = r.now()

	if err := r.save(ctx, &ident); err != nil {
		return nil, err
	}

	r.logger.Info("Patient identity enrolled", "patient_id", ident.ID, "device_id", ident.DeviceID)
	return &ident, nil
}

// Current returns the stored identity, or nil without error when onboarding
// has not happened yet.
func (r *Registry) Current(ctx context.Context) (*models.PatientIdentity, error) {
	data, err := r.store.Get(ctx, storage.TableIdentity, currentKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read identity: %w", models.ErrStorageFailure, err)
	}

	var ident models.PatientIdentity
	if err := json.Unmarshal(data, &ident); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal identity: %w", models.ErrStorageFailure, err)
	}

	return &ident, nil
}

// VerifyPIN recomputes the PIN hash and compares it in constant time
func (r *Registry) VerifyPIN(ctx context.Context, pin string) (bool, error) {
	ident, err := r.require(ctx)
	if err != nil {
		return false, err
	}
	return verify(pin, ident.PINSalt, ident.PINHash)
}

// VerifyRecoveryAnswer checks the normalised answer against the stored hash
func (r *Registry) VerifyRecoveryAnswer(ctx context.Context, answer string) (bool, error) {
	ident, err := r.require(ctx)
	if err != nil {
		return false, err
	}
	return verify(NormalizeAnswer(answer), ident.RecoverySalt, ident.RecoveryAnswerHash)
}

// ChangePIN replaces the PIN and reseals the signing key under it
func (r *Registry) ChangePIN(ctx context.Context, oldPIN, newPIN string) error {
	if err := validation.ValidatePIN(newPIN); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}

	ident, err := r.require(ctx)
	if err != nil {
		return err
	}

	key, err := openKey(ident, oldPIN)
	if err != nil {
		return err
	}

	if err := setPIN(ident, newPIN); err != nil {
		return err
	}
	if err := sealKey(ident, key, newPIN); err != nil {
		return err
	}
	ident.LastModified = r.now()

	if err := r.save(ctx, ident); err != nil {
		return err
	}

	r.logger.Info("PIN changed", "patient_id", ident.ID)
	return nil
}

// ResetPIN is the recovery flow for a forgotten PIN. The old signing key
// cannot be unsealed without the PIN, so a new key pair is generated.
func (r *Registry) ResetPIN(ctx context.Context, recoveryAnswer, newPIN string) error {
	if err := validation.ValidatePIN(newPIN); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}

	ok, err := r.VerifyRecoveryAnswer(ctx, recoveryAnswer)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: recovery answer does not match", models.ErrInvalidPIN)
	}

	ident, err := r.require(ctx)
	if err != nil {
		return err
	}

	key, err := crypto.GenerateSigningKey()
	if err != nil {
		return err
	}
	if err := setPIN(ident, newPIN); err != nil {
		return err
	}
	if err := sealKey(ident, key, newPIN); err != nil {
		return err
	}
	ident.LastModified = r.now()

	if err := r.save(ctx, ident); err != nil {
		return err
	}

	r.logger.Warn("PIN reset through recovery question, signing key rotated", "patient_id", ident.ID)
	return nil
}

// SigningKey unseals the patient's signing key
func (r *Registry) SigningKey(ctx context.Context, pin string) (*crypto.SigningKey, error) {
	ident, err := r.require(ctx)
	if err != nil {
		return nil, err
	}
	return openKey(ident, pin)
}

// FactoryReset irreversibly erases every table of the store in one batch
func (r *Registry) FactoryReset(ctx context.Context) error {
	ops := make([]storage.Op, 0, len(storage.Tables))
	for _, table := range storage.Tables {
		ops = append(ops, storage.Op{Kind: storage.OpTruncate, Table: table})
	}

	if err := r.store.Batch(ctx, ops); err != nil {
		return fmt.Errorf("%w: factory reset failed: %w", models.ErrStorageFailure, err)
	}

	r.logger.Warn("Factory reset completed, all local data erased")
	return nil
}

// NormalizeAnswer trims and lower-cases a recovery answer before hashing
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

func (r *Registry) require(ctx context.Context) (*models.PatientIdentity, error) {
	ident, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, models.ErrNoIdentity
	}
	return ident, nil
}

func (r *Registry) save(ctx context.Context, ident *models.PatientIdentity) error {
	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	row := storage.Row{Table: storage.TableIdentity, ID: currentKey, Value: data}
	if err := r.store.Put(ctx, row); err != nil {
		return fmt.Errorf("%w: failed to save identity: %w", models.ErrStorageFailure, err)
	}
	return nil
}

func validateCreate(p CreateParams) error {
	return errors.Join(
		validation.ValidateName(p.Name),
		validation.ValidateNationalID(p.NationalID),
		validation.ValidatePIN(p.PIN),
		validation.ValidateRecoveryAnswer(p.RecoveryAnswer),
	)
}

func setPIN(ident *models.PatientIdentity, pin string) error {
	hash, salt, err := hashSecret(pin)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	ident.PINHash = hash
	ident.PINSalt = salt
	return nil
}

func sealKey(ident *models.PatientIdentity, key *crypto.SigningKey, pin string) error {
	sealed, salt, err := key.Seal(pin, ident.ID)
	if err != nil {
		return err
	}
	ident.PublicKey = base64.StdEncoding.EncodeToString(key.Public)
	ident.SealedSigningKey = base64.StdEncoding.EncodeToString(sealed)
	ident.KeySalt = base64.StdEncoding.EncodeToString(salt)
	return nil
}

func openKey(ident *models.PatientIdentity, pin string) (*crypto.SigningKey, error) {
	sealed, err := base64.StdEncoding.DecodeString(ident.SealedSigningKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed key: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(ident.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key salt: %w", err)
	}

	key, err := crypto.OpenSigningKey(sealed, salt, pin, ident.ID)
	if errors.Is(err, crypto.ErrDecrypt) {
		return nil, models.ErrInvalidPIN
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func hashSecret(secret string) (hash, salt string, err error) {
	rawSalt, err := crypto.GenerateSalt()
	if err != nil {
		return "", "", err
	}
	rawHash, err := crypto.HashSecret(secret, rawSalt)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(rawHash), base64.StdEncoding.EncodeToString(rawSalt), nil
}

func verify(secret, salt, hash string) (bool, error) {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}
	rawHash, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}
	return crypto.VerifySecret(secret, rawSalt, rawHash), nil
}
