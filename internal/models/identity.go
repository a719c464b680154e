package models

import "time"

// PatientIdentity is the single owner identity of a local store.
// Hashes and salts are base64 encoded; plaintext PIN and answers are never stored.
type PatientIdentity struct {
	CreatedAt          time.Time `json:"created_at"`
	LastModified       time.Time `json:"last_modified"`
	ID                 string    `json:"id"`        // ID стабильный глобальный идентификатор пациента
	DeviceID           string    `json:"device_id"` // DeviceID идентификатор этой установки
	PublicKey          string    `json:"public_key"`
	Name               string    `json:"name"`
	NationalID         string    `json:"national_id,omitempty"`
	PINHash            string    `json:"pin_hash"`
	PINSalt            string    `json:"pin_salt"`
	RecoveryQuestion   string    `json:"recovery_question"`
	RecoveryAnswerHash string    `json:"recovery_answer_hash"`
	RecoverySalt       string    `json:"recovery_salt"`
	SealedSigningKey   string    `json:"sealed_signing_key"` // SealedSigningKey приватный ключ, зашифрованный ключом из PIN
	KeySalt            string    `json:"key_salt"`
}

// TransportType identifies how a paired device is reached.
type TransportType string

const (
	TransportBLE       TransportType = "ble"
	TransportDHT       TransportType = "dht"
	TransportNFC       TransportType = "nfc"
	TransportWebsocket TransportType = "websocket"
	TransportLocal     TransportType = "local" // TransportLocal другая база на этой же машине
	TransportMock      TransportType = "mock"
)

// Valid reports whether t is a known transport type.
func (t TransportType) Valid() bool {
	switch t {
	case TransportBLE, TransportDHT, TransportNFC, TransportWebsocket, TransportLocal, TransportMock:
		return true
	}
	return false
}

// BackupDevice is a peer the patient has paired with.
type BackupDevice struct {
	LastSeen       *time.Time    `json:"last_seen,omitempty"`
	LastBackupDate *time.Time    `json:"last_backup_date,omitempty"`
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	PublicKey      string        `json:"public_key"`
	TransportType  TransportType `json:"transport_type"`
	Relationship   string        `json:"relationship,omitempty"` // Relationship "family", "friend", "clinic"
	DHTAddress     string        `json:"dht_address,omitempty"`
	BackupCount    int           `json:"backup_count"`
	IsDHTNode      bool          `json:"is_dht_node"`
}
