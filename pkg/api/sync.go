package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MessageType различает сообщения протокола синхронизации
type MessageType string

const (
	MessageHello MessageType = "hello"
	MessageBatch MessageType = "batch"
	MessageReady MessageType = "ready"
	MessageDone  MessageType = "done"
	MessageAbort MessageType = "abort"
)

// Envelope is the single frame exchanged by peers. Every transport
// delivers one envelope per message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"` // SessionID сессии отправителя
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Hello открывает сессию: кто я, чей это архив и что у меня есть
type Hello struct {
	Vectors   map[string]map[string]uint64 `json:"vectors"` // Vectors id записи -> версионный вектор
	DeviceID  string                       `json:"device_id"`
	PatientID string                       `json:"patient_id"`
}

// TransferRecord carries one serialized record with the sha256 of exactly those bytes
type TransferRecord struct {
	Record   json.RawMessage `json:"record"`
	Checksum string          `json:"checksum"` // hex sha256
}

// Batch содержит записи, которые партнер еще не видел полностью
type Batch struct {
	Records []TransferRecord `json:"records"`
}

// Ready сообщает, что отправитель слил батч и готов к фиксации
type Ready struct {
	Received int `json:"received"`
}

// Done сообщает об успешной фиксации у отправителя
type Done struct {
	Merged int `json:"merged"`
}

// Abort прерывает сессию у партнера без ожидания таймаута
type Abort struct {
	Reason string `json:"reason"`
}

// Checksum returns the hex sha256 of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewTransferRecord wraps serialized record bytes with their checksum
func NewTransferRecord(data []byte) TransferRecord {
	return TransferRecord{Record: data, Checksum: Checksum(data)}
}

// Verify reports whether the record bytes still match the checksum
func (t TransferRecord) Verify() bool {
	return Checksum(t.Record) == t.Checksum
}

// Encode builds an envelope frame
func Encode(msgType MessageType, sessionID string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType, SessionID: sessionID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		env.Payload = data
	}

	data, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope frame
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope without type")
	}
	return &env, nil
}

// Unpack decodes the envelope payload into v
func (e *Envelope) Unpack(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s message without payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
