// Package sync runs peer-to-peer sync sessions between two devices of the
// same patient. Both peers run the same Coordinator.Run; nothing is written
// locally before both sides have merged and exchanged Ready.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/medpass/internal/audit"
	"github.com/iudanet/medpass/internal/crdt"
	"github.com/iudanet/medpass/internal/identity"
	"github.com/iudanet/medpass/internal/merge"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/record"
	"github.com/iudanet/medpass/internal/storage"
	"github.com/iudanet/medpass/pkg/api"
)

// abortSendTimeout ограничивает отправку Abort после ошибки
const abortSendTimeout = time.Second

// Config holds the per-phase limits of a session
type Config struct {
	NegotiateTimeout time.Duration
	TransferTimeout  time.Duration
	LockWait         time.Duration
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		NegotiateTimeout: 30 * time.Second,
		TransferTimeout:  2 * time.Minute,
		LockWait:         10 * time.Second,
	}
}

// Result contains sync session results
type Result struct {
	SessionID string
	PeerID    string
	Sent      int // количество отправленных записей
	Received  int // количество полученных записей
	Merged    int // количество записей, изменивших локальное состояние
	Imported  int // количество новых для этого устройства записей
	Conflicts int // количество разрешенных конкурентных правок
	Skipped   int // количество отброшенных записей (контрольная сумма, формат)
}

// Coordinator drives sync sessions of one device
type Coordinator struct {
	records  *record.Store
	ledger   *audit.Ledger
	devices  *identity.Devices
	engine   *merge.Engine
	locks    *LockManager
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	cfg      Config
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithObserver subscribes to session state changes
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithClock overrides the clock used for backup timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator. locks may be shared between
// coordinators of the same store; nil creates a private one.
func NewCoordinator(
	records *record.Store,
	ledger *audit.Ledger,
	devices *identity.Devices,
	locks *LockManager,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Coordinator {
	if locks == nil {
		locks = NewLockManager()
	}
	c := &Coordinator{
		records: records,
		ledger:  ledger,
		devices: devices,
		engine:  merge.NewEngine(records.DeviceID(), records.PatientID(), logger),
		locks:   locks,
		logger:  logger,
		now:     time.Now,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// session is the state of one Run call
type session struct {
	transport Transport
	result    *Result
	peer      *models.BackupDevice
	id        string
	state     State
}

// Run performs one full session with peer over t. The transport is not
// closed; the caller owns it.
//
// Cancelling ctx before commit returns the session to Idle with
// models.ErrSessionAborted. A phase timeout fails it with
// models.ErrSessionTimeout.
func (c *Coordinator) Run(ctx context.Context, peer *models.BackupDevice, t Transport) (*Result, error) {
	if peer == nil {
		return nil, fmt.Errorf("%w: peer is required", models.ErrInvalidInput)
	}

	s := &session{
		id:        uuid.New().String(),
		peer:      peer,
		transport: t,
		state:     StateIdle,
		result:    &Result{PeerID: peer.ID},
	}
	s.result.SessionID = s.id

	c.logger.Info("Starting sync session", "session_id", s.id, "peer_id", peer.ID)

	if err := c.run(ctx, s); err != nil {
		return s.result, c.fail(ctx, s, err)
	}

	c.logger.Info("Sync session committed",
		"session_id", s.id,
		"peer_id", peer.ID,
		"sent", s.result.Sent,
		"received", s.result.Received,
		"merged", s.result.Merged,
		"imported", s.result.Imported,
		"conflicts", s.result.Conflicts,
		"skipped", s.result.Skipped,
	)
	return s.result, nil
}

func (c *Coordinator) run(ctx context.Context, s *session) error {
	// Negotiating
	c.transition(s, StateNegotiating, nil)

	device, err := c.devices.Get(ctx, s.peer.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: device %s is not paired", models.ErrSessionAborted, s.peer.ID)
		}
		return err
	}
	s.peer = device

	local, err := c.records.Vectors(ctx)
	if err != nil {
		return err
	}

	hello := api.Hello{
		DeviceID:  c.records.DeviceID(),
		PatientID: c.records.PatientID(),
		Vectors:   make(map[string]map[string]uint64, len(local)),
	}
	for id, vv := range local {
		hello.Vectors[id] = vv
	}
	if err := c.send(ctx, s, api.MessageHello, hello); err != nil {
		return err
	}

	var peerHello api.Hello
	if err := c.receive(ctx, s, api.MessageHello, c.cfg.NegotiateTimeout, &peerHello); err != nil {
		return err
	}
	if peerHello.DeviceID != s.peer.ID {
		return fmt.Errorf("%w: expected device %s, got %s", models.ErrSessionAborted, s.peer.ID, peerHello.DeviceID)
	}
	if peerHello.PatientID != c.records.PatientID() {
		return fmt.Errorf("%w: peer belongs to another patient", models.ErrSessionAborted)
	}

	remote := make(map[string]crdt.VersionVector, len(peerHello.Vectors))
	for id, vv := range peerHello.Vectors {
		remote[id] = vv
	}

	diff := diffIDs(local, remote)
	release, err := c.locks.Acquire(ctx, diff, c.cfg.LockWait)
	if err != nil {
		return err
	}
	defer release()

	c.logger.Debug("Negotiated", "session_id", s.id, "diff", len(diff))

	// Transferring
	c.transition(s, StateTransferring, nil)

	batch, err := c.outgoing(ctx, diff, remote)
	if err != nil {
		return err
	}
	s.result.Sent = len(batch.Records)
	if err := c.send(ctx, s, api.MessageBatch, batch); err != nil {
		return err
	}

	var incoming api.Batch
	if err := c.receive(ctx, s, api.MessageBatch, c.cfg.TransferTimeout, &incoming); err != nil {
		return err
	}
	s.result.Received = len(incoming.Records)

	// Merging
	c.transition(s, StateMerging, nil)

	expected, ops, err := c.merge(ctx, s, diff, incoming.Records)
	if err != nil {
		return err
	}

	backupOp, err := c.devices.BackupOp(s.peer, c.now())
	if err != nil {
		return err
	}
	ops = append(ops, backupOp)

	if err := c.send(ctx, s, api.MessageReady, api.Ready{Received: s.result.Received}); err != nil {
		return err
	}
	if err := c.receive(ctx, s, api.MessageReady, c.cfg.TransferTimeout, nil); err != nil {
		return err
	}

	// Committed
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.records.CommitSync(ctx, expected, ops); err != nil {
		return err
	}
	c.transition(s, StateCommitted, nil)

	// Партнер мог уже закрыть соединение; Done не обязателен
	if err := c.send(ctx, s, api.MessageDone, api.Done{Merged: s.result.Merged}); err != nil {
		c.logger.Debug("Failed to send done", "session_id", s.id, "error", err)
	}
	return nil
}

// outgoing collects local records the peer has not fully seen
func (c *Coordinator) outgoing(ctx context.Context, diff []string, remote map[string]crdt.VersionVector) (api.Batch, error) {
	batch := api.Batch{Records: make([]api.TransferRecord, 0, len(diff))}

	for _, id := range diff {
		rec, err := c.records.Lookup(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return api.Batch{}, err
		}

		if peerVec, ok := remote[id]; ok && peerVec.DominatesOrEqual(rec.VersionVector) {
			continue
		}

		data, err := rec.Marshal()
		if err != nil {
			return api.Batch{}, err
		}
		batch.Records = append(batch.Records, api.NewTransferRecord(data))
	}

	return batch, nil
}

// merge resolves every received record and buffers the resulting ops.
// expected maps each resolved id to its local vector before the merge.
func (c *Coordinator) merge(ctx context.Context, s *session, diff []string, received []api.TransferRecord) (map[string]crdt.VersionVector, []storage.Op, error) {
	inDiff := make(map[string]struct{}, len(diff))
	for _, id := range diff {
		inDiff[id] = struct{}{}
	}

	expected := make(map[string]crdt.VersionVector)
	pending := make(map[string]*models.Record)
	var ops []storage.Op

	for _, tr := range received {
		if !tr.Verify() {
			s.result.Skipped++
			c.logger.Warn("Dropping transferred record",
				"session_id", s.id,
				"peer_id", s.peer.ID,
				"error", models.ErrIntegrityMismatch,
			)
			continue
		}

		remote, err := models.UnmarshalRecord(tr.Record)
		if err != nil {
			s.result.Skipped++
			c.logger.Warn("Dropping malformed record", "session_id", s.id, "error", err)
			continue
		}

		if _, ok := inDiff[remote.ID]; !ok {
			s.result.Skipped++
			c.logger.Warn("Dropping record outside negotiated set", "session_id", s.id, "record_id", remote.ID)
			continue
		}

		local, ok := pending[remote.ID]
		if !ok {
			local, err = c.records.Lookup(ctx, remote.ID)
			switch {
			case errors.Is(err, models.ErrNotFound):
				local = nil
			case err != nil:
				return nil, nil, err
			}
			if local != nil {
				expected[remote.ID] = local.VersionVector.Clone()
			} else {
				expected[remote.ID] = nil
			}
		}

		out, err := c.engine.Resolve(local, remote)
		if err != nil {
			s.result.Skipped++
			c.logger.Warn("Failed to merge record", "session_id", s.id, "record_id", remote.ID, "error", err)
			continue
		}

		if out.Decision.IsConflict() {
			s.result.Conflicts++
		}
		if !out.Changed {
			continue
		}

		op, err := c.records.SaveOp(out.Record)
		if err != nil {
			s.result.Skipped++
			c.logger.Warn("Merged record is invalid", "session_id", s.id, "record_id", remote.ID, "error", err)
			continue
		}
		ops = append(ops, op)
		for _, entry := range out.Entries {
			auditOp, _, err := c.ledger.Prepare(entry)
			if err != nil {
				return nil, nil, err
			}
			ops = append(ops, auditOp)
		}

		pending[remote.ID] = out.Record
		s.result.Merged++
		if out.Decision == merge.DecisionImport {
			s.result.Imported++
		}
	}

	return expected, ops, nil
}

func (c *Coordinator) send(ctx context.Context, s *session, msgType api.MessageType, payload any) error {
	data, err := api.Encode(msgType, s.id, payload)
	if err != nil {
		return err
	}

	if err := s.transport.Send(ctx, s.peer.ID, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: failed to send %s: %w", models.ErrSessionAborted, msgType, err)
	}
	return nil
}

// receive waits for the next message of type want within timeout and
// decodes its payload into v (nil skips decoding)
func (c *Coordinator) receive(ctx context.Context, s *session, want api.MessageType, timeout time.Duration, v any) error {
	phaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := s.transport.Receive(phaseCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no %s from %s within %s", models.ErrSessionTimeout, want, s.peer.ID, timeout)
		}
		return fmt.Errorf("%w: %w", models.ErrSessionAborted, err)
	}

	env, err := api.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrSessionAborted, err)
	}

	if env.Type == api.MessageAbort {
		var abort api.Abort
		_ = env.Unpack(&abort)
		return fmt.Errorf("%w: peer aborted: %s", models.ErrSessionAborted, abort.Reason)
	}
	if env.Type != want {
		return fmt.Errorf("%w: expected %s, got %s", models.ErrSessionAborted, want, env.Type)
	}

	if v == nil {
		return nil
	}
	if err := env.Unpack(v); err != nil {
		return fmt.Errorf("%w: %w", models.ErrSessionAborted, err)
	}
	return nil
}

// fail classifies err, moves the session to its final state and tells the
// peer. Nothing has been written when fail is called.
func (c *Coordinator) fail(ctx context.Context, s *session, err error) error {
	state := StateFailed
	switch {
	case ctx.Err() != nil:
		state = StateIdle
		err = fmt.Errorf("%w: %w", models.ErrSessionAborted, ctx.Err())
	case isSessionError(err):
	default:
		err = fmt.Errorf("%w: %w", models.ErrSessionAborted, err)
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortSendTimeout)
	defer cancel()
	if data, encErr := api.Encode(api.MessageAbort, s.id, api.Abort{Reason: err.Error()}); encErr == nil {
		_ = s.transport.Send(sendCtx, s.peer.ID, data)
	}

	c.logger.Warn("Sync session ended without commit",
		"session_id", s.id,
		"peer_id", s.peer.ID,
		"phase", s.state,
		"state", state,
		"error", err,
	)
	c.transition(s, state, err)
	return err
}

func (c *Coordinator) transition(s *session, state State, err error) {
	s.state = state
	if c.observer != nil {
		c.observer(Event{SessionID: s.id, PeerID: s.peer.ID, State: state, Err: err})
	}
}

func isSessionError(err error) bool {
	return errors.Is(err, models.ErrSessionAborted) ||
		errors.Is(err, models.ErrSessionTimeout) ||
		errors.Is(err, models.ErrSessionConflict) ||
		errors.Is(err, models.ErrStorageFailure)
}

// diffIDs returns, in sorted order, the ids whose vectors differ between
// the two sides, ids known to only one side included
func diffIDs(local, remote map[string]crdt.VersionVector) []string {
	var ids []string
	for id, vv := range local {
		if other, ok := remote[id]; !ok || !vv.Equal(other) {
			ids = append(ids, id)
		}
	}
	for id := range remote {
		if _, ok := local[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
