package session

import (
    "context"
    "encoding/json"
    "time"

    "github.com/google/uuid"

    . "github.com/cerenakmese/SmartStream/coordination"
    . "github.com/cerenakmese/SmartStream/logging"
    . "github.com/cerenakmese/SmartStream/metrics"
)

const (
    EventSessionStart = "session_start"
    EventSessionEnd = "session_end"
    EventMigration = "migration"
    EventQualityReport = "quality_report"
)

const sessionLockTTL = time.Second * 5
const recoveryTTL = time.Second * 90

// NodePicker is the placement decision the store consults when a session
// is created, and the load release path when one ends.
type NodePicker interface {
    PickNode(ctx context.Context) (string, bool, error)
    ReleaseNode(ctx context.Context, nodeID string) error
}

// HistorySink receives archival events. Nil disables archival.
type HistorySink interface {
    Append(eventType string, sessionID string, nodeID string, data string)
}

type StoreConfig struct {
    Store Store
    Picker NodePicker
    History HistorySink
    LocalNodeID string
    SessionTTL time.Duration
}

// SessionStore owns the authoritative, TTL-bounded session records.
// Structural mutations (participant add/remove, deletion) run under a
// short-lived per-session lock. Per-user metrics fields are written
// without one: each field is logically owned by exactly one connection.
type SessionStore struct {
    store Store
    picker NodePicker
    history HistorySink
    localNodeID string
    sessionTTL time.Duration
}

func NewSessionStore(config StoreConfig) *SessionStore {
    return &SessionStore{
        store: config.Store,
        picker: config.Picker,
        history: config.History,
        localNodeID: config.LocalNodeID,
        sessionTTL: config.SessionTTL,
    }
}

func (sessions *SessionStore) appendHistory(eventType string, record *Record) {
    if sessions.history == nil {
        return
    }

    encodedRecord, _ := json.Marshal(record)

    sessions.history.Append(eventType, record.ID, record.NodeID, string(encodedRecord))
}

// Create places a new session on the least-loaded live node and writes its
// record. Creation is guarded by a per-session lock so two clients racing
// on the same requested id cannot both win.
func (sessions *SessionStore) Create(ctx context.Context, sessionID string, hostID string) (*Record, error) {
    if sessionID == "" {
        sessionID = uuid.New().String()
    }

    lock, err := sessions.store.Lock(ctx, CreateSessionLock(sessionID), sessionLockTTL)

    if err == ELockNotAcquired {
        return nil, ESessionExists
    }

    if err != nil {
        return nil, err
    }

    defer lock.Release(ctx)

    exists, err := sessions.store.Exists(ctx, SessionKey(sessionID))

    if err != nil {
        return nil, err
    }

    if exists {
        return nil, ESessionExists
    }

    nodeID, fallback, err := sessions.picker.PickNode(ctx)

    if err != nil {
        return nil, err
    }

    record := &Record{
        ID: sessionID,
        HostID: hostID,
        NodeID: nodeID,
        CreatedAt: time.Now().UnixMilli(),
        Status: StatusActive,
        ManagerFallback: fallback,
        Participants: []Participant{ },
        UserMetrics: make(map[string]Sample),
    }

    if err := sessions.store.SetFields(ctx, SessionKey(sessionID), record.ToFields()); err != nil {
        // The placement already charged a load unit to the node. Give it
        // back or the node stays over-counted forever.
        sessions.picker.ReleaseNode(ctx, nodeID)

        return nil, err
    }

    sessions.store.Expire(ctx, SessionKey(sessionID), sessions.sessionTTL)

    Log.Infof("Session %s created on node %s for host %s", sessionID, nodeID, hostID)
    sessions.appendHistory(EventSessionStart, record)

    return record, nil
}

func (sessions *SessionStore) Get(ctx context.Context, sessionID string) (*Record, error) {
    fields, err := sessions.store.Fields(ctx, SessionKey(sessionID))

    if err != nil {
        return nil, err
    }

    if len(fields) == 0 {
        return nil, ESessionNotFound
    }

    return RecordFromFields(fields), nil
}

// Join adds a participant and refreshes the record TTL so a session with
// active participants cannot silently expire. Joining twice is a no-op
// apart from the TTL refresh.
func (sessions *SessionStore) Join(ctx context.Context, sessionID string, userID string, username string) ([]Participant, error) {
    lock, err := sessions.store.Lock(ctx, SessionLock(sessionID), sessionLockTTL)

    if err != nil {
        return nil, err
    }

    defer lock.Release(ctx)

    record, err := sessions.Get(ctx, sessionID)

    if err != nil {
        return nil, err
    }

    alreadyJoined := false

    for _, participant := range record.Participants {
        if participant.UserID == userID {
            alreadyJoined = true

            break
        }
    }

    if !alreadyJoined {
        record.Participants = append(record.Participants, Participant{
            UserID: userID,
            Username: username,
            JoinedAt: time.Now().UnixMilli(),
        })

        encodedParticipants, _ := json.Marshal(record.Participants)

        if err := sessions.store.SetFields(ctx, SessionKey(sessionID), map[string]string{ FieldParticipants: string(encodedParticipants) }); err != nil {
            return nil, err
        }
    }

    sessions.store.Expire(ctx, SessionKey(sessionID), sessions.sessionTTL)
    sessions.store.Put(ctx, RecoveryKey(userID), sessionID, recoveryTTL)

    return record.Participants, nil
}

// Leave removes a participant and its metrics. When the last participant
// leaves the record is archived and deleted inside the same lock, so an
// external observer never sees a session with zero participants.
func (sessions *SessionStore) Leave(ctx context.Context, sessionID string, userID string) error {
    lock, err := sessions.store.Lock(ctx, SessionLock(sessionID), sessionLockTTL)

    if err != nil {
        return err
    }

    defer lock.Release(ctx)

    record, err := sessions.Get(ctx, sessionID)

    if err != nil {
        return err
    }

    remaining := make([]Participant, 0, len(record.Participants))
    wasParticipant := false

    for _, participant := range record.Participants {
        if participant.UserID == userID {
            wasParticipant = true

            continue
        }

        remaining = append(remaining, participant)
    }

    // A stray or duplicate leave must not end a session it was never part
    // of, least of all one still waiting for its first join.
    if !wasParticipant {
        return nil
    }

    sessions.store.DeleteField(ctx, SessionKey(sessionID), MetricsField(userID))
    sessions.store.Delete(ctx, RecoveryKey(userID))
    delete(record.UserMetrics, userID)

    if len(remaining) == 0 {
        record.Participants = remaining
        record.Status = StatusEnded

        return sessions.remove(ctx, record)
    }

    record.Participants = remaining
    encodedParticipants, _ := json.Marshal(remaining)

    if err := sessions.store.SetFields(ctx, SessionKey(sessionID), map[string]string{ FieldParticipants: string(encodedParticipants) }); err != nil {
        return err
    }

    sessions.store.Expire(ctx, SessionKey(sessionID), sessions.sessionTTL)

    return nil
}

// Terminate ends a session explicitly regardless of remaining
// participants.
func (sessions *SessionStore) Terminate(ctx context.Context, sessionID string) error {
    lock, err := sessions.store.Lock(ctx, SessionLock(sessionID), sessionLockTTL)

    if err != nil {
        return err
    }

    defer lock.Release(ctx)

    record, err := sessions.Get(ctx, sessionID)

    if err != nil {
        return err
    }

    record.Status = StatusEnded

    for _, participant := range record.Participants {
        sessions.store.Delete(ctx, RecoveryKey(participant.UserID))
    }

    return sessions.remove(ctx, record)
}

func (sessions *SessionStore) remove(ctx context.Context, record *Record) error {
    if err := sessions.store.Delete(ctx, SessionKey(record.ID)); err != nil {
        return err
    }

    sessions.picker.ReleaseNode(ctx, record.NodeID)
    sessions.appendHistory(EventSessionEnd, record)

    Log.Infof("Session %s ended and archived", record.ID)

    return nil
}

// Heartbeat refreshes the record TTL.
func (sessions *SessionStore) Heartbeat(ctx context.Context, sessionID string) error {
    exists, err := sessions.store.Exists(ctx, SessionKey(sessionID))

    if err != nil {
        return err
    }

    if !exists {
        return ESessionNotFound
    }

    return sessions.store.Expire(ctx, SessionKey(sessionID), sessions.sessionTTL)
}

func (sessions *SessionStore) ListActive(ctx context.Context) ([]*Record, error) {
    keys, err := sessions.store.Keys(ctx, SessionKeyPrefix)

    if err != nil {
        return nil, err
    }

    records := make([]*Record, 0, len(keys))

    for _, key := range keys {
        fields, err := sessions.store.Fields(ctx, key)

        if err != nil || len(fields) == 0 {
            continue
        }

        records = append(records, RecordFromFields(fields))
    }

    return records, nil
}

// UpdateUserMetrics mirrors a connection's current sample into the
// session record for durability and cross-node visibility. It is an
// independent single-field write: no lock is taken because the field is
// owned by exactly one connection.
func (sessions *SessionStore) UpdateUserMetrics(ctx context.Context, sessionID string, userID string, sample Sample) error {
    record, err := sessions.Get(ctx, sessionID)

    if err != nil {
        return err
    }

    isParticipant := false

    for _, participant := range record.Participants {
        if participant.UserID == userID {
            isParticipant = true

            break
        }
    }

    // Metrics exist only for current participants.
    if !isParticipant {
        return nil
    }

    encodedSample, _ := json.Marshal(sample)

    if err := sessions.store.SetFields(ctx, SessionKey(sessionID), map[string]string{ MetricsField(userID): string(encodedSample) }); err != nil {
        return err
    }

    return sessions.store.Expire(ctx, SessionKey(sessionID), sessions.sessionTTL)
}

// NoteDisconnect refreshes the recovery pointer for a user whose
// connection dropped without an explicit leave, opening the rejoin window
// from the moment of the drop rather than the moment of the join.
func (sessions *SessionStore) NoteDisconnect(ctx context.Context, sessionID string, userID string) error {
    return sessions.store.Put(ctx, RecoveryKey(userID), sessionID, recoveryTTL)
}

// RecoverSession returns the last known session for a disconnected user
// if it still exists, letting a reconnecting client rejoin transparently.
func (sessions *SessionStore) RecoverSession(ctx context.Context, userID string) (string, bool, error) {
    sessionID, ok, err := sessions.store.Get(ctx, RecoveryKey(userID))

    if err != nil || !ok {
        return "", false, err
    }

    exists, err := sessions.store.Exists(ctx, SessionKey(sessionID))

    if err != nil || !exists {
        return "", false, err
    }

    return sessionID, true, nil
}

// CountOwnedBy reports how many live session records name the given node.
func (sessions *SessionStore) CountOwnedBy(ctx context.Context, nodeID string) (int, error) {
    records, err := sessions.ListActive(ctx)

    if err != nil {
        return 0, err
    }

    count := 0

    for _, record := range records {
        if record.NodeID == nodeID {
            count++
        }
    }

    return count, nil
}
