package failover

import (
    "context"
    "encoding/json"
    "strconv"
    "time"

    "golang.org/x/sync/errgroup"

    . "github.com/cerenakmese/SmartStream/coordination"
    . "github.com/cerenakmese/SmartStream/logging"
    "github.com/cerenakmese/SmartStream/metrics"
    "github.com/cerenakmese/SmartStream/monitor"
    "github.com/cerenakmese/SmartStream/session"
)

const migrationLockTTL = time.Second * 5
const reclaimLockTTL = time.Second * 3

// CrashedSample is the pessimistic placeholder written for every
// participant of a session whose owner is not live: dependent displays and
// decisions reflect the outage immediately instead of waiting for the next
// ping that will never arrive.
var CrashedSample = metrics.Sample{ JitterMs: 9999, PacketLossPct: 100, HealthScore: 0 }

var recoveredSample = metrics.Sample{ JitterMs: 0, PacketLossPct: 0, HealthScore: 100 }

type CoordinatorConfig struct {
    Store Store
    NodeID string
    SessionTTL time.Duration
    SweepInterval time.Duration
    HealthSweepInterval time.Duration
    History session.HistorySink
}

// Coordinator detects dead nodes and restores ownership of their sessions
// to this node. Every node runs one; correctness relies only on the
// per-target locks, never on which coordinator's sweep fires first. A
// failed lock acquisition is evidence of contention, not an error: the
// death is already being handled and this cycle skips it.
type Coordinator struct {
    store Store
    nodeID string
    sessionTTL time.Duration
    sweepInterval time.Duration
    healthSweepInterval time.Duration
    history session.HistorySink
}

func NewCoordinator(config CoordinatorConfig) *Coordinator {
    return &Coordinator{
        store: config.Store,
        nodeID: config.NodeID,
        sessionTTL: config.SessionTTL,
        sweepInterval: config.SweepInterval,
        healthSweepInterval: config.HealthSweepInterval,
        history: config.History,
    }
}

// Start runs the failure sweep and the faster health sweep until the
// context is cancelled. Sweep errors are contained per cycle; the loops
// themselves never terminate on one.
func (coordinator *Coordinator) Start(ctx context.Context) error {
    group, groupCtx := errgroup.WithContext(ctx)

    group.Go(func() error {
        ticker := time.NewTicker(coordinator.sweepInterval)
        defer ticker.Stop()

        for {
            select {
            case <-groupCtx.Done():
                return nil
            case <-ticker.C:
                coordinator.DetectAndMigrate(groupCtx)
                coordinator.ReclaimOrphanedSessions(groupCtx)
            }
        }
    })

    group.Go(func() error {
        ticker := time.NewTicker(coordinator.healthSweepInterval)
        defer ticker.Stop()

        for {
            select {
            case <-groupCtx.Done():
                return nil
            case <-ticker.C:
                coordinator.ReconcileHealthStatus(groupCtx)
            }
        }
    })

    return group.Wait()
}

// DetectAndMigrate judges a node dead only when its liveness record has
// fully expired, not merely when it is missing from the active set, which
// can lag. Migration for a given dead node runs under an exclusive lock so
// at most one coordinator migrates it per death event.
func (coordinator *Coordinator) DetectAndMigrate(ctx context.Context) {
    activeNodes, err := coordinator.store.SetMembers(ctx, ActiveNodesSet)

    if err != nil {
        Log.Errorf("Dead node sweep unable to read the active node set: %v", err)

        return
    }

    // A node that is not itself live has no business migrating anything.
    if !contains(activeNodes, coordinator.nodeID) {
        return
    }

    knownNodes, err := coordinator.store.SetMembers(ctx, KnownNodesSet)

    if err != nil {
        Log.Errorf("Dead node sweep unable to read the known node set: %v", err)

        return
    }

    for _, targetNodeID := range knownNodes {
        if targetNodeID == coordinator.nodeID {
            continue
        }

        if contains(activeNodes, targetNodeID) {
            continue
        }

        exists, err := coordinator.store.Exists(ctx, NodeKey(targetNodeID))

        if err != nil || exists {
            continue
        }

        lock, err := coordinator.store.Lock(ctx, MigrationLock(targetNodeID), migrationLockTTL)

        if err != nil {
            // Another coordinator holds the migration. Skip this cycle.
            continue
        }

        Log.Warningf("Dead node detected: %s. Migrating its sessions to %s", targetNodeID, coordinator.nodeID)

        coordinator.migrateSessionsFrom(ctx, targetNodeID)
        lock.Release(ctx)
    }
}

func (coordinator *Coordinator) migrateSessionsFrom(ctx context.Context, deadNodeID string) {
    keys, err := coordinator.store.Keys(ctx, SessionKeyPrefix)

    if err != nil {
        Log.Errorf("Migration from %s unable to list sessions: %v", deadNodeID, err)

        return
    }

    migrated := 0

    for _, key := range keys {
        fields, err := coordinator.store.Fields(ctx, key)

        if err != nil || fields[session.FieldNodeID] != deadNodeID {
            continue
        }

        if err := coordinator.reassign(ctx, key, fields); err != nil {
            Log.Errorf("Unable to migrate session %s from %s: %v", fields[session.FieldID], deadNodeID, err)

            continue
        }

        migrated++

        Log.Infof("Session %s rescued from %s -> %s", fields[session.FieldID], deadNodeID, coordinator.nodeID)
    }

    if migrated > 0 {
        monitor.RecordMigration(migrated)

        Log.Infof("Migrated %d sessions from dead node %s to %s", migrated, deadNodeID, coordinator.nodeID)
    }
}

// ReclaimOrphanedSessions is the safety net that runs independently of
// explicit death detection: any session whose owner is not currently in
// the active set is taken over, one per-session lock at a time. It also
// repairs sessions whose owner flapped before the stricter TTL condition
// could trigger, and sessions created under a manager fallback before any
// worker existed. Running it twice back to back with no state change in
// between has no net effect.
func (coordinator *Coordinator) ReclaimOrphanedSessions(ctx context.Context) {
    keys, err := coordinator.store.Keys(ctx, SessionKeyPrefix)

    if err != nil {
        Log.Errorf("Orphan sweep unable to list sessions: %v", err)

        return
    }

    activeNodes, err := coordinator.store.SetMembers(ctx, ActiveNodesSet)

    if err != nil {
        Log.Errorf("Orphan sweep unable to read the active node set: %v", err)

        return
    }

    ownedSessions := 0

    for _, key := range keys {
        fields, err := coordinator.store.Fields(ctx, key)

        if err != nil || len(fields) == 0 {
            continue
        }

        ownerID := fields[session.FieldNodeID]

        if ownerID == coordinator.nodeID {
            ownedSessions++
        }

        if ownerID == "" || ownerID == coordinator.nodeID || contains(activeNodes, ownerID) {
            continue
        }

        lock, err := coordinator.store.Lock(ctx, ReclaimLock(key), reclaimLockTTL)

        if err != nil {
            continue
        }

        if err := coordinator.reassign(ctx, key, fields); err != nil {
            Log.Errorf("Unable to reclaim session %s: %v", fields[session.FieldID], err)
        } else {
            monitor.RecordOrphanReclaimed()
            ownedSessions++

            Log.Infof("Orphaned session %s (previous owner %s) -> %s", fields[session.FieldID], ownerID, coordinator.nodeID)
        }

        lock.Release(ctx)
    }

    monitor.SetActiveSessions(ownedSessions)
}

func (coordinator *Coordinator) reassign(ctx context.Context, key string, fields map[string]string) error {
    previousOwner := fields[session.FieldNodeID]

    err := coordinator.store.SetFields(ctx, key, map[string]string{
        session.FieldNodeID: coordinator.nodeID,
        session.FieldLastMigration: strconv.FormatInt(time.Now().UnixMilli(), 10),
    })

    if err != nil {
        return err
    }

    if err := coordinator.store.Expire(ctx, key, coordinator.sessionTTL); err != nil {
        return err
    }

    coordinator.transferLoad(ctx, previousOwner)

    if coordinator.history != nil {
        detail, _ := json.Marshal(map[string]string{ "from": previousOwner, "to": coordinator.nodeID })

        coordinator.history.Append(session.EventMigration, fields[session.FieldID], coordinator.nodeID, string(detail))
    }

    return nil
}

// transferLoad moves the migrated session's load unit to this node so a
// later termination releases it from the node that actually hosts it. The
// previous owner is only credited while its liveness record survives; an
// expired record has already reset to zero.
func (coordinator *Coordinator) transferLoad(ctx context.Context, previousOwner string) {
    if _, err := coordinator.store.IncrementField(ctx, NodeKey(coordinator.nodeID), "load", 1); err != nil {
        Log.Warningf("Unable to charge migrated session load to %s: %v", coordinator.nodeID, err)
    }

    exists, err := coordinator.store.Exists(ctx, NodeKey(previousOwner))

    if err != nil || !exists {
        return
    }

    load, err := coordinator.store.IncrementField(ctx, NodeKey(previousOwner), "load", -1)

    if err != nil {
        Log.Warningf("Unable to release migrated session load from %s: %v", previousOwner, err)

        return
    }

    if load < 0 {
        coordinator.store.SetFields(ctx, NodeKey(previousOwner), map[string]string{ "load": "0" })
    }
}

// ReconcileHealthStatus is the cheap, fast sweep bridging the gap until
// ownership is actually migrated. It uses the weaker membership-absence
// signal: a session whose owner is not in the active set but still reads
// active is flipped to network_error with worst-case metrics, and flipped
// back once the owner is live again.
func (coordinator *Coordinator) ReconcileHealthStatus(ctx context.Context) {
    keys, err := coordinator.store.Keys(ctx, SessionKeyPrefix)

    if err != nil {
        return
    }

    activeNodes, err := coordinator.store.SetMembers(ctx, ActiveNodesSet)

    if err != nil {
        return
    }

    for _, key := range keys {
        fields, err := coordinator.store.Fields(ctx, key)

        if err != nil || len(fields) == 0 || fields[session.FieldNodeID] == "" {
            continue
        }

        ownerAlive := contains(activeNodes, fields[session.FieldNodeID])
        status := fields[session.FieldStatus]

        if !ownerAlive && status == session.StatusActive {
            Log.Warningf("Session %s owner %s is down. Marking network_error", fields[session.FieldID], fields[session.FieldNodeID])

            coordinator.writeStatus(ctx, key, fields, session.StatusNetworkError, CrashedSample)
        } else if ownerAlive && status == session.StatusNetworkError {
            Log.Infof("Session %s owner %s is back. Marking active", fields[session.FieldID], fields[session.FieldNodeID])

            coordinator.writeStatus(ctx, key, fields, session.StatusActive, recoveredSample)
        }
    }
}

func (coordinator *Coordinator) writeStatus(ctx context.Context, key string, fields map[string]string, status string, sample metrics.Sample) {
    update := map[string]string{ session.FieldStatus: status }
    encodedSample, _ := json.Marshal(sample)

    for _, participant := range session.ParticipantsFromFields(fields) {
        update[session.MetricsField(participant.UserID)] = string(encodedSample)
    }

    if err := coordinator.store.SetFields(ctx, key, update); err != nil {
        Log.Errorf("Unable to update status of session %s: %v", fields[session.FieldID], err)
    }
}

func contains(members []string, member string) bool {
    for _, candidate := range members {
        if candidate == member {
            return true
        }
    }

    return false
}
