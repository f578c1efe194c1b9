package registry

import (
    "context"
    "os"
    "strconv"
    "sync"
    "time"

    . "github.com/cerenakmese/SmartStream/coordination"
    . "github.com/cerenakmese/SmartStream/logging"
    "github.com/cerenakmese/SmartStream/monitor"
)

// How long a freshly started node waits before its initial orphan sweep.
// Long enough for its own registration to settle, short enough that a
// backlog left by a crashed predecessor drains immediately instead of
// waiting for the next periodic cycle.
const StartupSettleDelay = time.Second

const StatusActive = "active"

// OrphanReclaimer is the failover coordinator's reclamation entry point.
// It is injected at construction so startup can call it directly; the two
// components never resolve each other lazily.
type OrphanReclaimer interface {
    ReclaimOrphanedSessions(ctx context.Context)
}

type NodeRegistryConfig struct {
    Store Store
    NodeID string
    HeartbeatInterval time.Duration
    NodeTTL time.Duration
    Reclaimer OrphanReclaimer
    // Halt terminates the process when the node is poisoned. Defaults to
    // an ungraceful exit; tests substitute it.
    Halt func()
}

// NodeRegistry maintains this process's liveness signal. Liveness is
// derived from TTL expiry of the node record, never from explicit
// deregistration, so everything downstream (placement, failover) keys off
// the record's presence alone.
type NodeRegistry struct {
    store Store
    nodeID string
    heartbeatInterval time.Duration
    nodeTTL time.Duration
    reclaimer OrphanReclaimer
    halt func()
    lock sync.Mutex
    isActive bool
}

func NewNodeRegistry(config NodeRegistryConfig) *NodeRegistry {
    halt := config.Halt

    if halt == nil {
        halt = func() {
            os.Exit(1)
        }
    }

    return &NodeRegistry{
        store: config.Store,
        nodeID: config.NodeID,
        heartbeatInterval: config.HeartbeatInterval,
        nodeTTL: config.NodeTTL,
        reclaimer: config.Reclaimer,
        halt: halt,
    }
}

func (registry *NodeRegistry) NodeID() string {
    return registry.nodeID
}

func (registry *NodeRegistry) IsActive() bool {
    registry.lock.Lock()
    defer registry.lock.Unlock()

    return registry.isActive
}

func (registry *NodeRegistry) setActive(isActive bool) {
    registry.lock.Lock()
    defer registry.lock.Unlock()

    registry.isActive = isActive
}

// Start registers the node, kicks off the startup orphan sweep and then
// heartbeats on a fixed interval until the context is cancelled.
// Cancellation performs a graceful deregistration, which is a courtesy
// optimization, not a correctness requirement: if this process dies
// without it the TTL does the same job a few seconds later.
func (registry *NodeRegistry) Start(ctx context.Context) error {
    if err := registry.Register(ctx); err != nil {
        return err
    }

    if registry.reclaimer != nil {
        go func() {
            select {
            case <-ctx.Done():
                return
            case <-time.After(StartupSettleDelay):
            }

            registry.reclaimer.ReclaimOrphanedSessions(ctx)
        }()
    }

    ticker := time.NewTicker(registry.heartbeatInterval)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            registry.Deregister(context.Background())

            return nil
        case <-ticker.C:
            registry.checkAndBeat(ctx)
        }
    }
}

// Register writes the node record with a fresh TTL and ensures membership
// in both the live set and the ever-seen set.
func (registry *NodeRegistry) Register(ctx context.Context) error {
    nodeKey := NodeKey(registry.nodeID)

    err := registry.store.SetFields(ctx, nodeKey, map[string]string{
        "id": registry.nodeID,
        "lastSeenAt": strconv.FormatInt(time.Now().UnixMilli(), 10),
        "status": StatusActive,
    })

    if err != nil {
        return err
    }

    // Load survives re-registration: only initialize it when absent.
    if _, ok, _ := registry.store.Field(ctx, nodeKey, "load"); !ok {
        registry.store.SetFields(ctx, nodeKey, map[string]string{ "load": "0" })
    }

    if err := registry.store.Expire(ctx, nodeKey, registry.nodeTTL); err != nil {
        return err
    }

    registry.store.AddToSet(ctx, ActiveNodesSet, registry.nodeID)
    registry.store.AddToSet(ctx, KnownNodesSet, registry.nodeID)
    registry.setActive(true)

    Log.Infof("Node %s registered with the cluster", registry.nodeID)

    return nil
}

// checkAndBeat is one heartbeat tick: consume a pending poison command if
// there is one, revive if a previous poison was cleared, otherwise refresh
// the liveness record.
func (registry *NodeRegistry) checkAndBeat(ctx context.Context) {
    poisoned, err := registry.store.Exists(ctx, PoisonKey(registry.nodeID))

    if err != nil {
        Log.Errorf("Node %s heartbeat cycle failed: %v", registry.nodeID, err)

        return
    }

    if poisoned {
        if registry.IsActive() {
            registry.poison(ctx)
        }

        return
    }

    if !registry.IsActive() {
        Log.Infof("Node %s poison cleared. Rejoining the cluster", registry.nodeID)

        if err := registry.Register(ctx); err != nil {
            Log.Errorf("Node %s was unable to re-register: %v", registry.nodeID, err)

            return
        }

        if registry.reclaimer != nil {
            registry.reclaimer.ReclaimOrphanedSessions(ctx)
        }

        return
    }

    registry.beat(ctx)
}

func (registry *NodeRegistry) beat(ctx context.Context) {
    nodeKey := NodeKey(registry.nodeID)

    if err := registry.store.SetFields(ctx, nodeKey, map[string]string{ "lastSeenAt": strconv.FormatInt(time.Now().UnixMilli(), 10) }); err != nil {
        Log.Errorf("Node %s was unable to write its heartbeat: %v", registry.nodeID, err)

        return
    }

    registry.store.Expire(ctx, nodeKey, registry.nodeTTL)
    registry.store.AddToSet(ctx, ActiveNodesSet, registry.nodeID)
    registry.store.AddToSet(ctx, KnownNodesSet, registry.nodeID)
    monitor.RecordHeartbeat()
}

// poison simulates an ungraceful crash: the node removes its own liveness
// state and halts without migrating anything. The failover coordinators on
// the surviving nodes must be exercised against real TTL expiry, which a
// clean shutdown would hide.
func (registry *NodeRegistry) poison(ctx context.Context) {
    Log.Warningf("Node %s was poisoned. Simulating an ungraceful crash", registry.nodeID)

    registry.setActive(false)
    registry.store.RemoveFromSet(ctx, ActiveNodesSet, registry.nodeID)
    registry.store.Delete(ctx, NodeKey(registry.nodeID))

    registry.halt()
}

// Deregister is the clean-shutdown path.
func (registry *NodeRegistry) Deregister(ctx context.Context) {
    registry.setActive(false)
    registry.store.RemoveFromSet(ctx, ActiveNodesSet, registry.nodeID)
    registry.store.Delete(ctx, NodeKey(registry.nodeID))

    Log.Infof("Node %s deregistered from the cluster", registry.nodeID)
}
