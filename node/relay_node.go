package node

import (
    "context"
    "sync"
    "time"

    "golang.org/x/sync/errgroup"

    . "github.com/cerenakmese/SmartStream/historian"
    . "github.com/cerenakmese/SmartStream/logging"
    . "github.com/cerenakmese/SmartStream/shared"
    "github.com/cerenakmese/SmartStream/balancer"
    "github.com/cerenakmese/SmartStream/coordination"
    "github.com/cerenakmese/SmartStream/failover"
    "github.com/cerenakmese/SmartStream/metrics"
    "github.com/cerenakmese/SmartStream/registry"
    "github.com/cerenakmese/SmartStream/server"
    "github.com/cerenakmese/SmartStream/session"
)

type RelayNodeConfig struct {
    Config *YAMLServerConfig
    // Store overrides the Redis store built from the config. Tests use it
    // to run a node against an in-memory store.
    Store coordination.Store
}

// RelayNode assembles one relay process: the coordination store, node
// registry, failover coordinator, session store, metrics engine, event
// historian and the relay server, wired together and run as a unit.
type RelayNode struct {
    config *YAMLServerConfig
    store coordination.Store
    nodeRegistry *registry.NodeRegistry
    coordinator *failover.Coordinator
    sessions *session.SessionStore
    engine *metrics.Engine
    historian *Historian
    relayServer *server.RelayServer
    stop func()
    lock sync.Mutex
}

func New(config RelayNodeConfig) *RelayNode {
    return &RelayNode{
        config: config.Config,
        store: config.Store,
    }
}

func (node *RelayNode) initialize() error {
    config := node.config

    if node.store == nil {
        node.store = coordination.NewRedisStore(config.Redis.Address, config.Redis.Password)
    }

    historian, err := NewHistorian(config.HistoryFile, config.EventLimit)

    if err != nil {
        Log.Criticalf("Unable to open event history at %s: %v", config.HistoryFile, err.Error())

        return err
    }

    node.historian = historian
    node.engine = metrics.NewEngine()

    loadBalancer := balancer.NewLoadBalancer(node.store, config.NodeID)

    node.sessions = session.NewSessionStore(session.StoreConfig{
        Store: node.store,
        Picker: loadBalancer,
        History: node.historian,
        LocalNodeID: config.NodeID,
        SessionTTL: time.Second * time.Duration(config.SessionTTLSeconds),
    })

    node.coordinator = failover.NewCoordinator(failover.CoordinatorConfig{
        Store: node.store,
        NodeID: config.NodeID,
        SessionTTL: time.Second * time.Duration(config.SessionTTLSeconds),
        SweepInterval: time.Second * time.Duration(config.SweepIntervalSeconds),
        HealthSweepInterval: time.Second * time.Duration(config.HealthSweepIntervalSeconds),
        History: node.historian,
    })

    node.nodeRegistry = registry.NewNodeRegistry(registry.NodeRegistryConfig{
        Store: node.store,
        NodeID: config.NodeID,
        HeartbeatInterval: time.Second * time.Duration(config.HeartbeatIntervalSeconds),
        NodeTTL: time.Second * time.Duration(config.NodeTTLSeconds),
        Reclaimer: node.coordinator,
    })

    node.relayServer = server.NewRelayServer(server.RelayServerConfig{
        Port: config.Port,
        Store: node.store,
        Registry: node.nodeRegistry,
        Sessions: node.sessions,
        Engine: node.engine,
        Historian: node.historian,
    })

    return nil
}

// Start runs the node until Stop is called or one of its components fails
// fatally.
func (node *RelayNode) Start() error {
    if err := node.initialize(); err != nil {
        return err
    }

    ctx, cancel := context.WithCancel(context.Background())

    node.lock.Lock()
    node.stop = cancel
    node.lock.Unlock()

    Log.Infof("Relay node %s starting on port %d", node.config.NodeID, node.config.Port)

    group, groupCtx := errgroup.WithContext(ctx)

    group.Go(func() error {
        return node.nodeRegistry.Start(groupCtx)
    })

    group.Go(func() error {
        return node.coordinator.Start(groupCtx)
    })

    group.Go(func() error {
        return node.relayServer.Start()
    })

    group.Go(func() error {
        <-groupCtx.Done()

        node.relayServer.Stop()

        return nil
    })

    err := group.Wait()

    node.historian.Close()
    node.store.Close()

    return err
}

// Stop shuts the node down. The registry deregisters on its way out so
// other nodes see the departure before the TTL would expire.
func (node *RelayNode) Stop() {
    node.lock.Lock()
    defer node.lock.Unlock()

    if node.stop != nil {
        node.stop()
        node.stop = nil
    }
}

func (node *RelayNode) Sessions() *session.SessionStore {
    return node.sessions
}

func (node *RelayNode) Registry() *registry.NodeRegistry {
    return node.nodeRegistry
}
