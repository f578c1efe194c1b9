package balancer

import (
    "context"
    "strconv"

    . "github.com/cerenakmese/SmartStream/coordination"
    . "github.com/cerenakmese/SmartStream/logging"
    "github.com/cerenakmese/SmartStream/monitor"
)

// LoadBalancer picks a placement target for new sessions: the live node
// with the least outstanding load. Load counters are adjusted with atomic
// field increments rather than a global lock, accepting minor placement
// skew under heavy concurrent creation.
type LoadBalancer struct {
    store Store
    localNodeID string
}

func NewLoadBalancer(store Store, localNodeID string) *LoadBalancer {
    return &LoadBalancer{
        store: store,
        localNodeID: localNodeID,
    }
}

// PickNode selects the least-loaded live node and increments its load as
// part of the assignment. Ties go to the first minimum encountered, which
// is a determinism note, not a business rule. An empty node pool is not an
// error: the session is placed on this process as a degraded
// manager-fallback so creation never fails just because no worker is up.
func (balancer *LoadBalancer) PickNode(ctx context.Context) (string, bool, error) {
    activeNodes, err := balancer.store.SetMembers(ctx, ActiveNodesSet)

    if err != nil {
        return "", false, err
    }

    if len(activeNodes) == 0 {
        Log.Warningf("No live nodes available. Placing session on %s as a manager fallback", balancer.localNodeID)
        monitor.RecordFallbackPlacement()

        return balancer.localNodeID, true, nil
    }

    var selectedNode string
    var minimumLoad int64

    for _, nodeID := range activeNodes {
        loadField, _, err := balancer.store.Field(ctx, NodeKey(nodeID), "load")

        if err != nil {
            continue
        }

        load, err := strconv.ParseInt(loadField, 10, 64)

        if err != nil {
            load = 0
        }

        if selectedNode == "" || load < minimumLoad {
            selectedNode = nodeID
            minimumLoad = load
        }
    }

    if selectedNode == "" {
        monitor.RecordFallbackPlacement()

        return balancer.localNodeID, true, nil
    }

    if _, err := balancer.store.IncrementField(ctx, NodeKey(selectedNode), "load", 1); err != nil {
        return "", false, err
    }

    return selectedNode, false, nil
}

// ReleaseNode gives back one unit of load when a session is terminated or
// migrated away from the node.
func (balancer *LoadBalancer) ReleaseNode(ctx context.Context, nodeID string) error {
    load, err := balancer.store.IncrementField(ctx, NodeKey(nodeID), "load", -1)

    if err != nil {
        return err
    }

    if load < 0 {
        // A node record recreated after expiry starts back at zero, so a
        // stale decrement can undershoot. Pin it rather than propagate.
        balancer.store.SetFields(ctx, NodeKey(nodeID), map[string]string{ "load": "0" })
    }

    return nil
}
