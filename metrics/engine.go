package metrics

import (
    "math"
    "sync"
    "time"

    . "github.com/cerenakmese/SmartStream/qos"
)

// Sample is the current network quality estimate for one connection. It is
// what gets mirrored into the session record's per-user metrics fields and
// what the QoS engine reads. The QoS engine never mutates it.
type Sample struct {
    JitterMs float64 `json:"jitter"`
    PacketLossPct float64 `json:"packetLoss"`
    HealthScore int `json:"healthScore"`
    Preference Preference `json:"preference"`
    UpdatedAt int64 `json:"updatedAt"`
}

// Ping is one timestamped, sequence-numbered probe from a client. The
// simulated impairment overlay is a test harness feature: it can make the
// observed network look worse than it is, never better.
type Ping struct {
    SessionID string `json:"sessionId"`
    Timestamp int64 `json:"timestamp"`
    SeqNum int64 `json:"seqNum"`
    Simulated *Impairment `json:"simulated,omitempty"`
}

type Impairment struct {
    PacketLossPct float64 `json:"packetLoss"`
    JitterMs float64 `json:"jitter"`
}

type connectionStats struct {
    sessionID string
    preference Preference
    prevServerTime int64
    prevClientTime int64
    jitterMs float64
    lastSeqNum int64
    receivedPackets int64
    lostPackets int64
}

// Engine maintains per-connection network statistics. State is purely
// process local: each connection's stats live exactly as long as the
// connection and are owned by the engine instance, not by package-level
// globals. All methods are safe for concurrent use.
type Engine struct {
    mu sync.Mutex
    connections map[string]*connectionStats

    // Now is the clock used to timestamp arrivals. Tests substitute it.
    Now func() time.Time
}

func NewEngine() *Engine {
    return &Engine{
        connections: make(map[string]*connectionStats),
        Now: time.Now,
    }
}

// Observe folds one ping into the connection's running statistics and
// returns the updated sample. The first ping for a connection is a cold
// start: nothing is computable yet and the score reads 0 until a second
// sample arrives.
func (engine *Engine) Observe(connectionID string, ping Ping) Sample {
    engine.mu.Lock()
    defer engine.mu.Unlock()

    serverTime := engine.Now().UnixMilli()
    stats, ok := engine.connections[connectionID]

    if !ok {
        stats = &connectionStats{ preference: PreferenceBalanced }
        engine.connections[connectionID] = stats
    }

    // A connection whose preference was set before any ping arrived is
    // still a cold start: there is no previous arrival to difference
    // against.
    if stats.receivedPackets == 0 {
        stats.sessionID = ping.SessionID
        stats.prevServerTime = serverTime
        stats.prevClientTime = ping.Timestamp
        stats.lastSeqNum = ping.SeqNum
        stats.receivedPackets = 1

        return Sample{ Preference: stats.preference, UpdatedAt: serverTime }
    }

    if ping.SessionID != "" && stats.sessionID == "" {
        stats.sessionID = ping.SessionID
    }

    // Packet loss: a jump past the expected sequence number means the
    // packets in the gap never arrived. Reordered or duplicated arrivals
    // add nothing to the gap counter.
    if ping.SeqNum > stats.lastSeqNum + 1 {
        stats.lostPackets += ping.SeqNum - (stats.lastSeqNum + 1)
    }

    stats.receivedPackets++
    stats.lastSeqNum = ping.SeqNum

    lossPct := float64(stats.lostPackets) / float64(stats.receivedPackets + stats.lostPackets) * 100

    // Inter-arrival jitter per the simplified RFC 3550 estimator: the
    // difference between consecutive inter-packet delay deltas, smoothed
    // with a 1/16 exponential moving average.
    delta := (serverTime - stats.prevServerTime) - (ping.Timestamp - stats.prevClientTime)
    stats.jitterMs = stats.jitterMs + (math.Abs(float64(delta)) - stats.jitterMs) / 16

    stats.prevServerTime = serverTime
    stats.prevClientTime = ping.Timestamp

    jitterMs := stats.jitterMs

    if ping.Simulated != nil {
        lossPct = math.Max(lossPct, ping.Simulated.PacketLossPct)
        jitterMs = jitterMs + ping.Simulated.JitterMs
    }

    return Sample{
        JitterMs: jitterMs,
        PacketLossPct: lossPct,
        HealthScore: HealthScore(jitterMs, lossPct),
        Preference: stats.preference,
        UpdatedAt: serverTime,
    }
}

// SetPreference pins the user's QoS preference to the connection so every
// subsequent sample carries it.
func (engine *Engine) SetPreference(connectionID string, preference Preference) {
    engine.mu.Lock()
    defer engine.mu.Unlock()

    stats, ok := engine.connections[connectionID]

    if !ok {
        stats = &connectionStats{ preference: preference }
        engine.connections[connectionID] = stats

        return
    }

    stats.preference = preference
}

func (engine *Engine) SessionID(connectionID string) string {
    engine.mu.Lock()
    defer engine.mu.Unlock()

    if stats, ok := engine.connections[connectionID]; ok {
        return stats.sessionID
    }

    return ""
}

// RemoveConnection tears down the connection's statistics. Called on
// disconnect; observing the same connection ID again is a fresh cold start.
func (engine *Engine) RemoveConnection(connectionID string) {
    engine.mu.Lock()
    defer engine.mu.Unlock()

    delete(engine.connections, connectionID)
}

func (engine *Engine) ConnectionCount() int {
    engine.mu.Lock()
    defer engine.mu.Unlock()

    return len(engine.connections)
}

// HealthScore folds jitter and loss into a 0-100 composite. Loss is ten
// times as punitive per unit as jitter: a lost packet is perceptually worse
// than smooth delay variance.
func HealthScore(jitterMs float64, packetLossPct float64) int {
    score := math.Round(100 - packetLossPct * 5 - jitterMs * 0.5)

    if score < 0 {
        return 0
    }

    if score > 100 {
        return 100
    }

    return int(score)
}
