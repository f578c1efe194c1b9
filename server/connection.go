package server

import (
    "context"
    "crypto/rand"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    . "github.com/cerenakmese/SmartStream/historian"
    . "github.com/cerenakmese/SmartStream/logging"
    "github.com/cerenakmese/SmartStream/metrics"
    "github.com/cerenakmese/SmartStream/monitor"
    "github.com/cerenakmese/SmartStream/qos"
    "github.com/cerenakmese/SmartStream/registry"
    "github.com/cerenakmese/SmartStream/session"
)

const writeWaitSeconds = 10

func randomConnectionID() string {
    randomBytes := make([]byte, 16)
    rand.Read(randomBytes)

    high := binary.BigEndian.Uint64(randomBytes[:8])
    low := binary.BigEndian.Uint64(randomBytes[8:])

    return fmt.Sprintf("%016x%016x", high, low)
}

type ClientMessage struct {
    Type string `json:"type"`
    SessionID string `json:"sessionId"`
    UserID string `json:"userId"`
    Username string `json:"username"`
    Preference string `json:"preference"`
    Timestamp int64 `json:"timestamp"`
    SeqNum int64 `json:"seqNum"`
    Simulated *metrics.Impairment `json:"simulated,omitempty"`
}

type ServerMessage struct {
    Type string `json:"type"`
    Success bool `json:"success,omitempty"`
    Recovered bool `json:"recovered,omitempty"`
    SessionID string `json:"sessionId,omitempty"`
    Participants []session.Participant `json:"participants,omitempty"`
    ClientTime int64 `json:"clientTime,omitempty"`
    ServerTime int64 `json:"serverTime,omitempty"`
    NetworkStats *metrics.Sample `json:"networkStats,omitempty"`
    QoSPolicy *qos.Decision `json:"qosPolicy,omitempty"`
    Message string `json:"message,omitempty"`
}

type ConnectionConfig struct {
    Conn *websocket.Conn
    Registry *registry.NodeRegistry
    Sessions *session.SessionStore
    Engine *metrics.Engine
    Historian *Historian
}

// Connection is one client's realtime channel: join/leave control
// messages and the ping stream that feeds the metrics engine. Its metrics
// state lives exactly as long as the connection.
type Connection struct {
    id string
    conn *websocket.Conn
    registry *registry.NodeRegistry
    sessions *session.SessionStore
    engine *metrics.Engine
    historian *Historian
    writeLock sync.Mutex
    userID string
    sessionID string
    preference qos.Preference
    lastAction qos.Action
}

func NewConnection(config ConnectionConfig) *Connection {
    return &Connection{
        id: randomConnectionID(),
        conn: config.Conn,
        registry: config.Registry,
        sessions: config.Sessions,
        engine: config.Engine,
        historian: config.Historian,
        preference: qos.PreferenceBalanced,
    }
}

func (connection *Connection) send(message *ServerMessage) {
    connection.writeLock.Lock()
    defer connection.writeLock.Unlock()

    connection.conn.SetWriteDeadline(time.Now().Add(time.Second * writeWaitSeconds))
    connection.conn.WriteJSON(message)
}

func (connection *Connection) sendError(message string) {
    connection.send(&ServerMessage{ Type: "error", Message: message })
}

// Run reads messages until the client goes away, then tears down the
// connection's metrics state.
func (connection *Connection) Run(ctx context.Context) {
    defer connection.teardown()

    for {
        var message ClientMessage

        if err := connection.conn.ReadJSON(&message); err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
                Log.Infof("Realtime connection %s closed: %v", connection.id, err)
            }

            return
        }

        switch message.Type {
        case "join-session":
            connection.handleJoin(ctx, &message)
        case "leave-session":
            connection.handleLeave(ctx, &message)
        case "recover-session":
            connection.handleRecover(ctx, &message)
        case "net-ping":
            if !connection.handlePing(ctx, &message) {
                return
            }
        default:
            connection.sendError("Unknown message type: " + message.Type)
        }
    }
}

func (connection *Connection) handleJoin(ctx context.Context, message *ClientMessage) {
    participants, err := connection.sessions.Join(ctx, message.SessionID, message.UserID, message.Username)

    if err != nil {
        Log.Warningf("Connection %s was unable to join session %s: %v", connection.id, message.SessionID, err)
        connection.sendError(err.Error())

        return
    }

    connection.userID = message.UserID
    connection.sessionID = message.SessionID
    connection.preference = qos.ParsePreference(message.Preference)
    connection.engine.SetPreference(connection.id, connection.preference)

    connection.send(&ServerMessage{
        Type: "session-joined",
        Success: true,
        SessionID: message.SessionID,
        Participants: participants,
    })
}

func (connection *Connection) handleLeave(ctx context.Context, message *ClientMessage) {
    sessionID := message.SessionID

    if sessionID == "" {
        sessionID = connection.sessionID
    }

    if err := connection.sessions.Leave(ctx, sessionID, connection.userID); err != nil {
        connection.sendError(err.Error())

        return
    }

    connection.sessionID = ""
    connection.engine.RemoveConnection(connection.id)

    connection.send(&ServerMessage{ Type: "session-left", Success: true, SessionID: sessionID })
}

func (connection *Connection) handleRecover(ctx context.Context, message *ClientMessage) {
    sessionID, ok, err := connection.sessions.RecoverSession(ctx, message.UserID)

    if err != nil || !ok {
        connection.send(&ServerMessage{ Type: "session-joined", Success: false })

        return
    }

    participants, err := connection.sessions.Join(ctx, sessionID, message.UserID, message.Username)

    if err != nil {
        connection.sendError(err.Error())

        return
    }

    Log.Infof("User %s transparently rejoined session %s", message.UserID, sessionID)

    connection.userID = message.UserID
    connection.sessionID = sessionID
    connection.preference = qos.ParsePreference(message.Preference)
    connection.engine.SetPreference(connection.id, connection.preference)

    connection.send(&ServerMessage{
        Type: "session-joined",
        Success: true,
        Recovered: true,
        SessionID: sessionID,
        Participants: participants,
    })
}

// handlePing is the hot path: fold the sample, decide quality, reply and
// mirror. Returns false when the node is no longer active and the
// connection must be dropped.
func (connection *Connection) handlePing(ctx context.Context, message *ClientMessage) bool {
    if !connection.registry.IsActive() {
        Log.Warningf("Node is not active. Dropping realtime connection %s", connection.id)

        return false
    }

    sample := connection.engine.Observe(connection.id, metrics.Ping{
        SessionID: message.SessionID,
        Timestamp: message.Timestamp,
        SeqNum: message.SeqNum,
        Simulated: message.Simulated,
    })

    decision := qos.Decide(sample.JitterMs, sample.PacketLossPct, connection.preference)
    monitor.RecordQoSDecision(string(decision.Action))

    if connection.sessionID != "" && connection.userID != "" {
        if err := connection.sessions.UpdateUserMetrics(ctx, connection.sessionID, connection.userID, sample); err != nil {
            Log.Warningf("Unable to mirror metrics for user %s in session %s: %v", connection.userID, connection.sessionID, err)
        }
    }

    // Only material decisions are archived, and only on transitions, so
    // a sustained bad patch records one event rather than one per ping.
    if decision.Material() && decision.Action != connection.lastAction && connection.historian != nil {
        detail, _ := json.Marshal(struct {
            Sample metrics.Sample `json:"sample"`
            Decision qos.Decision `json:"decision"`
        }{ Sample: sample, Decision: decision })

        connection.historian.Append(session.EventQualityReport, connection.sessionID, connection.registry.NodeID(), string(detail))
    }

    connection.lastAction = decision.Action

    connection.send(&ServerMessage{
        Type: "net-pong",
        ClientTime: message.Timestamp,
        ServerTime: time.Now().UnixMilli(),
        NetworkStats: &sample,
        QoSPolicy: &decision,
    })

    return true
}

func (connection *Connection) teardown() {
    connection.engine.RemoveConnection(connection.id)

    // A drop without an explicit leave is what the recovery window is
    // for. Refresh the pointer so the client can rejoin transparently.
    if connection.sessionID != "" && connection.userID != "" {
        connection.sessions.NoteDisconnect(context.Background(), connection.sessionID, connection.userID)
    }

    connection.conn.Close()

    Log.Infof("Realtime connection %s torn down", connection.id)
}
