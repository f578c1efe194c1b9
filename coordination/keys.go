package coordination

// Logical key namespace shared by every node process. These names are the
// wire format of the cluster; changing one is a rolling-upgrade break.
const (
    NodeKeyPrefix = "node:"
    SessionKeyPrefix = "session:"
    PoisonKeyPrefix = "poison:"
    RecoveryKeyPrefix = "recovery:"
    ActiveNodesSet = "active_nodes"
    KnownNodesSet = "known_nodes"
    SessionLockPrefix = "lock:session:"
    MigrationLockPrefix = "lock:migration:"
    ReclaimLockPrefix = "lock:reclaim:"
    CreateSessionLockPrefix = "lock:create-session:"
)

func NodeKey(nodeID string) string {
    return NodeKeyPrefix + nodeID
}

func SessionKey(sessionID string) string {
    return SessionKeyPrefix + sessionID
}

func PoisonKey(nodeID string) string {
    return PoisonKeyPrefix + nodeID
}

func RecoveryKey(userID string) string {
    return RecoveryKeyPrefix + userID
}

func SessionLock(sessionID string) string {
    return SessionLockPrefix + sessionID
}

func MigrationLock(nodeID string) string {
    return MigrationLockPrefix + nodeID
}

func ReclaimLock(sessionKey string) string {
    return ReclaimLockPrefix + sessionKey
}

func CreateSessionLock(sessionID string) string {
    return CreateSessionLockPrefix + sessionID
}
