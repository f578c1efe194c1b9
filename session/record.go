package session

import (
    "encoding/json"
    "strconv"
    "strings"

    . "github.com/cerenakmese/SmartStream/logging"
    . "github.com/cerenakmese/SmartStream/metrics"
)

const (
    StatusActive = "active"
    StatusNetworkError = "network_error"
    StatusEnded = "ended"
    StatusCrashed = "crashed"
)

const (
    FieldID = "id"
    FieldHostID = "hostId"
    FieldNodeID = "nodeId"
    FieldCreatedAt = "createdAt"
    FieldStatus = "status"
    FieldParticipants = "participants"
    FieldLastMigration = "lastMigration"
    FieldManagerFallback = "managerFallback"
    metricsFieldPrefix = "metrics:"
)

func MetricsField(userID string) string {
    return metricsFieldPrefix + userID
}

type Participant struct {
    UserID string `json:"userId"`
    Username string `json:"username"`
    JoinedAt int64 `json:"joinedAt"`
}

// Record is the authoritative state of one relay session. On the wire it
// is a two-level map: an outer record keyed by session id whose fields
// hold serialized sub-structures. Deserialization happens here, at the
// read boundary, so everything above this file works with typed values.
type Record struct {
    ID string `json:"id"`
    HostID string `json:"hostId"`
    NodeID string `json:"nodeId"`
    CreatedAt int64 `json:"createdAt"`
    Status string `json:"status"`
    ManagerFallback bool `json:"managerFallback"`
    Participants []Participant `json:"participants"`
    UserMetrics map[string]Sample `json:"userMetrics"`
}

func (record *Record) ToFields() map[string]string {
    encodedParticipants, _ := json.Marshal(record.Participants)

    fields := map[string]string{
        FieldID: record.ID,
        FieldHostID: record.HostID,
        FieldNodeID: record.NodeID,
        FieldCreatedAt: strconv.FormatInt(record.CreatedAt, 10),
        FieldStatus: record.Status,
        FieldParticipants: string(encodedParticipants),
        FieldManagerFallback: strconv.FormatBool(record.ManagerFallback),
    }

    for userID, sample := range record.UserMetrics {
        encodedSample, _ := json.Marshal(sample)
        fields[MetricsField(userID)] = string(encodedSample)
    }

    return fields
}

// RecordFromFields parses a stored record. A field that cannot be parsed
// is logged and treated as absent: one corrupt session must not block a
// sweep over all the others.
func RecordFromFields(fields map[string]string) *Record {
    record := &Record{
        ID: fields[FieldID],
        HostID: fields[FieldHostID],
        NodeID: fields[FieldNodeID],
        Status: fields[FieldStatus],
        Participants: []Participant{ },
        UserMetrics: make(map[string]Sample),
    }

    record.CreatedAt, _ = strconv.ParseInt(fields[FieldCreatedAt], 10, 64)
    record.ManagerFallback, _ = strconv.ParseBool(fields[FieldManagerFallback])

    if encodedParticipants, ok := fields[FieldParticipants]; ok && encodedParticipants != "" {
        if err := json.Unmarshal([]byte(encodedParticipants), &record.Participants); err != nil {
            Log.Errorf("Session %s has an unparseable participant list. Treating it as empty: %v", record.ID, err)

            record.Participants = []Participant{ }
        }
    }

    for field, value := range fields {
        if !strings.HasPrefix(field, metricsFieldPrefix) {
            continue
        }

        var sample Sample

        if err := json.Unmarshal([]byte(value), &sample); err != nil {
            Log.Errorf("Session %s has an unparseable metrics sample in field %s: %v", record.ID, field, err)

            continue
        }

        record.UserMetrics[strings.TrimPrefix(field, metricsFieldPrefix)] = sample
    }

    return record
}

func ParticipantsFromFields(fields map[string]string) []Participant {
    return RecordFromFields(fields).Participants
}
