package historian

import (
    "crypto/rand"
    "encoding/base64"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "math"
    "sort"
    "sync"
    "time"

    "github.com/syndtr/goleveldb/leveldb"
    "github.com/syndtr/goleveldb/leveldb/opt"
    "github.com/syndtr/goleveldb/leveldb/util"

    . "github.com/cerenakmese/SmartStream/logging"
)

// The historian is the archival boundary: session starts/ends, migrations
// and material QoS decisions land here so the cluster's history survives
// the TTL-bounded coordination records. Each event is stored twice,
// indexed by time and by session+time, under keys sharing one random
// suffix so either copy can be derived from the other.
var (
    byTimePrefix = []byte{ 0 }
    bySessionAndTimePrefix = []byte{ 1 }
    delimiter = []byte(".")
)

type Event struct {
    Timestamp uint64 `json:"timestamp"`
    SessionID string `json:"sessionID"`
    NodeID string `json:"nodeID"`
    Type string `json:"type"`
    Data string `json:"data"`
}

type HistoryQuery struct {
    Sessions []string
    Type string
    Before uint64
    After uint64
    Order string
    Limit int
}

func randomSuffix() []byte {
    randomBytes := make([]byte, 16)
    rand.Read(randomBytes)

    high := binary.BigEndian.Uint64(randomBytes[:8])
    low := binary.BigEndian.Uint64(randomBytes[8:])

    return []byte(fmt.Sprintf("%016x%016x", high, low))
}

func timestampBytes(ts uint64) []byte {
    bytes := make([]byte, 8)

    binary.BigEndian.PutUint64(bytes, ts)

    return bytes
}

func timeKey(timestamp uint64, suffix []byte) []byte {
    result := make([]byte, 0, len(byTimePrefix) + 8 + len(delimiter) + len(suffix))

    result = append(result, byTimePrefix...)
    result = append(result, timestampBytes(timestamp)...)
    result = append(result, delimiter...)
    result = append(result, suffix...)

    return result
}

func timePrefix(timestamp uint64) []byte {
    result := make([]byte, 0, len(byTimePrefix) + 8 + len(delimiter))

    result = append(result, byTimePrefix...)
    result = append(result, timestampBytes(timestamp)...)
    result = append(result, delimiter...)

    return result
}

func sessionKey(sessionID string, timestamp uint64, suffix []byte) []byte {
    sessionEncoding := []byte(base64.StdEncoding.EncodeToString([]byte(sessionID)))
    result := make([]byte, 0, len(bySessionAndTimePrefix) + len(sessionEncoding) + len(delimiter) + 8 + len(delimiter) + len(suffix))

    result = append(result, bySessionAndTimePrefix...)
    result = append(result, sessionEncoding...)
    result = append(result, delimiter...)
    result = append(result, timestampBytes(timestamp)...)
    result = append(result, delimiter...)
    result = append(result, suffix...)

    return result
}

type Historian struct {
    db *leveldb.DB
    eventLimit uint64
    eventCount uint64
    lock sync.Mutex
}

func NewHistorian(file string, eventLimit uint64) (*Historian, error) {
    db, err := leveldb.OpenFile(file, &opt.Options{ OpenFilesCacheCapacity: 32 })

    if err != nil {
        Log.Errorf("Unable to open history database at %s: %v", file, err)

        return nil, err
    }

    historian := &Historian{
        db: db,
        eventLimit: eventLimit,
    }

    historian.eventCount = historian.countEvents()

    return historian, nil
}

func (historian *Historian) countEvents() uint64 {
    iter := historian.db.NewIterator(util.BytesPrefix(byTimePrefix), nil)
    defer iter.Release()

    var count uint64

    for iter.Next() {
        count++
    }

    return count
}

func (historian *Historian) Count() uint64 {
    historian.lock.Lock()
    defer historian.lock.Unlock()

    return historian.eventCount
}

func (historian *Historian) LogEvent(event *Event) error {
    historian.lock.Lock()
    defer historian.lock.Unlock()

    marshaledEvent, err := json.Marshal(event)

    if err != nil {
        Log.Errorf("Could not marshal event to JSON: %v", err)

        return err
    }

    suffix := randomSuffix()
    batch := new(leveldb.Batch)

    batch.Put(timeKey(event.Timestamp, suffix), marshaledEvent)
    batch.Put(sessionKey(event.SessionID, event.Timestamp, suffix), marshaledEvent)

    if err := historian.db.Write(batch, nil); err != nil {
        Log.Errorf("Storage error in LogEvent(%v): %v", event, err)

        return err
    }

    historian.eventCount++

    if historian.eventLimit != 0 && historian.eventCount > historian.eventLimit {
        historian.purgeOldest(historian.eventCount - historian.eventLimit)
    }

    return nil
}

// Append satisfies the event sinks used by session and failover code.
// Timestamping and error handling stay here so callers can fire and
// forget.
func (historian *Historian) Append(eventType string, sessionID string, nodeID string, data string) {
    err := historian.LogEvent(&Event{
        Timestamp: uint64(time.Now().UnixMilli()),
        SessionID: sessionID,
        NodeID: nodeID,
        Type: eventType,
        Data: data,
    })

    if err != nil {
        Log.Errorf("Unable to archive %s event for session %s: %v", eventType, sessionID, err)
    }
}

// purgeOldest drops the n oldest events from both indexes. The session
// index key is rebuilt from the time index key's shared random suffix.
func (historian *Historian) purgeOldest(n uint64) {
    iter := historian.db.NewIterator(util.BytesPrefix(byTimePrefix), nil)
    defer iter.Release()

    batch := new(leveldb.Batch)
    var purged uint64

    for purged < n && iter.Next() {
        key := iter.Key()

        var event Event

        if err := json.Unmarshal(iter.Value(), &event); err == nil {
            suffix := key[len(byTimePrefix) + 8 + len(delimiter):]

            batch.Delete(sessionKey(event.SessionID, event.Timestamp, suffix))
        }

        batch.Delete(append([]byte{ }, key...))
        purged++
    }

    if err := historian.db.Write(batch, nil); err != nil {
        Log.Errorf("Unable to purge %d oldest events: %v", n, err)

        return
    }

    historian.eventCount -= purged
}

func (historian *Historian) Query(query *HistoryQuery) ([]*Event, error) {
    before := query.Before

    if before == 0 {
        before = math.MaxUint64
    }

    sessions := append([]string{ }, query.Sessions...)
    sort.Strings(sessions)

    var ranges []*util.Range

    if len(sessions) == 0 {
        ranges = []*util.Range{
            &util.Range{ Start: timePrefix(query.After), Limit: timePrefix(before) },
        }
    } else {
        ranges = make([]*util.Range, 0, len(sessions))

        for _, sessionID := range sessions {
            ranges = append(ranges, &util.Range{
                Start: sessionKey(sessionID, query.After, nil),
                Limit: sessionKey(sessionID, before, nil),
            })
        }
    }

    events := make([]*Event, 0)

    for _, keyRange := range ranges {
        iter := historian.db.NewIterator(keyRange, nil)

        for iter.Next() {
            var event Event

            if err := json.Unmarshal(iter.Value(), &event); err != nil {
                Log.Errorf("Unparseable event at key %v: %v", iter.Key(), err)

                continue
            }

            if query.Type != "" && event.Type != query.Type {
                continue
            }

            events = append(events, &event)
        }

        iter.Release()

        if iter.Error() != nil {
            return nil, iter.Error()
        }
    }

    if query.Order == "desc" {
        for i, j := 0, len(events) - 1; i < j; i, j = i + 1, j - 1 {
            events[i], events[j] = events[j], events[i]
        }
    }

    if query.Limit > 0 && len(events) > query.Limit {
        events = events[:query.Limit]
    }

    return events, nil
}

func (historian *Historian) Close() {
    historian.db.Close()
}
