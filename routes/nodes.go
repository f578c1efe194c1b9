package routes

import (
    "encoding/json"
    "io"
    "net/http"
    "strconv"
    "time"

    "github.com/gorilla/mux"

    . "github.com/cerenakmese/SmartStream/coordination"
    . "github.com/cerenakmese/SmartStream/logging"
)

type NodesEndpoint struct {
    Store Store
    LocalNodeID string
    StartedAt time.Time
}

func (nodesEndpoint *NodesEndpoint) Attach(router *mux.Router) {
    // List the currently live nodes
    router.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
        nodeIDs, err := nodesEndpoint.Store.SetMembers(r.Context(), ActiveNodesSet)

        if err != nil {
            Log.Warningf("GET /nodes: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        nodes := make([]APINode, 0, len(nodeIDs))

        for _, nodeID := range nodeIDs {
            fields, err := nodesEndpoint.Store.Fields(r.Context(), NodeKey(nodeID))

            if err != nil || len(fields) == 0 {
                continue
            }

            lastSeenAt, _ := strconv.ParseInt(fields["lastSeenAt"], 10, 64)
            load, _ := strconv.ParseInt(fields["load"], 10, 64)

            nodes = append(nodes, APINode{
                ID: fields["id"],
                LastSeenAt: lastSeenAt,
                Load: load,
                Status: fields["status"],
            })
        }

        encodedResponse, _ := json.Marshal(NodeListResponse{ Count: len(nodes), Nodes: nodes })

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedResponse) + "\n")
    }).Methods("GET")

    // Local node health probe
    router.HandleFunc("/nodes/{nodeID}/health", func(w http.ResponseWriter, r *http.Request) {
        encodedResponse, _ := json.Marshal(NodeHealthResponse{
            NodeID: mux.Vars(r)["nodeID"],
            Status: "healthy",
            UptimeSeconds: time.Since(nodesEndpoint.StartedAt).Seconds(),
        })

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedResponse) + "\n")
    }).Methods("GET")
}
