package routes

import (
    "io"
    "net/http"

    "github.com/gorilla/mux"

    . "github.com/cerenakmese/SmartStream/coordination"
    . "github.com/cerenakmese/SmartStream/logging"
)

// AdminEndpoint is the chaos control surface. Poisoning a node writes a
// flag that the node's own heartbeat loop consumes on its next tick; the
// node then simulates an ungraceful crash. Reviving clears the flag. Both
// are idempotent.
type AdminEndpoint struct {
    Store Store
}

func (adminEndpoint *AdminEndpoint) Attach(router *mux.Router) {
    router.HandleFunc("/nodes/{nodeID}/poison", func(w http.ResponseWriter, r *http.Request) {
        nodeID := mux.Vars(r)["nodeID"]

        if err := adminEndpoint.Store.Put(r.Context(), PoisonKey(nodeID), "1", 0); err != nil {
            Log.Warningf("PUT /nodes/{nodeID}/poison: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        Log.Warningf("Node %s was poisoned by an administrator", nodeID)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("PUT")

    router.HandleFunc("/nodes/{nodeID}/poison", func(w http.ResponseWriter, r *http.Request) {
        nodeID := mux.Vars(r)["nodeID"]

        if err := adminEndpoint.Store.Delete(r.Context(), PoisonKey(nodeID)); err != nil {
            Log.Warningf("DELETE /nodes/{nodeID}/poison: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        Log.Infof("Node %s was revived by an administrator", nodeID)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("DELETE")
}
