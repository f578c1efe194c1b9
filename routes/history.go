package routes

import (
    "encoding/json"
    "io"
    "net/http"
    "strconv"

    "github.com/gorilla/mux"

    . "github.com/cerenakmese/SmartStream/historian"
    . "github.com/cerenakmese/SmartStream/logging"
)

type HistoryEndpoint struct {
    Historian *Historian
}

func (historyEndpoint *HistoryEndpoint) Attach(router *mux.Router) {
    // Query archived events, optionally filtered by session id
    router.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
        query := r.URL.Query()
        historyQuery := &HistoryQuery{
            Sessions: query["session"],
            Type: query.Get("type"),
            Order: query.Get("order"),
        }

        if before := query.Get("before"); before != "" {
            parsedBefore, err := strconv.ParseUint(before, 10, 64)

            if err != nil {
                Log.Warningf("GET /history: Unable to parse before as uint64: %v", err)

                w.Header().Set("Content-Type", "application/json; charset=utf8")
                w.WriteHeader(http.StatusBadRequest)
                io.WriteString(w, "\n")

                return
            }

            historyQuery.Before = parsedBefore
        }

        if after := query.Get("after"); after != "" {
            parsedAfter, err := strconv.ParseUint(after, 10, 64)

            if err != nil {
                Log.Warningf("GET /history: Unable to parse after as uint64: %v", err)

                w.Header().Set("Content-Type", "application/json; charset=utf8")
                w.WriteHeader(http.StatusBadRequest)
                io.WriteString(w, "\n")

                return
            }

            historyQuery.After = parsedAfter
        }

        if limit := query.Get("limit"); limit != "" {
            parsedLimit, err := strconv.Atoi(limit)

            if err != nil {
                w.Header().Set("Content-Type", "application/json; charset=utf8")
                w.WriteHeader(http.StatusBadRequest)
                io.WriteString(w, "\n")

                return
            }

            historyQuery.Limit = parsedLimit
        }

        events, err := historyEndpoint.Historian.Query(historyQuery)

        if err != nil {
            Log.Warningf("GET /history: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        encodedEvents, _ := json.Marshal(events)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedEvents) + "\n")
    }).Methods("GET")
}
