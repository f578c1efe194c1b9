package routes

import (
    "encoding/json"
    "io"
    "net/http"

    "github.com/gorilla/mux"

    . "github.com/cerenakmese/SmartStream/coordination"
    . "github.com/cerenakmese/SmartStream/logging"
    "github.com/cerenakmese/SmartStream/session"
)

type SessionsEndpoint struct {
    Sessions *session.SessionStore
}

func (sessionsEndpoint *SessionsEndpoint) Attach(router *mux.Router) {
    // Create a session. Placement goes through the load balancer.
    router.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
        var createRequest CreateSessionRequest

        if err := json.NewDecoder(r.Body).Decode(&createRequest); err != nil {
            Log.Warningf("POST /sessions: Unable to parse request body: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusBadRequest)
            io.WriteString(w, "\n")

            return
        }

        record, err := sessionsEndpoint.Sessions.Create(r.Context(), createRequest.SessionID, createRequest.HostID)

        if err == ESessionExists {
            Log.Warningf("POST /sessions: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusConflict)
            io.WriteString(w, "\n")

            return
        }

        if err != nil {
            Log.Warningf("POST /sessions: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        encodedResponse, _ := json.Marshal(CreateSessionResponse{
            SessionID: record.ID,
            NodeID: record.NodeID,
            ManagerFallback: record.ManagerFallback,
        })

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusCreated)
        io.WriteString(w, string(encodedResponse) + "\n")
    }).Methods("POST")

    // List active sessions
    router.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
        records, err := sessionsEndpoint.Sessions.ListActive(r.Context())

        if err != nil {
            Log.Warningf("GET /sessions: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        encodedResponse, _ := json.Marshal(SessionListResponse{ Count: len(records), Sessions: records })

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedResponse) + "\n")
    }).Methods("GET")

    // Read one session's state
    router.HandleFunc("/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
        record, err := sessionsEndpoint.Sessions.Get(r.Context(), mux.Vars(r)["sessionID"])

        if err == ESessionNotFound {
            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusNotFound)
            io.WriteString(w, "\n")

            return
        }

        if err != nil {
            Log.Warningf("GET /sessions/{sessionID}: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        encodedRecord, _ := json.Marshal(record)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedRecord) + "\n")
    }).Methods("GET")

    // Join a session
    router.HandleFunc("/sessions/{sessionID}/join", func(w http.ResponseWriter, r *http.Request) {
        var joinRequest JoinSessionRequest

        if err := json.NewDecoder(r.Body).Decode(&joinRequest); err != nil || joinRequest.UserID == "" {
            Log.Warningf("POST /sessions/{sessionID}/join: Unable to parse request body: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusBadRequest)
            io.WriteString(w, "\n")

            return
        }

        sessionID := mux.Vars(r)["sessionID"]
        participants, err := sessionsEndpoint.Sessions.Join(r.Context(), sessionID, joinRequest.UserID, joinRequest.Username)

        if err == ESessionNotFound {
            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusNotFound)
            io.WriteString(w, "\n")

            return
        }

        if err != nil {
            Log.Warningf("POST /sessions/{sessionID}/join: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        encodedResponse, _ := json.Marshal(JoinSessionResponse{ SessionID: sessionID, Participants: participants })

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedResponse) + "\n")
    }).Methods("POST")

    // Leave a session
    router.HandleFunc("/sessions/{sessionID}/leave", func(w http.ResponseWriter, r *http.Request) {
        var leaveRequest LeaveSessionRequest

        if err := json.NewDecoder(r.Body).Decode(&leaveRequest); err != nil || leaveRequest.UserID == "" {
            Log.Warningf("POST /sessions/{sessionID}/leave: Unable to parse request body: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusBadRequest)
            io.WriteString(w, "\n")

            return
        }

        err := sessionsEndpoint.Sessions.Leave(r.Context(), mux.Vars(r)["sessionID"], leaveRequest.UserID)

        if err == ESessionNotFound {
            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusNotFound)
            io.WriteString(w, "\n")

            return
        }

        if err != nil {
            Log.Warningf("POST /sessions/{sessionID}/leave: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("POST")

    // Refresh a session's TTL
    router.HandleFunc("/sessions/{sessionID}/heartbeat", func(w http.ResponseWriter, r *http.Request) {
        err := sessionsEndpoint.Sessions.Heartbeat(r.Context(), mux.Vars(r)["sessionID"])

        if err == ESessionNotFound {
            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusNotFound)
            io.WriteString(w, "\n")

            return
        }

        if err != nil {
            Log.Warningf("POST /sessions/{sessionID}/heartbeat: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("POST")

    // Terminate a session regardless of remaining participants
    router.HandleFunc("/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
        err := sessionsEndpoint.Sessions.Terminate(r.Context(), mux.Vars(r)["sessionID"])

        if err == ESessionNotFound {
            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusNotFound)
            io.WriteString(w, "\n")

            return
        }

        if err != nil {
            Log.Warningf("DELETE /sessions/{sessionID}: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("DELETE")
}
