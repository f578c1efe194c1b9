package routes_test

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "time"

    "github.com/gorilla/mux"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"

    . "github.com/cerenakmese/SmartStream/coordination"
    . "github.com/cerenakmese/SmartStream/routes"
    "github.com/cerenakmese/SmartStream/balancer"
    "github.com/cerenakmese/SmartStream/session"
)

var _ = Describe("Sessions", func() {
    var (
        store *MemoryStore
        sessions *session.SessionStore
        router *mux.Router
    )

    BeforeEach(func() {
        store = NewMemoryStore()
        ctx := context.Background()

        store.AddToSet(ctx, ActiveNodesSet, "node-a")
        store.SetFields(ctx, NodeKey("node-a"), map[string]string{ "id": "node-a", "status": "active", "load": "0" })

        sessions = session.NewSessionStore(session.StoreConfig{
            Store: store,
            Picker: balancer.NewLoadBalancer(store, "local-node"),
            LocalNodeID: "local-node",
            SessionTTL: time.Hour,
        })

        router = mux.NewRouter()
        (&SessionsEndpoint{ Sessions: sessions }).Attach(router)
    })

    post := func(url string, body interface{}) *httptest.ResponseRecorder {
        encodedBody, _ := json.Marshal(body)
        req := httptest.NewRequest("POST", url, bytes.NewReader(encodedBody))
        resp := httptest.NewRecorder()

        router.ServeHTTP(resp, req)

        return resp
    }

    Describe("POST /sessions", func() {
        It("Should create the session and report its placement", func() {
            resp := post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-1" })

            Expect(resp.Code).Should(Equal(http.StatusCreated))

            var createResponse CreateSessionResponse

            Expect(json.Unmarshal(resp.Body.Bytes(), &createResponse)).Should(BeNil())
            Expect(createResponse.SessionID).Should(Equal("session-1"))
            Expect(createResponse.NodeID).Should(Equal("node-a"))
            Expect(createResponse.ManagerFallback).Should(BeFalse())
        })

        It("Should respond with status code http.StatusConflict for a duplicate id", func() {
            post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-1" })

            resp := post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-2" })

            Expect(resp.Code).Should(Equal(http.StatusConflict))
        })

        It("Should respond with status code http.StatusBadRequest for an unparseable body", func() {
            req := httptest.NewRequest("POST", "/sessions", bytes.NewReader([]byte("{")))
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusBadRequest))
        })
    })

    Describe("GET /sessions", func() {
        It("Should list the active sessions", func() {
            post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-1" })
            post("/sessions", CreateSessionRequest{ SessionID: "session-2", HostID: "host-2" })

            req := httptest.NewRequest("GET", "/sessions", nil)
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusOK))

            var listResponse SessionListResponse

            Expect(json.Unmarshal(resp.Body.Bytes(), &listResponse)).Should(BeNil())
            Expect(listResponse.Count).Should(Equal(2))
        })
    })

    Describe("GET /sessions/{sessionID}", func() {
        It("Should respond with status code http.StatusNotFound for an unknown session", func() {
            req := httptest.NewRequest("GET", "/sessions/nope", nil)
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusNotFound))
        })

        It("Should return the session record", func() {
            post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-1" })

            req := httptest.NewRequest("GET", "/sessions/session-1", nil)
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusOK))

            var record session.Record

            Expect(json.Unmarshal(resp.Body.Bytes(), &record)).Should(BeNil())
            Expect(record.HostID).Should(Equal("host-1"))
        })
    })

    Describe("POST /sessions/{sessionID}/join", func() {
        BeforeEach(func() {
            post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-1" })
        })

        It("Should add the participant and return the roster", func() {
            resp := post("/sessions/session-1/join", JoinSessionRequest{ UserID: "user-1", Username: "alice" })

            Expect(resp.Code).Should(Equal(http.StatusOK))

            var joinResponse JoinSessionResponse

            Expect(json.Unmarshal(resp.Body.Bytes(), &joinResponse)).Should(BeNil())
            Expect(joinResponse.Participants).Should(HaveLen(1))
        })

        It("Should respond with status code http.StatusBadRequest when no userId is given", func() {
            resp := post("/sessions/session-1/join", JoinSessionRequest{ Username: "alice" })

            Expect(resp.Code).Should(Equal(http.StatusBadRequest))
        })

        It("Should respond with status code http.StatusNotFound for an unknown session", func() {
            resp := post("/sessions/nope/join", JoinSessionRequest{ UserID: "user-1" })

            Expect(resp.Code).Should(Equal(http.StatusNotFound))
        })
    })

    Describe("POST /sessions/{sessionID}/leave", func() {
        It("Should remove the participant", func() {
            post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-1" })
            post("/sessions/session-1/join", JoinSessionRequest{ UserID: "user-1", Username: "alice" })
            post("/sessions/session-1/join", JoinSessionRequest{ UserID: "user-2", Username: "bob" })

            resp := post("/sessions/session-1/leave", LeaveSessionRequest{ UserID: "user-1" })

            Expect(resp.Code).Should(Equal(http.StatusOK))

            record, err := sessions.Get(context.Background(), "session-1")

            Expect(err).Should(BeNil())
            Expect(record.Participants).Should(HaveLen(1))
        })
    })

    Describe("POST /sessions/{sessionID}/heartbeat", func() {
        It("Should respond with status code http.StatusNotFound for an unknown session", func() {
            resp := post("/sessions/nope/heartbeat", struct{ }{ })

            Expect(resp.Code).Should(Equal(http.StatusNotFound))
        })

        It("Should accept a heartbeat for a live session", func() {
            post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-1" })

            resp := post("/sessions/session-1/heartbeat", struct{ }{ })

            Expect(resp.Code).Should(Equal(http.StatusOK))
        })
    })

    Describe("DELETE /sessions/{sessionID}", func() {
        It("Should terminate the session", func() {
            post("/sessions", CreateSessionRequest{ SessionID: "session-1", HostID: "host-1" })

            req := httptest.NewRequest("DELETE", "/sessions/session-1", nil)
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusOK))

            _, err := sessions.Get(context.Background(), "session-1")

            Expect(err).Should(Equal(ESessionNotFound))
        })
    })
})
