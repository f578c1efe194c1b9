package routes_test

import (
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
)

var _ = Describe("Nodes", func() {
    var (
        store *MemoryStore
        router *mux.Router
        ctx context.Context
    )

    BeforeEach(func() {
        store = NewMemoryStore()
        ctx = context.Background()
        router = mux.NewRouter()

        (&NodesEndpoint{ Store: store, LocalNodeID: "node-a", StartedAt: time.Now() }).Attach(router)
        (&AdminEndpoint{ Store: store }).Attach(router)
    })

    Describe("GET /nodes", func() {
        It("Should list only live nodes with their load", func() {
            store.AddToSet(ctx, ActiveNodesSet, "node-a")
            store.AddToSet(ctx, KnownNodesSet, "node-a")
            store.AddToSet(ctx, KnownNodesSet, "node-dead")
            store.SetFields(ctx, NodeKey("node-a"), map[string]string{ "id": "node-a", "status": "active", "load": "2", "lastSeenAt": "1000" })

            req := httptest.NewRequest("GET", "/nodes", nil)
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusOK))

            var listResponse NodeListResponse

            Expect(json.Unmarshal(resp.Body.Bytes(), &listResponse)).Should(BeNil())
            Expect(listResponse.Count).Should(Equal(1))
            Expect(listResponse.Nodes[0].ID).Should(Equal("node-a"))
            Expect(listResponse.Nodes[0].Load).Should(Equal(int64(2)))
        })
    })

    Describe("GET /nodes/{nodeID}/health", func() {
        It("Should report the node healthy with its uptime", func() {
            req := httptest.NewRequest("GET", "/nodes/node-a/health", nil)
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusOK))

            var healthResponse NodeHealthResponse

            Expect(json.Unmarshal(resp.Body.Bytes(), &healthResponse)).Should(BeNil())
            Expect(healthResponse.NodeID).Should(Equal("node-a"))
            Expect(healthResponse.Status).Should(Equal("healthy"))
        })
    })

    Describe("Poison control", func() {
        It("Should write the poison flag on PUT", func() {
            req := httptest.NewRequest("PUT", "/nodes/node-b/poison", nil)
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusOK))

            exists, err := store.Exists(ctx, PoisonKey("node-b"))

            Expect(err).Should(BeNil())
            Expect(exists).Should(BeTrue())
        })

        It("Should clear the poison flag on DELETE", func() {
            store.Put(ctx, PoisonKey("node-b"), "1", 0)

            req := httptest.NewRequest("DELETE", "/nodes/node-b/poison", nil)
            resp := httptest.NewRecorder()

            router.ServeHTTP(resp, req)

            Expect(resp.Code).Should(Equal(http.StatusOK))

            exists, err := store.Exists(ctx, PoisonKey("node-b"))

            Expect(err).Should(BeNil())
            Expect(exists).Should(BeFalse())
        })
    })
})
