package balancer_test

import (
    "context"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"

    . "github.com/cerenakmese/SmartStream/balancer"
    . "github.com/cerenakmese/SmartStream/coordination"
)

var _ = Describe("LoadBalancer", func() {
    var (
        store *MemoryStore
        balancer *LoadBalancer
        ctx context.Context
    )

    BeforeEach(func() {
        store = NewMemoryStore()
        balancer = NewLoadBalancer(store, "local-node")
        ctx = context.Background()
    })

    addNode := func(nodeID string, load string) {
        store.AddToSet(ctx, ActiveNodesSet, nodeID)
        store.SetFields(ctx, NodeKey(nodeID), map[string]string{ "status": "active", "load": load })
    }

    Describe("PickNode", func() {
        It("Should pick the least-loaded live node", func() {
            addNode("node-x", "2")
            addNode("node-y", "0")

            nodeID, fallback, err := balancer.PickNode(ctx)

            Expect(err).Should(BeNil())
            Expect(fallback).Should(BeFalse())
            Expect(nodeID).Should(Equal("node-y"))
        })

        It("Should charge the assignment to the chosen node", func() {
            addNode("node-x", "2")
            addNode("node-y", "0")

            balancer.PickNode(ctx)

            load, _, err := store.Field(ctx, NodeKey("node-y"), "load")

            Expect(err).Should(BeNil())
            Expect(load).Should(Equal("1"))
        })

        It("Should spread repeated placements across equally loaded nodes", func() {
            addNode("node-x", "0")
            addNode("node-y", "0")

            placements := make(map[string]int)

            for i := 0; i < 4; i++ {
                nodeID, _, err := balancer.PickNode(ctx)

                Expect(err).Should(BeNil())
                placements[nodeID]++
            }

            Expect(placements["node-x"]).Should(Equal(2))
            Expect(placements["node-y"]).Should(Equal(2))
        })

        It("Should fall back to the local node when no node is live", func() {
            nodeID, fallback, err := balancer.PickNode(ctx)

            Expect(err).Should(BeNil())
            Expect(fallback).Should(BeTrue())
            Expect(nodeID).Should(Equal("local-node"))
        })

        It("Should treat a node with no load counter as idle", func() {
            addNode("node-x", "5")
            store.AddToSet(ctx, ActiveNodesSet, "node-fresh")
            store.SetFields(ctx, NodeKey("node-fresh"), map[string]string{ "status": "active" })

            nodeID, _, err := balancer.PickNode(ctx)

            Expect(err).Should(BeNil())
            Expect(nodeID).Should(Equal("node-fresh"))
        })
    })

    Describe("ReleaseNode", func() {
        It("Should give one unit of load back", func() {
            addNode("node-x", "2")

            Expect(balancer.ReleaseNode(ctx, "node-x")).Should(BeNil())

            load, _, err := store.Field(ctx, NodeKey("node-x"), "load")

            Expect(err).Should(BeNil())
            Expect(load).Should(Equal("1"))
        })

        It("Should pin the counter at zero when a stale release undershoots", func() {
            addNode("node-x", "0")

            Expect(balancer.ReleaseNode(ctx, "node-x")).Should(BeNil())

            load, _, err := store.Field(ctx, NodeKey("node-x"), "load")

            Expect(err).Should(BeNil())
            Expect(load).Should(Equal("0"))
        })
    })
})
