package metrics_test

import (
    "time"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"

    . "github.com/cerenakmese/SmartStream/metrics"
    . "github.com/cerenakmese/SmartStream/qos"
)

var _ = Describe("Engine", func() {
    var (
        engine *Engine
        clockMillis int64
        clientMillis int64
    )

    BeforeEach(func() {
        engine = NewEngine()
        clockMillis = 1000000
        clientMillis = 500000

        engine.Now = func() time.Time {
            return time.UnixMilli(clockMillis)
        }
    })

    // observe advances the fake arrival clock and the fake client clock
    // independently and feeds one ping. Equal steps mean a perfectly
    // steady network.
    observe := func(connectionID string, seqNum int64, arrivalStep int64, clientStep int64) Sample {
        clockMillis += arrivalStep
        clientMillis += clientStep

        return engine.Observe(connectionID, Ping{
            SessionID: "session-1",
            Timestamp: clientMillis,
            SeqNum: seqNum,
        })
    }

    Describe("Cold start", func() {
        It("Should report a zero sample for the first ping", func() {
            sample := engine.Observe("c1", Ping{ SessionID: "session-1", Timestamp: 999500, SeqNum: 1 })

            Expect(sample.JitterMs).Should(BeZero())
            Expect(sample.PacketLossPct).Should(BeZero())
            Expect(sample.HealthScore).Should(BeZero())
            Expect(sample.Preference).Should(Equal(PreferenceBalanced))
        })

        It("Should still cold start when the preference was set before any ping", func() {
            engine.SetPreference("c1", PreferenceVideoOnly)

            sample := engine.Observe("c1", Ping{ SessionID: "session-1", Timestamp: 1, SeqNum: 1 })

            Expect(sample.JitterMs).Should(BeZero())
            Expect(sample.PacketLossPct).Should(BeZero())
            Expect(sample.Preference).Should(Equal(PreferenceVideoOnly))
        })
    })

    Describe("Packet loss", func() {
        It("Should count sequence gaps as lost packets", func() {
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 1 })
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 2 })
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 3 })

            sample := engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 5 })

            // 4 received, 1 lost
            Expect(sample.PacketLossPct).Should(BeNumerically("~", 20.0, 0.001))
        })

        It("Should not count duplicates or reordered arrivals as loss", func() {
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 1 })
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 2 })
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 2 })

            sample := engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 3 })

            Expect(sample.PacketLossPct).Should(BeZero())
        })
    })

    Describe("Jitter", func() {
        It("Should stay at zero when arrivals track the client clock exactly", func() {
            observe("c1", 1, 100, 100)

            for seq := int64(2); seq <= 10; seq++ {
                sample := observe("c1", seq, 100, 100)

                Expect(sample.JitterMs).Should(BeZero())
            }
        })

        It("Should fold delay variance in with a 1/16 weight", func() {
            observe("c1", 1, 100, 100)
            observe("c1", 2, 100, 100)

            // One arrival delayed by 32ms relative to the client's pace.
            sample := observe("c1", 3, 132, 100)

            Expect(sample.JitterMs).Should(BeNumerically("~", 2.0, 0.001))

            // Back in lockstep the estimate decays toward zero.
            sample = observe("c1", 4, 100, 100)

            Expect(sample.JitterMs).Should(BeNumerically("~", 1.875, 0.001))
        })

        It("Should converge toward a sustained delay variance", func() {
            observe("c1", 1, 100, 100)

            var sample Sample

            for seq := int64(2); seq <= 200; seq++ {
                // Alternating early and late arrivals, 16ms variance.
                if seq % 2 == 0 {
                    sample = observe("c1", seq, 116, 100)
                } else {
                    sample = observe("c1", seq, 84, 100)
                }
            }

            Expect(sample.JitterMs).Should(BeNumerically("~", 16.0, 1.0))
        })
    })

    Describe("Health score", func() {
        It("Should read 100 on a perfect network", func() {
            Expect(HealthScore(0, 0)).Should(Equal(100))
        })

        It("Should punish loss ten times as hard as jitter", func() {
            Expect(HealthScore(10, 2)).Should(Equal(85))
        })

        It("Should clamp to the 0..100 range", func() {
            Expect(HealthScore(300, 50)).Should(Equal(0))
            Expect(HealthScore(-10, -10)).Should(Equal(100))
        })
    })

    Describe("Simulated impairment", func() {
        It("Should raise loss to the simulated floor", func() {
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 1 })

            sample := engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 2, Simulated: &Impairment{ PacketLossPct: 10 } })

            Expect(sample.PacketLossPct).Should(BeNumerically("~", 10.0, 0.001))
        })

        It("Should never make observed loss look better", func() {
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 1 })
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 5 })

            sample := engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 6, Simulated: &Impairment{ PacketLossPct: 1 } })

            Expect(sample.PacketLossPct).Should(BeNumerically(">", 1.0))
        })

        It("Should add simulated jitter on top of the estimate", func() {
            observe("c1", 1, 100, 100)
            observe("c1", 2, 100, 100)

            clockMillis += 100
            clientMillis += 100
            sample := engine.Observe("c1", Ping{ Timestamp: clientMillis, SeqNum: 3, Simulated: &Impairment{ JitterMs: 40 } })

            Expect(sample.JitterMs).Should(BeNumerically("~", 40.0, 0.001))
        })

        It("Should not leak the overlay into later unimpaired samples", func() {
            observe("c1", 1, 100, 100)

            clockMillis += 100
            clientMillis += 100
            engine.Observe("c1", Ping{ Timestamp: clientMillis, SeqNum: 2, Simulated: &Impairment{ JitterMs: 40, PacketLossPct: 50 } })

            sample := observe("c1", 3, 100, 100)

            Expect(sample.JitterMs).Should(BeNumerically("<", 40.0))
            Expect(sample.PacketLossPct).Should(BeZero())
        })
    })

    Describe("Connection lifecycle", func() {
        It("Should track the number of live connections", func() {
            engine.Observe("c1", Ping{ SeqNum: 1 })
            engine.Observe("c2", Ping{ SeqNum: 1 })

            Expect(engine.ConnectionCount()).Should(Equal(2))

            engine.RemoveConnection("c1")

            Expect(engine.ConnectionCount()).Should(Equal(1))
        })

        It("Should treat a removed connection as a fresh cold start", func() {
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 1 })
            engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 10 })
            engine.RemoveConnection("c1")

            sample := engine.Observe("c1", Ping{ Timestamp: 0, SeqNum: 11 })

            Expect(sample.PacketLossPct).Should(BeZero())
        })

        It("Should remember the session a connection belongs to", func() {
            engine.Observe("c1", Ping{ SessionID: "session-1", SeqNum: 1 })

            Expect(engine.SessionID("c1")).Should(Equal("session-1"))
            Expect(engine.SessionID("unknown")).Should(Equal(""))
        })
    })
})
