package shared_test

import (
    "os"
    "path/filepath"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"

    . "github.com/cerenakmese/SmartStream/shared"
)

var _ = Describe("YAMLServerConfig", func() {
    validConfig := func() YAMLServerConfig {
        return YAMLServerConfig{
            NodeID: "relay-1",
            Port: 8080,
            HistoryFile: "/tmp/history",
        }
    }

    Describe("Validate", func() {
        It("Should fill in defaults for everything optional", func() {
            config := validConfig()

            Expect(config.Validate()).Should(BeNil())
            Expect(config.HeartbeatIntervalSeconds).Should(Equal(DefaultHeartbeatIntervalSeconds))
            Expect(config.NodeTTLSeconds).Should(Equal(DefaultNodeTTLSeconds))
            Expect(config.SweepIntervalSeconds).Should(Equal(DefaultSweepIntervalSeconds))
            Expect(config.HealthSweepIntervalSeconds).Should(Equal(DefaultHealthSweepIntervalSeconds))
            Expect(config.SessionTTLSeconds).Should(Equal(DefaultSessionTTLSeconds))
            Expect(config.EventLimit).Should(Equal(uint64(DefaultEventLimit)))
        })

        It("Should reject an invalid port", func() {
            config := validConfig()
            config.Port = 0

            Expect(config.Validate()).Should(Not(BeNil()))

            config.Port = 70000

            Expect(config.Validate()).Should(Not(BeNil()))
        })

        It("Should require the TTL to outlast the heartbeat interval", func() {
            config := validConfig()
            config.HeartbeatIntervalSeconds = 10
            config.NodeTTLSeconds = 10

            Expect(config.Validate()).Should(Not(BeNil()))

            config.NodeTTLSeconds = 11

            Expect(config.Validate()).Should(BeNil())
        })

        It("Should require a history file", func() {
            config := validConfig()
            config.HistoryFile = ""

            Expect(config.Validate()).Should(Not(BeNil()))
        })

        It("Should default the node id to the hostname", func() {
            config := validConfig()
            config.NodeID = ""

            Expect(config.Validate()).Should(BeNil())

            hostname, _ := os.Hostname()

            Expect(config.NodeID).Should(Equal(hostname))
        })

        It("Should reject an unknown log level", func() {
            config := validConfig()
            config.LogLevel = "loud"

            Expect(config.Validate()).Should(Not(BeNil()))

            config.LogLevel = "debug"

            Expect(config.Validate()).Should(BeNil())
        })
    })

    Describe("LoadFromFile", func() {
        It("Should parse and validate a config file", func() {
            dir, err := os.MkdirTemp("", "config")

            Expect(err).Should(BeNil())

            defer os.RemoveAll(dir)

            file := filepath.Join(dir, "smartstream.yaml")
            contents := []byte("nodeID: relay-9\nport: 9000\nhistoryFile: /tmp/history\nredis:\n    address: 127.0.0.1:6379\nheartbeatInterval: 2\nnodeTTL: 8\n")

            Expect(os.WriteFile(file, contents, 0644)).Should(BeNil())

            var config YAMLServerConfig

            Expect(config.LoadFromFile(file)).Should(BeNil())
            Expect(config.NodeID).Should(Equal("relay-9"))
            Expect(config.Port).Should(Equal(9000))
            Expect(config.Redis.Address).Should(Equal("127.0.0.1:6379"))
            Expect(config.HeartbeatIntervalSeconds).Should(Equal(2))
            Expect(config.NodeTTLSeconds).Should(Equal(8))
        })

        It("Should fail on a file that does not exist", func() {
            var config YAMLServerConfig

            Expect(config.LoadFromFile("/nonexistent/config.yaml")).Should(Not(BeNil()))
        })
    })
})
