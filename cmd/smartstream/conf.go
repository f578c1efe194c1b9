package main

import (
    "fmt"
)

var templateConfig string =
`# The nodeID field gives this relay node its cluster-wide identity. Every
# node in the cluster must use a distinct nodeID. If left empty the
# machine's hostname is used.
nodeID: relay-1

# The port field specifies the port number on which to run the relay
# server. Both the HTTP control surface and the realtime websocket channel
# are served from this port.
port: 8080

# The redis section points at the shared coordination store. Every node in
# the cluster must point at the same store.
redis:
    address: 127.0.0.1:6379
    password:

# The historyFile field specifies the file where the local event history
# database resides on disk. If it doesn't exist it will be created.
# **REQUIRED**
historyFile: /var/lib/smartstream/history

# The eventLimit field caps how many events the local history retains.
# When the limit is exceeded the oldest events are purged first.
eventLimit: 10000

# The heartbeatInterval field controls how often (in seconds) this node
# refreshes its liveness record. It must be strictly less than nodeTTL or
# a healthy node would flap in and out of the cluster.
heartbeatInterval: 3

# The nodeTTL field controls how long (in seconds) the liveness record
# survives without a heartbeat before the rest of the cluster judges this
# node dead and migrates its sessions.
nodeTTL: 10

# The sweepInterval field controls how often (in seconds) this node scans
# for dead peers and orphaned sessions.
sweepInterval: 10

# The healthSweepInterval field controls how often (in seconds) this node
# reconciles session health status against cluster membership.
healthSweepInterval: 3

# The sessionTTL field controls how long (in seconds) a session record
# survives without activity before it expires.
sessionTTL: 3600

# The logLevel field sets the logging verbosity. One of critical, error,
# warning, notice, info or debug.
logLevel: info
`

func init() {
    registerCommand("conf", generateConfig, confUsage)
}

var confUsage string =
`Usage: smartstream conf > path/to/output.yaml
`

func generateConfig() {
    fmt.Print(templateConfig)
}
