package server

import (
    "context"
    "net"
    "net/http"
    "strconv"
    "time"

    "github.com/gorilla/mux"
    "github.com/gorilla/websocket"

    . "github.com/cerenakmese/SmartStream/historian"
    . "github.com/cerenakmese/SmartStream/logging"
    "github.com/cerenakmese/SmartStream/coordination"
    "github.com/cerenakmese/SmartStream/metrics"
    "github.com/cerenakmese/SmartStream/monitor"
    "github.com/cerenakmese/SmartStream/registry"
    "github.com/cerenakmese/SmartStream/routes"
    "github.com/cerenakmese/SmartStream/session"
)

type RelayServerConfig struct {
    Port int
    Store coordination.Store
    Registry *registry.NodeRegistry
    Sessions *session.SessionStore
    Engine *metrics.Engine
    Historian *Historian
}

// RelayServer is the network face of one relay node: the HTTP control
// surface plus the realtime websocket channel every client ping flows
// through.
type RelayServer struct {
    httpServer *http.Server
    listener net.Listener
    upgrader websocket.Upgrader
    port int
    store coordination.Store
    registry *registry.NodeRegistry
    sessions *session.SessionStore
    engine *metrics.Engine
    historian *Historian
}

func NewRelayServer(serverConfig RelayServerConfig) *RelayServer {
    upgrader := websocket.Upgrader{
        ReadBufferSize: 1024,
        WriteBufferSize: 1024,
        CheckOrigin: func(r *http.Request) bool {
            return true
        },
    }

    return &RelayServer{
        upgrader: upgrader,
        port: serverConfig.Port,
        store: serverConfig.Store,
        registry: serverConfig.Registry,
        sessions: serverConfig.Sessions,
        engine: serverConfig.Engine,
        historian: serverConfig.Historian,
    }
}

func (server *RelayServer) Port() int {
    return server.port
}

func (server *RelayServer) Start() error {
    r := mux.NewRouter()

    (&routes.SessionsEndpoint{ Sessions: server.sessions }).Attach(r)
    (&routes.NodesEndpoint{ Store: server.store, LocalNodeID: server.registry.NodeID(), StartedAt: time.Now() }).Attach(r)
    (&routes.AdminEndpoint{ Store: server.store }).Attach(r)

    if server.historian != nil {
        (&routes.HistoryEndpoint{ Historian: server.historian }).Attach(r)
    }

    r.Handle("/metrics", monitor.Handler()).Methods("GET")

    r.HandleFunc("/realtime", func(w http.ResponseWriter, req *http.Request) {
        if !server.registry.IsActive() {
            Log.Warningf("Node %s is not active. Refusing realtime connection", server.registry.NodeID())

            w.WriteHeader(http.StatusServiceUnavailable)

            return
        }

        conn, err := server.upgrader.Upgrade(w, req, nil)

        if err != nil {
            Log.Errorf("Unable to upgrade realtime connection: %v", err)

            return
        }

        connection := NewConnection(ConnectionConfig{
            Conn: conn,
            Registry: server.registry,
            Sessions: server.sessions,
            Engine: server.engine,
            Historian: server.historian,
        })

        // The request context dies when this handler returns but the
        // hijacked websocket lives on. The connection gets its own.
        go connection.Run(context.Background())
    }).Methods("GET")

    server.httpServer = &http.Server{
        Handler: r,
        WriteTimeout: 15 * time.Second,
        ReadTimeout: 15 * time.Second,
    }

    listener, err := net.Listen("tcp", "0.0.0.0:" + strconv.Itoa(server.port))

    if err != nil {
        Log.Errorf("Error listening on port %d: %v", server.port, err)

        return err
    }

    server.listener = listener

    Log.Infof("Relay node %s listening on port %d", server.registry.NodeID(), server.port)

    err = server.httpServer.Serve(server.listener)

    if err == http.ErrServerClosed {
        return nil
    }

    return err
}

func (server *RelayServer) Stop() error {
    if server.httpServer != nil {
        server.httpServer.Close()
    }

    return nil
}
