package routes

import (
    . "github.com/cerenakmese/SmartStream/session"
)

type CreateSessionRequest struct {
    SessionID string `json:"sessionId"`
    HostID string `json:"hostId"`
}

type CreateSessionResponse struct {
    SessionID string `json:"sessionId"`
    NodeID string `json:"nodeId"`
    ManagerFallback bool `json:"managerFallback"`
}

type JoinSessionRequest struct {
    UserID string `json:"userId"`
    Username string `json:"username"`
}

type JoinSessionResponse struct {
    SessionID string `json:"sessionId"`
    Participants []Participant `json:"participants"`
}

type LeaveSessionRequest struct {
    UserID string `json:"userId"`
}

type SessionListResponse struct {
    Count int `json:"count"`
    Sessions []*Record `json:"sessions"`
}

type APINode struct {
    ID string `json:"id"`
    LastSeenAt int64 `json:"lastSeenAt"`
    Load int64 `json:"load"`
    Status string `json:"status"`
}

type NodeListResponse struct {
    Count int `json:"count"`
    Nodes []APINode `json:"nodes"`
}

type NodeHealthResponse struct {
    NodeID string `json:"nodeId"`
    Status string `json:"status"`
    UptimeSeconds float64 `json:"uptimeSeconds"`
}
