package main

import (
    "context"
    "fmt"
    "os"
    "strconv"
    "time"

    "github.com/olekukonko/tablewriter"

    . "github.com/cerenakmese/SmartStream/coordination"
    "github.com/cerenakmese/SmartStream/session"
    "github.com/cerenakmese/SmartStream/shared"
)

func init() {
    registerCommand("overview", clusterOverview, overviewUsage)
}

var overviewUsage string =
`Usage: smartstream overview -conf=[config file]
`

func clusterOverview() {
    var config shared.YAMLServerConfig

    if err := config.LoadFromFile(*optConfigFile); err != nil {
        fmt.Printf("Unable to load config file: %s\n", err.Error())

        os.Exit(1)
    }

    store := NewRedisStore(config.Redis.Address, config.Redis.Password)
    defer store.Close()

    ctx, cancel := context.WithTimeout(context.Background(), time.Second * 10)
    defer cancel()

    if err := printNodes(ctx, store); err != nil {
        fmt.Printf("Unable to read cluster nodes: %s\n", err.Error())

        os.Exit(1)
    }

    fmt.Println()

    if err := printSessions(ctx, store); err != nil {
        fmt.Printf("Unable to read sessions: %s\n", err.Error())

        os.Exit(1)
    }
}

func printNodes(ctx context.Context, store Store) error {
    knownNodes, err := store.SetMembers(ctx, KnownNodesSet)

    if err != nil {
        return err
    }

    activeNodes, err := store.SetMembers(ctx, ActiveNodesSet)

    if err != nil {
        return err
    }

    active := make(map[string]bool, len(activeNodes))

    for _, nodeID := range activeNodes {
        active[nodeID] = true
    }

    table := tablewriter.NewWriter(os.Stdout)
    table.SetHeader([]string{ "Node", "Status", "Load", "Last Seen" })

    for _, nodeID := range knownNodes {
        status := "dead"

        if active[nodeID] {
            status = "active"
        }

        load, _, _ := store.Field(ctx, NodeKey(nodeID), "load")
        lastSeen := "-"

        if lastSeenAt, ok, _ := store.Field(ctx, NodeKey(nodeID), "lastSeenAt"); ok {
            if millis, err := strconv.ParseInt(lastSeenAt, 10, 64); err == nil {
                lastSeen = time.UnixMilli(millis).Format(time.RFC3339)
            }
        }

        if load == "" {
            load = "0"
        }

        table.Append([]string{ nodeID, status, load, lastSeen })
    }

    table.Render()

    return nil
}

func printSessions(ctx context.Context, store Store) error {
    keys, err := store.Keys(ctx, SessionKeyPrefix)

    if err != nil {
        return err
    }

    table := tablewriter.NewWriter(os.Stdout)
    table.SetHeader([]string{ "Session", "Node", "Status", "Participants", "Created" })

    for _, key := range keys {
        fields, err := store.Fields(ctx, key)

        if err != nil || len(fields) == 0 {
            continue
        }

        record := session.RecordFromFields(fields)
        created := time.UnixMilli(record.CreatedAt).Format(time.RFC3339)

        table.Append([]string{ record.ID, record.NodeID, record.Status, strconv.Itoa(len(record.Participants)), created })
    }

    table.Render()

    return nil
}
