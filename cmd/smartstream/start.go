package main

import (
    "fmt"
    "os"
    "os/signal"
    "syscall"

    . "github.com/cerenakmese/SmartStream/logging"
    "github.com/cerenakmese/SmartStream/node"
    "github.com/cerenakmese/SmartStream/shared"
)

func init() {
    registerCommand("start", startNode, startUsage)
}

var startUsage string =
`Usage: smartstream start -conf=[config file]
`

func startNode() {
    var config shared.YAMLServerConfig

    if err := config.LoadFromFile(*optConfigFile); err != nil {
        fmt.Printf("Unable to load config file: %s\n", err.Error())

        os.Exit(1)
    }

    SetLoggingLevel(config.LogLevel)

    relayNode := node.New(node.RelayNodeConfig{ Config: &config })

    signals := make(chan os.Signal, 1)
    signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

    go func() {
        sig := <-signals

        Log.Infof("Received signal %v. Shutting down", sig)
        relayNode.Stop()
    }()

    if err := relayNode.Start(); err != nil {
        Log.Criticalf("Relay node exited with error: %v", err.Error())

        os.Exit(1)
    }
}
