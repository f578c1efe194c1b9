package main

import (
    "flag"
    "fmt"
    "os"
)

var optConfigFile *string = flag.String("conf", "", "Config file to use for this node")

var usage string =
`Usage: smartstream <command> <arguments>

Commands:
    start      Start a relay node
    conf       Generate a template configuration file
    overview   Show the nodes and sessions in the cluster

Use smartstream help <command> for more usage information about a command.
`

type commandDescriptor struct {
    execute func()
    usage string
}

var commands map[string]commandDescriptor = make(map[string]commandDescriptor)

func registerCommand(name string, execute func(), usage string) {
    commands[name] = commandDescriptor{
        execute: execute,
        usage: usage,
    }
}

func main() {
    if len(os.Args) < 2 {
        fmt.Print(usage)
        os.Exit(1)
    }

    commandName := os.Args[1]

    if commandName == "help" {
        if len(os.Args) < 3 {
            fmt.Print(usage)
            os.Exit(0)
        }

        command, ok := commands[os.Args[2]]

        if !ok {
            fmt.Printf("%s is not a recognized command\n", os.Args[2])
            os.Exit(1)
        }

        fmt.Print(command.usage)
        os.Exit(0)
    }

    command, ok := commands[commandName]

    if !ok {
        fmt.Printf("%s is not a recognized command\n", commandName)
        fmt.Print(usage)
        os.Exit(1)
    }

    flag.CommandLine.Parse(os.Args[2:])

    command.execute()
}
