package shared

import (
    "errors"
    "fmt"
    "io/ioutil"
    "os"

    "gopkg.in/yaml.v2"

    . "github.com/cerenakmese/SmartStream/logging"
)

const (
    DefaultHeartbeatIntervalSeconds = 3
    DefaultNodeTTLSeconds = 10
    DefaultSweepIntervalSeconds = 10
    DefaultHealthSweepIntervalSeconds = 3
    DefaultSessionTTLSeconds = 3600
    DefaultEventLimit = 10000
)

type YAMLServerConfig struct {
    NodeID string `yaml:"nodeID"`
    Port int `yaml:"port"`
    Redis YAMLRedis `yaml:"redis"`
    HistoryFile string `yaml:"historyFile"`
    EventLimit uint64 `yaml:"eventLimit"`
    HeartbeatIntervalSeconds int `yaml:"heartbeatInterval"`
    NodeTTLSeconds int `yaml:"nodeTTL"`
    SweepIntervalSeconds int `yaml:"sweepInterval"`
    HealthSweepIntervalSeconds int `yaml:"healthSweepInterval"`
    SessionTTLSeconds int `yaml:"sessionTTL"`
    LogLevel string `yaml:"logLevel"`
}

type YAMLRedis struct {
    Address string `yaml:"address"`
    Password string `yaml:"password"`
}

func (ysc *YAMLServerConfig) LoadFromFile(file string) error {
    rawConfig, err := ioutil.ReadFile(file)

    if err != nil {
        return err
    }

    err = yaml.Unmarshal(rawConfig, ysc)

    if err != nil {
        return err
    }

    return ysc.Validate()
}

func (ysc *YAMLServerConfig) Validate() error {
    if !isValidPort(ysc.Port) {
        return errors.New(fmt.Sprintf("%d is an invalid port for the relay server", ysc.Port))
    }

    if ysc.NodeID == "" {
        hostname, err := os.Hostname()

        if err != nil {
            return errors.New("No nodeID was configured and the hostname could not be determined")
        }

        ysc.NodeID = hostname
    }

    if ysc.HistoryFile == "" {
        return errors.New("No historyFile was specified")
    }

    if ysc.HeartbeatIntervalSeconds <= 0 {
        ysc.HeartbeatIntervalSeconds = DefaultHeartbeatIntervalSeconds
    }

    if ysc.NodeTTLSeconds <= 0 {
        ysc.NodeTTLSeconds = DefaultNodeTTLSeconds
    }

    // The liveness window has to outlast at least one missed beat or a
    // paused process gets declared dead on every long GC pause.
    if ysc.NodeTTLSeconds <= ysc.HeartbeatIntervalSeconds {
        return errors.New(fmt.Sprintf("nodeTTL (%ds) must be strictly greater than heartbeatInterval (%ds)", ysc.NodeTTLSeconds, ysc.HeartbeatIntervalSeconds))
    }

    if ysc.SweepIntervalSeconds <= 0 {
        ysc.SweepIntervalSeconds = DefaultSweepIntervalSeconds
    }

    if ysc.HealthSweepIntervalSeconds <= 0 {
        ysc.HealthSweepIntervalSeconds = DefaultHealthSweepIntervalSeconds
    }

    if ysc.SessionTTLSeconds <= 0 {
        ysc.SessionTTLSeconds = DefaultSessionTTLSeconds
    }

    if ysc.EventLimit == 0 {
        ysc.EventLimit = DefaultEventLimit
    }

    if ysc.LogLevel != "" && !LogLevelIsValid(ysc.LogLevel) {
        return errors.New(fmt.Sprintf("%s is not a valid log level", ysc.LogLevel))
    }

    return nil
}

func isValidPort(port int) bool {
    return port > 0 && port < (1 << 16)
}
