package qos

import (
    "fmt"
)

type Preference string

const (
    PreferenceAudioOnly Preference = "audio-only"
    PreferenceHighQuality Preference = "high-quality"
    PreferenceVideoOnly Preference = "video-only"
    PreferenceBalanced Preference = "balanced"
)

func ParsePreference(preference string) Preference {
    switch Preference(preference) {
    case PreferenceAudioOnly, PreferenceHighQuality, PreferenceVideoOnly, PreferenceBalanced:
        return Preference(preference)
    default:
        return PreferenceBalanced
    }
}

type Action string

const (
    ActionMaintain Action = "MAINTAIN"
    ActionLowerQuality Action = "LOWER_QUALITY"
    ActionDropVideo Action = "DROP_VIDEO"
    ActionAudioOnly Action = "AUDIO_ONLY"
    ActionDropAudio Action = "DROP_AUDIO"
    ActionDropAudioLowerVideo Action = "DROP_AUDIO_LOWER_VIDEO"
)

type VideoQuality string

const (
    VideoOff VideoQuality = "OFF"
    VideoLow VideoQuality = "LOW"
    VideoHigh VideoQuality = "HIGH"
)

type PriorityQueue string

const (
    QueueNormal PriorityQueue = "NORMAL"
    QueueHigh PriorityQueue = "HIGH"
)

// Decision is derived state. It is recomputed from the current sample on
// every read and never persisted as a source of truth.
type Decision struct {
    Action Action `json:"action"`
    VideoQuality VideoQuality `json:"videoQuality"`
    PriorityQueue PriorityQueue `json:"priorityQueue"`
    Reason string `json:"reason"`
}

// Material reports whether a decision is worth recording externally.
// Steady-state MAINTAIN decisions happen on every ping and are noise.
func (decision Decision) Material() bool {
    return decision.Action != ActionMaintain
}

const (
    criticalLossPct = 3.0
    aggressiveLossPct = 15.0
    balancedJitterMs = 50.0
    tolerantJitterMs = 100.0
)

// Decide maps the current network sample and the user's preference to a
// quality action. First matching rule wins within a preference. It never
// mutates its inputs and is safe to call on every metrics update.
func Decide(jitterMs float64, packetLossPct float64, preference Preference) Decision {
    switch preference {
    case PreferenceAudioOnly:
        return Decision{
            Action: ActionAudioOnly,
            VideoQuality: VideoOff,
            PriorityQueue: QueueHigh,
            Reason: "User preference: audio only",
        }

    case PreferenceHighQuality:
        if packetLossPct > aggressiveLossPct {
            return Decision{
                Action: ActionDropVideo,
                VideoQuality: VideoOff,
                PriorityQueue: QueueHigh,
                Reason: fmt.Sprintf("Critical packet loss in high-quality mode: %.1f%%", packetLossPct),
            }
        }

        // Below the aggressive limit video is kept on no matter what.
        // The user asked for video, so degrade rather than drop.
        if packetLossPct > criticalLossPct || jitterMs > tolerantJitterMs {
            return Decision{
                Action: ActionLowerQuality,
                VideoQuality: VideoLow,
                PriorityQueue: QueueNormal,
                Reason: fmt.Sprintf("Forcing video through a bad network: loss %.1f%%, jitter %.1fms", packetLossPct, jitterMs),
            }
        }

        return Decision{
            Action: ActionMaintain,
            VideoQuality: VideoHigh,
            PriorityQueue: QueueNormal,
            Reason: "High-quality mode active",
        }

    case PreferenceVideoOnly:
        if packetLossPct > aggressiveLossPct {
            return Decision{
                Action: ActionDropAudioLowerVideo,
                VideoQuality: VideoLow,
                PriorityQueue: QueueHigh,
                Reason: fmt.Sprintf("Critical packet loss (%.1f%%): sacrificing audio", packetLossPct),
            }
        }

        if packetLossPct > criticalLossPct {
            return Decision{
                Action: ActionDropAudio,
                VideoQuality: VideoHigh,
                PriorityQueue: QueueHigh,
                Reason: fmt.Sprintf("Video-only mode: dropping audio at %.1f%% loss", packetLossPct),
            }
        }

        return Decision{
            Action: ActionMaintain,
            VideoQuality: VideoHigh,
            PriorityQueue: QueueNormal,
            Reason: "Video-only mode active",
        }

    default:
        if packetLossPct > criticalLossPct {
            return Decision{
                Action: ActionDropVideo,
                VideoQuality: VideoOff,
                PriorityQueue: QueueHigh,
                Reason: fmt.Sprintf("Packet loss above %.0f%% (%.1f%%)", criticalLossPct, packetLossPct),
            }
        }

        if jitterMs > balancedJitterMs {
            return Decision{
                Action: ActionLowerQuality,
                VideoQuality: VideoLow,
                PriorityQueue: QueueNormal,
                Reason: fmt.Sprintf("High jitter: %.1fms", jitterMs),
            }
        }

        return Decision{
            Action: ActionMaintain,
            VideoQuality: VideoHigh,
            PriorityQueue: QueueNormal,
            Reason: "Network stable",
        }
    }
}
