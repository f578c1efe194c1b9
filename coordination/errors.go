package coordination

type CoordinationError struct {
    message string
    code int
}

func (coordinationError CoordinationError) Error() string {
    return coordinationError.message
}

func (coordinationError CoordinationError) Code() int {
    return coordinationError.code
}

const (
    eLOCK = iota
    eSESSION_NOT_FOUND = iota
    eSESSION_EXISTS = iota
    eSTORAGE = iota
    eCORRUPTED = iota
)

var (
    ELockNotAcquired = CoordinationError{ "The lock is held by another process", eLOCK }
    ESessionNotFound = CoordinationError{ "No session exists with that ID", eSESSION_NOT_FOUND }
    ESessionExists   = CoordinationError{ "A session already exists with that ID", eSESSION_EXISTS }
    EStorage         = CoordinationError{ "The coordination store experienced an error", eSTORAGE }
    ECorrupted       = CoordinationError{ "A stored field could not be parsed", eCORRUPTED }
)
