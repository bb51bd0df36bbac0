package coordination

import "github.com/txkafka/txkafka/pkg/errors"

// CodeCoordinationLost is reported when ExclusiveNode cannot join the
// coordination consumer group at all (not for an ordinary loss of
// leadership, which is routine and silent per spec.md §4.6).
const CodeCoordinationLost = "TXKAFKA_COORDINATION_LOST"

func errCoordinationLost(cause error) *errors.AppError {
	return errors.New(CodeCoordinationLost, "failed to join coordination consumer group", cause)
}

// CodeConfigInvalid mirrors pkg/config's code for the one invariant this
// package validates itself (HeartbeatInterval < SessionTimeout), since
// ExclusiveConfig is built and validated before pkg/config's TypeConfig
// exists to delegate to.
const CodeConfigInvalid = "TXKAFKA_CONFIG_INVALID"

func errConfigInvalid(message string) *errors.AppError {
	return errors.New(CodeConfigInvalid, message, nil)
}
