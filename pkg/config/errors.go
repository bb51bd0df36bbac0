package config

import "github.com/txkafka/txkafka/pkg/errors"

// CodeInvalid is reported for any configuration that fails validation at
// build time, before any broker connection or SaveChanges hook runs.
const CodeInvalid = "TXKAFKA_CONFIG_INVALID"

func errConfigInvalid(message string) *errors.AppError {
	return errors.New(CodeInvalid, message, nil)
}
