package middleware

import "github.com/txkafka/txkafka/pkg/errors"

// CodeDuplicateStage is reported at chain-build time when two stages
// register under the same identity.
const CodeDuplicateStage = "TXKAFKA_DUPLICATE_MIDDLEWARE"

func errDuplicateStage(identity string) *errors.AppError {
	return errors.New(CodeDuplicateStage, "middleware already registered: "+identity, nil)
}
