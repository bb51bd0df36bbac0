package outbox

import (
	stderrors "errors"

	"github.com/txkafka/txkafka/pkg/errors"
)

// CodeOutboxPersistFailed is reported when the outbox stage cannot insert
// a row into the host's active transaction.
const CodeOutboxPersistFailed = "TXKAFKA_OUTBOX_PERSIST_FAILED"

// errNoActiveTransaction indicates the outbox stage ran without a
// transaction attached to its context, which is always a wiring bug in the
// host save-changes hook (pkg/host), never an application-level condition.
var errNoActiveTransaction = stderrors.New("outbox: no active transaction in context")

func errPersistFailed(cause error) *errors.AppError {
	return errors.New(CodeOutboxPersistFailed, "failed to persist outbox row", cause)
}
