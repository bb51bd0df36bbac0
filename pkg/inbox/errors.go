package inbox

import (
	stderrors "errors"

	"github.com/txkafka/txkafka/pkg/errors"
)

// CodeInboxPersistFailed is reported when the dedup stage cannot insert an
// inbox row for a reason other than a duplicate-key violation.
const CodeInboxPersistFailed = "TXKAFKA_INBOX_PERSIST_FAILED"

var errNoActiveTransaction = stderrors.New("inbox: no active transaction in context")

func errPersistFailed(cause error) *errors.AppError {
	return errors.New(CodeInboxPersistFailed, "failed to persist inbox row", cause)
}
