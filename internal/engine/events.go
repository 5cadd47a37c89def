package engine

import (
	"CredTree/internal/ledger"
	"CredTree/internal/logger"
)

// EventLogger writes every domain event to the log at INFO.
type EventLogger struct{}

// Emit logs ev with only the fields its kind uses.
func (EventLogger) Emit(ev ledger.Event) {
	args := []any{
		"kind", ev.Kind,
		"entity", ev.Entity.Short(),
		"actor", ev.Actor.Short(),
		"seq", ev.Sequence,
	}

	switch ev.Kind {
	case ledger.CredentialIssued, ledger.CredentialSigned, ledger.ProofAggregated:
		args = append(args, "digest", ev.Digest.Short(), "subject", ev.Subject.Short())
	case ledger.CredentialRevoked:
		args = append(args, "digest", ev.Digest.Short(), "subject", ev.Subject.Short(), "reason", ev.Reason.Short())
	case ledger.StudentEnrolled, ledger.StudentUnenrolled:
		args = append(args, "student", ev.Subject.Short())
	case ledger.ChildAdded:
		args = append(args, "child", ev.Child.Short())
	case ledger.SemesterRegistered:
		args = append(args, "semester", ev.Digest.Short())
	}

	logger.Info("event", args...)
}
