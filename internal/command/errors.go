package command

import (
	"errors"
	"fmt"

	"CredTree/internal/composite"
	"CredTree/internal/directory"
	"CredTree/internal/ledger"
)

// Code is the stable wire number of an error condition.
type Code uint16

const (
	CodeOK Code = iota
	CodeInternal
	CodeInvalidCommand
	CodeUnauthorized
	CodeInvalidConfiguration
	CodeSelfAttestation
	CodeDigestSubjectMismatch
	CodeAlreadySigned
	CodeNoSuchCredential
	CodeSubjectMismatch
	CodeQuorumNotReached
	CodeAlreadyConfirmed
	CodePreviousNotConfirmed
	CodeNoCredential
	CodeUnsignedCredentials
	CodeNoAggregate
	CodeInsufficientChildren
	CodeInvalidIdentity
	CodeUnregisteredChild
	CodeNotAnAuthority
	CodeCredentialRevoked
	CodeChildExists
	CodeNotEnrolled
	CodeAlreadyEnrolled
	CodeNoRoster
	CodePeriodClosed
	CodePeriodOpen
	CodeRootMismatch
	CodeUnknownEntity
	CodeEntityExists
	CodeNotComposite
	CodeCyclicChild
	CodeInvalidDigest
	CodeSemesterExists
	CodeNoSuchSemester
)

// codes maps each code to its sentinel and metrics label.
var codes = []struct {
	code Code
	err  error
	name string
}{
	{CodeInvalidCommand, ErrInvalidCommand, "invalid_command"},
	{CodeUnauthorized, ledger.ErrUnauthorized, "unauthorized"},
	{CodeInvalidConfiguration, ledger.ErrInvalidConfiguration, "invalid_configuration"},
	{CodeSelfAttestation, ledger.ErrSelfAttestation, "self_attestation"},
	{CodeDigestSubjectMismatch, ledger.ErrDigestSubjectMismatch, "digest_subject_mismatch"},
	{CodeAlreadySigned, ledger.ErrAlreadySigned, "already_signed"},
	{CodeNoSuchCredential, ledger.ErrNoSuchCredential, "no_such_credential"},
	{CodeSubjectMismatch, ledger.ErrSubjectMismatch, "subject_mismatch"},
	{CodeQuorumNotReached, ledger.ErrQuorumNotReached, "quorum_not_reached"},
	{CodeAlreadyConfirmed, ledger.ErrAlreadyConfirmed, "already_confirmed"},
	{CodePreviousNotConfirmed, ledger.ErrPreviousNotConfirmed, "previous_not_confirmed"},
	{CodeNoCredential, ledger.ErrNoCredential, "no_credential"},
	{CodeUnsignedCredentials, ledger.ErrUnsignedCredentials, "unsigned_credentials"},
	{CodeNoAggregate, ledger.ErrNoAggregate, "no_aggregate"},
	{CodeInsufficientChildren, composite.ErrInsufficientChildren, "insufficient_children"},
	{CodeInvalidIdentity, ledger.ErrInvalidIdentity, "invalid_identity"},
	{CodeUnregisteredChild, composite.ErrUnregisteredChild, "unregistered_child"},
	{CodeNotAnAuthority, composite.ErrNotAnAuthority, "not_an_authority"},
	{CodeCredentialRevoked, ledger.ErrCredentialRevoked, "credential_revoked"},
	{CodeChildExists, composite.ErrChildExists, "child_exists"},
	{CodeNotEnrolled, ledger.ErrNotEnrolled, "not_enrolled"},
	{CodeAlreadyEnrolled, ledger.ErrAlreadyEnrolled, "already_enrolled"},
	{CodeNoRoster, ledger.ErrNoRoster, "no_roster"},
	{CodePeriodClosed, ledger.ErrPeriodClosed, "period_closed"},
	{CodePeriodOpen, ledger.ErrPeriodOpen, "period_open"},
	{CodeRootMismatch, composite.ErrRootMismatch, "root_mismatch"},
	{CodeUnknownEntity, directory.ErrUnknownEntity, "unknown_entity"},
	{CodeEntityExists, directory.ErrEntityExists, "entity_exists"},
	{CodeNotComposite, directory.ErrNotComposite, "not_composite"},
	{CodeCyclicChild, composite.ErrCyclicChild, "cyclic_child"},
	{CodeInvalidDigest, ledger.ErrInvalidDigest, "invalid_digest"},
	{CodeSemesterExists, composite.ErrSemesterExists, "semester_exists"},
	{CodeNoSuchSemester, composite.ErrNoSuchSemester, "no_such_semester"},
}

// CodeOf returns the wire code for err. Unknown errors map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeInternal
}

// String returns a short snake_case name, used as a metrics label.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInternal:
		return "internal"
	}

	for _, e := range codes {
		if e.code == c {
			return e.name
		}
	}

	return fmt.Sprintf("code(%d)", uint16(c))
}

// Sentinel returns the error a code stands for, nil for CodeOK and unknown codes.
func (c Code) Sentinel() error {
	for _, e := range codes {
		if e.code == c {
			return e.err
		}
	}
	return nil
}

// RemoteError is an error decoded from a response.
// errors.Is matches it against the sentinel of its code.
type RemoteError struct {
	Code    Code
	Message string
}

// Error returns the server's message.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Message
}

// Unwrap returns the sentinel of the code.
func (e *RemoteError) Unwrap() error {
	return e.Code.Sentinel()
}
