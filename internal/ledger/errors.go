package ledger

import (
	"errors"

	"CredTree/internal/authority"
)

// Errors re-exported from the authority registry so callers can match
// every ledger failure against this package.
var (
	ErrUnauthorized         = authority.ErrUnauthorized
	ErrInvalidConfiguration = authority.ErrInvalidConfiguration
)

var (
	// ErrSelfAttestation is returned when an authority targets itself.
	ErrSelfAttestation = errors.New("authority cannot attest to itself")

	// ErrDigestSubjectMismatch is returned when a digest is already bound to another subject.
	ErrDigestSubjectMismatch = errors.New("digest already registered for a different subject")

	// ErrAlreadySigned is returned when an authority signs the same digest twice.
	ErrAlreadySigned = errors.New("credential already signed by caller")

	// ErrNoSuchCredential is returned when no credential proof exists for a digest.
	ErrNoSuchCredential = errors.New("no credential proof found")

	// ErrSubjectMismatch is returned when someone other than the subject confirms.
	ErrSubjectMismatch = errors.New("caller is not the credential subject")

	// ErrQuorumNotReached is returned when confirming before enough signatures.
	ErrQuorumNotReached = errors.New("quorum not reached")

	// ErrAlreadyConfirmed is returned when the subject confirms twice.
	ErrAlreadyConfirmed = errors.New("credential already confirmed by subject")

	// ErrPreviousNotConfirmed is returned by sequenced ledgers when the subject
	// still has an outstanding credential.
	ErrPreviousNotConfirmed = errors.New("previous credential not confirmed")

	// ErrNoCredential is returned when aggregating an empty list.
	ErrNoCredential = errors.New("no credential to aggregate")

	// ErrUnsignedCredentials is returned when aggregating a non-certified digest.
	ErrUnsignedCredentials = errors.New("credentials not certified")

	// ErrNoAggregate is returned when a subject has no aggregate proof.
	ErrNoAggregate = errors.New("no aggregate proof for subject")

	// ErrInvalidIdentity is returned for the zero identity.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrInvalidDigest is returned when registering the null digest, which the
	// subject index reserves for "none".
	ErrInvalidDigest = errors.New("invalid digest")

	// ErrCredentialRevoked is returned when registering a revoked digest.
	ErrCredentialRevoked = errors.New("credential was revoked")

	// ErrNotEnrolled is returned when the subject is not on the roster.
	ErrNotEnrolled = errors.New("subject not enrolled")

	// ErrAlreadyEnrolled is returned when enrolling a student twice.
	ErrAlreadyEnrolled = errors.New("subject already enrolled")

	// ErrNoRoster is returned by roster operations on ledgers without one.
	ErrNoRoster = errors.New("ledger has no roster")

	// ErrPeriodClosed is returned when registering outside the notarization period.
	ErrPeriodClosed = errors.New("notarization period not running")

	// ErrPeriodOpen is returned when aggregating before the period ended.
	ErrPeriodOpen = errors.New("notarization period still running")
)
