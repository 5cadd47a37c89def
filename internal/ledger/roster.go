package ledger

import (
	"fmt"

	"CredTree/internal/types"
)

// Enroll adds a student to the roster. Only authorities may enroll.
func (l *Ledger) Enroll(call Call, student types.Identity) error {
	l.mu.Lock()
	events, err := l.enrollLocked(call, student)
	l.mu.Unlock()

	if err != nil {
		return err
	}

	l.emit(events)

	return nil
}

func (l *Ledger) enrollLocked(call Call, student types.Identity) ([]Event, error) {
	if err := l.authorities.Authorize(call.Caller); err != nil {
		return nil, err
	}

	if !l.cfg.Roster {
		return nil, ErrNoRoster
	}

	if student.IsZero() {
		return nil, fmt.Errorf("%w: zero student", ErrInvalidIdentity)
	}

	if l.authorities.IsAuthorized(student) {
		return nil, ErrSelfAttestation
	}

	enrolled, err := l.store.enrolled(student)
	if err != nil {
		return nil, fmt.Errorf("read roster:\n%w", err)
	}
	if enrolled {
		return nil, ErrAlreadyEnrolled
	}

	return l.setEnrolledLocked(call, student, true)
}

// Unenroll removes a student from the roster. Only authorities may unenroll.
func (l *Ledger) Unenroll(call Call, student types.Identity) error {
	l.mu.Lock()
	events, err := l.unenrollLocked(call, student, true)
	l.mu.Unlock()

	if err != nil {
		return err
	}

	l.emit(events)

	return nil
}

// Renounce removes the caller from the roster.
func (l *Ledger) Renounce(call Call) error {
	l.mu.Lock()
	events, err := l.unenrollLocked(call, call.Caller, false)
	l.mu.Unlock()

	if err != nil {
		return err
	}

	l.emit(events)

	return nil
}

func (l *Ledger) unenrollLocked(call Call, student types.Identity, byAuthority bool) ([]Event, error) {
	if byAuthority {
		if err := l.authorities.Authorize(call.Caller); err != nil {
			return nil, err
		}
	}

	if !l.cfg.Roster {
		return nil, ErrNoRoster
	}

	enrolled, err := l.store.enrolled(student)
	if err != nil {
		return nil, fmt.Errorf("read roster:\n%w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	return l.setEnrolledLocked(call, student, false)
}

// setEnrolledLocked commits a roster change and builds its event.
func (l *Ledger) setEnrolledLocked(call Call, student types.Identity, enrolled bool) ([]Event, error) {
	batch := l.store.db.NewBatch()
	l.store.setEnrolled(batch, student, enrolled)

	if err := l.commit(batch); err != nil {
		return nil, err
	}

	kind := StudentUnenrolled
	if enrolled {
		kind = StudentEnrolled
	}

	ev := l.event(kind, call)
	ev.Subject = student

	return []Event{ev}, nil
}

// IsEnrolled reports whether id is on the roster.
// Always true for ledgers without a roster.
func (l *Ledger) IsEnrolled(id types.Identity) bool {
	if !l.cfg.Roster {
		return true
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	enrolled, err := l.store.enrolled(id)
	return err == nil && enrolled
}

// Students returns the enrolled students ordered by identity.
func (l *Ledger) Students() ([]types.Identity, error) {
	if !l.cfg.Roster {
		return nil, ErrNoRoster
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.store.students()
}

// checkRosterLocked fails when the ledger has a roster and subject is not on it.
func (l *Ledger) checkRosterLocked(subject types.Identity) error {
	if !l.cfg.Roster {
		return nil
	}

	enrolled, err := l.store.enrolled(subject)
	if err != nil {
		return fmt.Errorf("read roster:\n%w", err)
	}

	if !enrolled {
		return fmt.Errorf("%w: %s", ErrNotEnrolled, subject.Short())
	}

	return nil
}

// Started reports whether the notarization period began at seq.
func (l *Ledger) Started(seq uint64) bool {
	return seq >= l.cfg.PeriodStart
}

// Ended reports whether the notarization period is over at seq.
// Ledgers without a period never end.
func (l *Ledger) Ended(seq uint64) bool {
	return l.cfg.PeriodEnd != 0 && seq >= l.cfg.PeriodEnd
}

// Running reports whether registrations are accepted at seq.
func (l *Ledger) Running(seq uint64) bool {
	if l.cfg.PeriodEnd == 0 {
		return true
	}
	return l.Started(seq) && !l.Ended(seq)
}
