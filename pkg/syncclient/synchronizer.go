package syncclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
)

// MutationState tracks the lifecycle of an optimistic mutation.
type MutationState int

// A mutation starts Pending the moment the tentative record is applied
// locally, and ends Confirmed or RolledBack once the server answers (or the
// caller abandons it).
const (
	StatePending MutationState = iota
	StateConfirmed
	StateRolledBack
)

// Mutation describes the outcome of one optimistic enroll or unenroll.
type Mutation struct {
	ID    string
	State MutationState
	Kind  Kind
	Err   error
}

// Failed reports whether the mutation was rolled back with an error the
// caller should surface.
func (m *Mutation) Failed() bool {
	return m.State == StateRolledBack && m.Err != nil
}

// Synchronizer keeps an optimistic local copy of class rosters for an admin
// console. A mutation is applied to the local view immediately, then
// reconciled when the server answers: confirmed mutations re-fetch the
// authoritative roster, rolled-back ones restore the previous view.
//
// Optimism here is purely a presentation affordance. The synchronizer holds
// no lock on the server: once a request is in flight the server's decision
// stands, whether or not this client sticks around to observe it.
type Synchronizer struct {
	api *Client

	mu      sync.Mutex
	rosters map[string][]models.EnrollmentDetail
	stale   map[string]bool
}

// NewSynchronizer constructs a Synchronizer over the given API client.
func NewSynchronizer(api *Client) *Synchronizer {
	return &Synchronizer{
		api:     api,
		rosters: make(map[string][]models.EnrollmentDetail),
		stale:   make(map[string]bool),
	}
}

// Roster returns a copy of the local view of the class roster.
func (s *Synchronizer) Roster(classID string) []models.EnrollmentDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	roster := s.rosters[classID]
	out := make([]models.EnrollmentDetail, len(roster))
	copy(out, roster)
	return out
}

// Stale reports whether the local view must be refreshed before the next
// mutation (set after a timeout left the server-side outcome unknown).
func (s *Synchronizer) Stale(classID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale[classID]
}

// Refresh replaces the local view with the server's authoritative roster.
func (s *Synchronizer) Refresh(ctx context.Context, classID string) error {
	enrollments, err := s.api.Enrollments(ctx, classID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters[classID] = enrollments
	s.stale[classID] = false
	return nil
}

// Enroll optimistically adds the student to the local roster and dispatches
// the server mutation. A timed-out request is an unknown outcome: the
// tentative record is rolled back and the view marked stale, forcing a
// refresh before the next attempt rather than assuming the server failed.
func (s *Synchronizer) Enroll(ctx context.Context, classID, studentID, studentName string) *Mutation {
	if s.Stale(classID) {
		if err := s.Refresh(ctx, classID); err != nil {
			return &Mutation{State: StateRolledBack, Kind: Classify(err), Err: err}
		}
	}

	tentativeID := "pending-" + uuid.NewString()
	tentative := models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:        tentativeID,
			StudentID: studentID,
			ClassID:   classID,
			Status:    models.EnrollmentStatusActive,
			CreatedAt: time.Now().UTC(),
		},
		StudentName: studentName,
	}

	s.mu.Lock()
	s.rosters[classID] = append(s.rosters[classID], tentative)
	s.mu.Unlock()

	enrollment, err := s.api.Enroll(ctx, classID, studentID)

	s.removeLocal(classID, tentativeID)

	if err != nil {
		return s.reconcileFailure(ctx, classID, err)
	}

	if refreshErr := s.Refresh(ctx, classID); refreshErr != nil {
		// Commit succeeded; only the re-fetch failed. Show the server
		// record and leave the view stale.
		s.mu.Lock()
		s.rosters[classID] = append(s.rosters[classID], *enrollment)
		s.stale[classID] = true
		s.mu.Unlock()
	}
	return &Mutation{ID: enrollment.ID, State: StateConfirmed}
}

// Unenroll optimistically removes the enrollment from the local roster and
// dispatches the server mutation.
func (s *Synchronizer) Unenroll(ctx context.Context, classID, enrollmentID string) *Mutation {
	if s.Stale(classID) {
		if err := s.Refresh(ctx, classID); err != nil {
			return &Mutation{State: StateRolledBack, Kind: Classify(err), Err: err}
		}
	}

	removed, ok := s.removeLocal(classID, enrollmentID)

	err := s.api.Unenroll(ctx, enrollmentID)
	if err != nil {
		if ok {
			s.mu.Lock()
			s.rosters[classID] = append(s.rosters[classID], removed)
			s.mu.Unlock()
		}
		return s.reconcileFailure(ctx, classID, err)
	}

	if refreshErr := s.Refresh(ctx, classID); refreshErr != nil {
		s.mu.Lock()
		s.stale[classID] = true
		s.mu.Unlock()
	}
	return &Mutation{ID: enrollmentID, State: StateConfirmed}
}

func (s *Synchronizer) reconcileFailure(ctx context.Context, classID string, err error) *Mutation {
	// Caller abandoned interest: the tentative record is gone from the
	// local view and reconciliation is skipped. If the server already
	// committed, its decision stands.
	if errors.Is(err, context.Canceled) {
		return &Mutation{State: StateRolledBack}
	}

	kind := Classify(err)
	if kind == KindTransient {
		s.mu.Lock()
		s.stale[classID] = true
		s.mu.Unlock()
	}
	return &Mutation{State: StateRolledBack, Kind: kind, Err: err}
}

func (s *Synchronizer) removeLocal(classID, enrollmentID string) (models.EnrollmentDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roster := s.rosters[classID]
	for i, e := range roster {
		if e.ID == enrollmentID {
			removed := e
			s.rosters[classID] = append(roster[:i:i], roster[i+1:]...)
			return removed, true
		}
	}
	return models.EnrollmentDetail{}, false
}
