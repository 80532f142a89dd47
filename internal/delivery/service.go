package delivery

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"proctor/internal/expr"
	"proctor/internal/route"
	"proctor/internal/session"
	"proctor/internal/snapshot"
	"proctor/internal/storage"
	"proctor/pkg/logging"

	"github.com/google/uuid"
)

// Service errors. Callers match with errors.Is.
var (
	ErrUnknownAssessment = errors.New("unknown assessment")
	ErrUnknownSession    = errors.New("unknown session")
	ErrSessionSuspended  = errors.New("session is suspended")
	ErrSessionLive       = errors.New("session is already live")
	ErrSessionEnded      = errors.New("session has already ended")
)

// liveSession is one in-memory session. Its mutex serializes every
// operation touching the driver, which is not concurrency-safe.
type liveSession struct {
	mu     sync.Mutex
	sess   *session.TestSession
	testID string
}

// Service owns the live sessions of one delivery server. Distinct
// sessions proceed in parallel; operations on the same session
// serialize. Every operation feeds the clock to the driver first and
// persists a fresh snapshot afterwards.
type Service struct {
	mu      sync.RWMutex
	library *Library
	store   storage.Store
	events  *Broadcaster
	engine  expr.Engine
	live    map[string]*liveSession

	// now is the clock fed to sessions; tests replace it.
	now func() time.Time
}

// NewService builds a service over a library, a snapshot store, and an
// event broadcaster.
func NewService(library *Library, store storage.Store, events *Broadcaster) *Service {
	return &Service{
		library: library,
		store:   store,
		events:  events,
		engine:  expr.NewEvaluator(),
		live:    make(map[string]*liveSession),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a new session over the named assessment and returns
// its initial state. The route is built fresh, so documents with
// selection rules deal every candidate their own hand.
func (s *Service) Create(ctx context.Context, testID string, cfg session.Config) (*SessionView, error) {
	asmt, ok := s.library.Get(testID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAssessment, testID)
	}

	r, err := route.Build(asmt.Test)
	if err != nil {
		return nil, fmt.Errorf("failed to build route for %s: %w", testID, err)
	}

	id := uuid.NewString()
	sess := session.New(asmt.Test, r, s.engine, &session.Options{
		ID:      id,
		Config:  cfg,
		OnEvent: s.events.Publish,
	})

	ls := &liveSession{sess: sess, testID: testID}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := sess.SetTime(s.now()); err != nil {
		return nil, err
	}
	if err := sess.Begin(); err != nil {
		return nil, err
	}
	if err := s.persistLocked(ctx, id, ls); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.live[id] = ls
	s.mu.Unlock()

	logging.Info("Service", "created session %s for assessment %s", id, testID)
	return viewOf(sess, testID), nil
}

// State returns the current view of a session. Suspended sessions are
// decoded from the store without bringing them back to life.
func (s *Service) State(ctx context.Context, id string) (*SessionView, error) {
	s.mu.RLock()
	ls, ok := s.live[id]
	s.mu.RUnlock()

	if ok {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		return viewOf(ls.sess, ls.testID), nil
	}

	testID, sess, err := s.decodeStored(ctx, id)
	if err != nil {
		return nil, err
	}
	return viewOf(sess, testID), nil
}

// Describe returns the view of a session together with one row per
// route item. Inspection tooling reads stored sessions through here.
func (s *Service) Describe(ctx context.Context, id string) (*SessionView, []ItemView, error) {
	s.mu.RLock()
	ls, ok := s.live[id]
	s.mu.RUnlock()

	if ok {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		return viewOf(ls.sess, ls.testID), itemViewsOf(ls.sess), nil
	}

	testID, sess, err := s.decodeStored(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return viewOf(sess, testID), itemViewsOf(sess), nil
}

// List summarizes every known session, live ones first-hand and stored
// ones from their snapshot headers.
func (s *Service) List(ctx context.Context) ([]*SessionSummary, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]*SessionSummary, 0, len(ids)+len(s.live))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		seen[id] = true
		if ls, ok := s.live[id]; ok {
			ls.mu.Lock()
			summaries = append(summaries, &SessionSummary{
				ID:     id,
				Test:   ls.testID,
				Status: "live",
				State:  ls.sess.State().String(),
			})
			ls.mu.Unlock()
			continue
		}
		summaries = append(summaries, s.summarizeStored(ctx, id))
	}

	// A live session that has not reached the store yet still lists.
	for id, ls := range s.live {
		if seen[id] {
			continue
		}
		ls.mu.Lock()
		summaries = append(summaries, &SessionSummary{
			ID:     id,
			Test:   ls.testID,
			Status: "live",
			State:  ls.sess.State().String(),
		})
		ls.mu.Unlock()
	}
	return summaries, nil
}

func (s *Service) summarizeStored(ctx context.Context, id string) *SessionSummary {
	summary := &SessionSummary{ID: id, Status: "suspended"}

	data, err := s.store.Retrieve(ctx, id)
	if err != nil {
		logging.Warn("Service", "listing session %s: %v", id, err)
		return summary
	}
	testID, snap, err := decodeEnvelope(data)
	if err != nil {
		logging.Warn("Service", "listing session %s: %v", id, err)
		return summary
	}
	summary.Test = testID
	if state, err := snapshot.PeekState(snap); err == nil {
		summary.State = state.String()
		if state == session.TestClosed {
			summary.Status = "ended"
		}
	}
	return summary
}

// BeginAttempt opens an attempt on the current item.
func (s *Service) BeginAttempt(ctx context.Context, id string, allowLate bool) (*SessionView, error) {
	return s.withLive(ctx, id, func(sess *session.TestSession) error {
		return sess.BeginAttempt(allowLate)
	})
}

// EndAttempt submits responses for the current item and ends the open
// attempt. Responses arrive as decoded JSON and are typed against the
// item's declarations.
func (s *Service) EndAttempt(ctx context.Context, id string, raw map[string]interface{}, allowLate bool) (*SessionView, error) {
	return s.withLive(ctx, id, func(sess *session.TestSession) error {
		it, err := sess.CurrentItem()
		if err != nil {
			return err
		}
		responses, err := ResponsesFromJSON(it.ItemRef, raw)
		if err != nil {
			return err
		}
		return sess.EndAttempt(responses, allowLate)
	})
}

// MoveNext advances the session to the next reachable item.
func (s *Service) MoveNext(ctx context.Context, id string) (*SessionView, error) {
	return s.withLive(ctx, id, func(sess *session.TestSession) error {
		return sess.MoveNext()
	})
}

// MoveBack retreats to the previous item.
func (s *Service) MoveBack(ctx context.Context, id string) (*SessionView, error) {
	return s.withLive(ctx, id, func(sess *session.TestSession) error {
		return sess.MoveBack()
	})
}

// Jump moves the cursor to an absolute route position.
func (s *Service) Jump(ctx context.Context, id string, position int) (*SessionView, error) {
	return s.withLive(ctx, id, func(sess *session.TestSession) error {
		return sess.JumpTo(position)
	})
}

// NextTestPart leaves the current test part.
func (s *Service) NextTestPart(ctx context.Context, id string) (*SessionView, error) {
	return s.withLive(ctx, id, func(sess *session.TestSession) error {
		return sess.MoveNextTestPart()
	})
}

// NextSection leaves the current section.
func (s *Service) NextSection(ctx context.Context, id string) (*SessionView, error) {
	return s.withLive(ctx, id, func(sess *session.TestSession) error {
		return sess.MoveNextAssessmentSection()
	})
}

// Suspend parks a session: its snapshot is persisted and the live
// instance is evicted.
func (s *Service) Suspend(ctx context.Context, id string) (*SessionView, error) {
	ls, err := s.lookupLive(ctx, id)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := ls.sess.SetTime(s.now()); err != nil {
		return nil, err
	}
	if err := ls.sess.Suspend(); err != nil {
		return nil, err
	}
	if err := s.persistLocked(ctx, id, ls); err != nil {
		return nil, err
	}

	s.evict(id)
	logging.Info("Service", "suspended session %s", id)
	return viewOf(ls.sess, ls.testID), nil
}

// Resume brings a stored session back to life. Snapshots persisted
// mid-interaction, as after a crash, re-admit without a state change.
func (s *Service) Resume(ctx context.Context, id string) (*SessionView, error) {
	s.mu.RLock()
	_, live := s.live[id]
	s.mu.RUnlock()
	if live {
		return nil, fmt.Errorf("%w: %s", ErrSessionLive, id)
	}

	testID, sess, err := s.decodeStored(ctx, id)
	if err != nil {
		return nil, err
	}

	ls := &liveSession{sess: sess, testID: testID}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	switch sess.State() {
	case session.TestSuspended, session.TestInteracting:
	case session.TestClosed:
		return nil, fmt.Errorf("%w: %s", ErrSessionEnded, id)
	default:
		return nil, fmt.Errorf("session %s cannot resume from state %s", id, sess.State())
	}

	// The snapshot carries no time reference; the first observation
	// anchors the clock without crediting the offline gap.
	if err := sess.SetTime(s.now()); err != nil {
		return nil, err
	}
	if sess.State() == session.TestSuspended {
		if err := sess.Resume(); err != nil {
			return nil, err
		}
	}
	if err := s.persistLocked(ctx, id, ls); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.live[id] = ls
	s.mu.Unlock()

	logging.Info("Service", "resumed session %s", id)
	return viewOf(sess, testID), nil
}

// End closes a session. The final snapshot stays in the store; the
// live instance, if any, is evicted. Suspended sessions end without
// being resumed first.
func (s *Service) End(ctx context.Context, id string) (*SessionView, error) {
	s.mu.RLock()
	ls, live := s.live[id]
	s.mu.RUnlock()

	if !live {
		testID, sess, err := s.decodeStored(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess.State() == session.TestClosed {
			return nil, fmt.Errorf("%w: %s", ErrSessionEnded, id)
		}
		ls = &liveSession{sess: sess, testID: testID}
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := ls.sess.SetTime(s.now()); err != nil {
		return nil, err
	}
	if err := ls.sess.End(); err != nil {
		return nil, err
	}
	if err := s.persistLocked(ctx, id, ls); err != nil {
		return nil, err
	}

	if live {
		s.evict(id)
	}
	logging.Info("Service", "ended session %s", id)
	return viewOf(ls.sess, ls.testID), nil
}

// Delete forgets a session entirely: live instance and snapshot both.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, wasLive := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()

	err := s.store.Delete(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		if wasLive {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return err
	}
	logging.Info("Service", "deleted session %s", id)
	return nil
}

// withLive runs one driver operation under the session's lock: clock
// first, then the operation, then the snapshot.
func (s *Service) withLive(ctx context.Context, id string, op func(*session.TestSession) error) (*SessionView, error) {
	ls, err := s.lookupLive(ctx, id)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := ls.sess.SetTime(s.now()); err != nil {
		// Even a failed observation may have closed scopes; keep the
		// store current before reporting.
		if perr := s.persistLocked(ctx, id, ls); perr != nil {
			logging.Error("Service", perr, "persisting session %s", id)
		}
		return nil, err
	}

	opErr := op(ls.sess)
	if perr := s.persistLocked(ctx, id, ls); perr != nil {
		if opErr == nil {
			return nil, perr
		}
		logging.Error("Service", perr, "persisting session %s", id)
	}

	// A move past the last item or an exhausted test clock closes the
	// session; drop it from the live set once its snapshot is safe.
	// This runs even when the operation failed, because the clock
	// observation alone may have closed the session.
	if ls.sess.State() == session.TestClosed {
		s.evict(id)
		logging.Info("Service", "session %s closed", id)
	}

	if opErr != nil {
		return nil, opErr
	}
	return viewOf(ls.sess, ls.testID), nil
}

// lookupLive finds the live session. For sessions that only exist in
// the store, the snapshot header tells suspended apart from ended.
func (s *Service) lookupLive(ctx context.Context, id string) (*liveSession, error) {
	s.mu.RLock()
	ls, ok := s.live[id]
	s.mu.RUnlock()
	if ok {
		return ls, nil
	}

	data, err := s.store.Retrieve(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return nil, err
	}
	if _, snap, err := decodeEnvelope(data); err == nil {
		if state, err := snapshot.PeekState(snap); err == nil && state == session.TestClosed {
			return nil, fmt.Errorf("%w: %s", ErrSessionEnded, id)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionSuspended, id)
}

func (s *Service) evict(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

// persistLocked encodes and stores the session. The caller holds the
// session's lock.
func (s *Service) persistLocked(ctx context.Context, id string, ls *liveSession) error {
	snap, err := snapshot.Encode(ls.sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", id, err)
	}
	if err := s.store.Persist(ctx, id, encodeEnvelope(ls.testID, snap)); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", id, err)
	}
	return nil
}

// decodeStored loads a snapshot and rebuilds its session against the
// assessment it was created from.
func (s *Service) decodeStored(ctx context.Context, id string) (string, *session.TestSession, error) {
	data, err := s.store.Retrieve(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return "", nil, err
	}

	testID, snap, err := decodeEnvelope(data)
	if err != nil {
		return "", nil, fmt.Errorf("session %s: %w", id, err)
	}

	asmt, ok := s.library.Get(testID)
	if !ok {
		return "", nil, fmt.Errorf("session %s needs assessment %q, which is no longer in the library", id, testID)
	}

	sess, err := snapshot.Decode(snap, asmt.Test, s.engine, &session.Options{
		ID:      id,
		OnEvent: s.events.Publish,
	})
	if err != nil {
		return "", nil, fmt.Errorf("session %s: %w", id, err)
	}
	return testID, sess, nil
}

// The store keeps one opaque blob per session, so the assessment
// identifier travels in a small envelope ahead of the snapshot.
func encodeEnvelope(testID string, snap []byte) []byte {
	var header [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(header[:], uint64(len(testID)))

	data := make([]byte, 0, n+len(testID)+len(snap))
	data = append(data, header[:n]...)
	data = append(data, testID...)
	data = append(data, snap...)
	return data
}

func decodeEnvelope(data []byte) (string, []byte, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 || size > uint64(len(data)-n) {
		return "", nil, fmt.Errorf("malformed snapshot envelope")
	}
	testID := string(data[n : n+int(size)])
	return testID, data[n+int(size):], nil
}
