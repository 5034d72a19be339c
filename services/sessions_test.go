package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinakademin/vinakademin-backend/models"
)

func TestCreateAndJoinSession(t *testing.T) {
	db := newTestDB(t)
	host := createUser(t, db, "Värd", models.RoleUser)
	course := createCourse(t, db, 0)

	session, hostP, err := CreateSession(db, host, course, SessionOptions{MaxParticipants: 3}, testNow)
	require.NoError(t, err)
	assert.True(t, ValidJoinCode(session.JoinCode))
	assert.Equal(t, course.Title, session.Name)
	assert.Equal(t, testNow.Add(DefaultSessionDuration), session.ExpiresAt)
	assert.Equal(t, models.ParticipantHost, hostP.Role)

	t.Run("guest needs a nickname", func(t *testing.T) {
		_, _, err := JoinSession(db, session.JoinCode, nil, " x ", testNow)
		assert.ErrorIs(t, err, ErrNicknameRequired)
	})

	t.Run("unknown and malformed codes", func(t *testing.T) {
		_, _, err := JoinSession(db, "ZZZZZZ", nil, "Kalle", testNow)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, _, err = JoinSession(db, "nope", nil, "Kalle", testNow)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	guestSession, guest, err := JoinSession(db, " "+session.JoinCode+" ", nil, "Kalle", testNow)
	require.NoError(t, err)
	assert.Equal(t, session.ID, guestSession.ID)
	assert.Nil(t, guest.UserID)

	member := createUser(t, db, "Lisa", models.RoleUser)
	_, p1, err := JoinSession(db, session.JoinCode, &member.ID, "Lisa", testNow)
	require.NoError(t, err)

	t.Run("registered user rejoins the same row", func(t *testing.T) {
		_, err := Leave(db, session.ID, p1.ID, testNow)
		require.NoError(t, err)
		_, p2, err := JoinSession(db, session.JoinCode, &member.ID, "", testNow.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, p1.ID, p2.ID)
		assert.Nil(t, p2.LeftAt)
	})

	t.Run("full session", func(t *testing.T) {
		_, _, err := JoinSession(db, session.JoinCode, nil, "Fjärde", testNow)
		assert.ErrorIs(t, err, ErrSessionFull)
	})
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	host := createUser(t, db, "Värd", models.RoleUser)
	course := createCourse(t, db, 0)
	other := createCourse(t, db, 0)

	session, hostP, err := CreateSession(db, host, course, SessionOptions{Duration: time.Hour}, testNow)
	require.NoError(t, err)
	_, guest, err := JoinSession(db, session.JoinCode, nil, "Kalle", testNow)
	require.NoError(t, err)

	lesson := course.Modules[0].Lessons[0].ID
	quiz := course.Modules[0].Quizzes[0].ID

	t.Run("navigate", func(t *testing.T) {
		assert.ErrorIs(t, Navigate(db, session, guest.ID, &lesson, nil, testNow), ErrNotHost)
		assert.ErrorIs(t, Navigate(db, session, host.ID, &lesson, &quiz, testNow), ErrInvalidInput)
		assert.ErrorIs(t, Navigate(db, session, host.ID, nil, nil, testNow), ErrInvalidInput)
		foreign := other.Modules[0].Lessons[0].ID
		assert.ErrorIs(t, Navigate(db, session, host.ID, &foreign, nil, testNow), ErrContentNotInCourse)

		require.NoError(t, Navigate(db, session, host.ID, nil, &quiz, testNow))
		fresh, err := LoadSession(db, session.ID)
		require.NoError(t, err)
		require.NotNil(t, fresh.CurrentQuizID)
		assert.Equal(t, quiz, *fresh.CurrentQuizID)
		assert.Nil(t, fresh.CurrentLessonID)
	})

	t.Run("state lists recently seen participants", func(t *testing.T) {
		later := testNow.Add(2 * ParticipantActiveWindow)
		state, err := LoadSessionState(db, session, later)
		require.NoError(t, err)
		require.Len(t, state.Participants, 1, "only the host is kept without heartbeats")
		assert.Equal(t, hostP.ID, state.Participants[0].ID)

		require.NoError(t, Heartbeat(db, session, guest.ID, later))
		state, err = LoadSessionState(db, session, later)
		require.NoError(t, err)
		assert.Len(t, state.Participants, 2)
		assert.Equal(t, course.Title, state.CourseTitle)
	})

	t.Run("end", func(t *testing.T) {
		assert.ErrorIs(t, EndSession(db, session, guest.ID, testNow), ErrNotHost)
		require.NoError(t, EndSession(db, session, host.ID, testNow))
		assert.Equal(t, models.SessionEnded, session.Status)

		stale := *session
		stale.Status = models.SessionActive
		assert.ErrorIs(t, EndSession(db, &stale, host.ID, testNow), ErrSessionEnded)

		_, _, err := JoinSession(db, session.JoinCode, nil, "Sen", testNow)
		assert.ErrorIs(t, err, ErrSessionEnded)
		assert.ErrorIs(t, Heartbeat(db, session, guest.ID, testNow), ErrSessionEnded)
	})
}

func TestSessionExpiry(t *testing.T) {
	db := newTestDB(t)
	host := createUser(t, db, "Värd", models.RoleUser)
	course := createCourse(t, db, 0)

	s1, _, err := CreateSession(db, host, course, SessionOptions{Duration: time.Hour}, testNow)
	require.NoError(t, err)
	s2, _, err := CreateSession(db, host, course, SessionOptions{Duration: 3 * time.Hour}, testNow)
	require.NoError(t, err)

	ids, err := ExpireSessions(db, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{s1.ID}, ids)

	ids, err = ExpireSessions(db, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids, "already expired sessions are not reported twice")

	_, _, err = JoinSession(db, s1.JoinCode, nil, "Kalle", testNow.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrSessionExpired)

	// EnsureOpen expires lazily before the scheduler gets there
	err = EnsureOpen(db, s2, testNow.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrSessionExpired)
	fresh, err := LoadSession(db, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, fresh.Status)

	assert.ErrorIs(t, EndSession(db, fresh, host.ID, testNow), ErrSessionExpired)
}

func TestLazyExpiryIsAnnouncedOnce(t *testing.T) {
	db := newTestDB(t)
	host := createUser(t, db, "Värd", models.RoleUser)
	course := createCourse(t, db, 0)

	var announced []uuid.UUID
	prev := OnSessionExpired
	OnSessionExpired = func(id uuid.UUID) { announced = append(announced, id) }
	t.Cleanup(func() { OnSessionExpired = prev })

	s, hostP, err := CreateSession(db, host, course, SessionOptions{Duration: time.Hour}, testNow)
	require.NoError(t, err)

	assert.ErrorIs(t, Heartbeat(db, s, hostP.ID, testNow.Add(61*time.Minute)), ErrSessionExpired)
	assert.Equal(t, []uuid.UUID{s.ID}, announced)

	// a second request on a stale copy does not announce again
	stale := *s
	stale.Status = models.SessionActive
	assert.ErrorIs(t, EnsureOpen(db, &stale, testNow.Add(62*time.Minute)), ErrSessionExpired)
	assert.Len(t, announced, 1)

	ids, err := ExpireSessions(db, testNow.Add(62*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSessionOptionsNormalized(t *testing.T) {
	o := SessionOptions{Name: "  Provning ", Duration: 48 * time.Hour}.normalized()
	assert.Equal(t, "Provning", o.Name)
	assert.Equal(t, MaxSessionDuration, o.Duration)
	assert.Equal(t, DefaultMaxParticipants, o.MaxParticipants)
}
