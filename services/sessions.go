package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
)

const (
	DefaultSessionDuration = 180 * time.Minute
	MaxSessionDuration     = 24 * time.Hour
	DefaultMaxParticipants = 50
	// ParticipantActiveWindow is how recently a participant must have sent a
	// heartbeat to be listed as present.
	ParticipantActiveWindow = 60 * time.Second
)

type SessionOptions struct {
	Name            string
	Duration        time.Duration
	MaxParticipants int
}

func (o SessionOptions) normalized() SessionOptions {
	if o.Duration <= 0 {
		o.Duration = DefaultSessionDuration
	}
	if o.Duration > MaxSessionDuration {
		o.Duration = MaxSessionDuration
	}
	if o.MaxParticipants <= 0 {
		o.MaxParticipants = DefaultMaxParticipants
	}
	o.Name = strings.TrimSpace(o.Name)
	return o
}

// CreateSession opens a group session for course with host as its first participant.
func CreateSession(db *gorm.DB, host *models.User, course *models.Course, opts SessionOptions, now time.Time) (*models.CourseSession, *models.SessionParticipant, error) {
	opts = opts.normalized()
	if opts.Name == "" {
		opts.Name = course.Title
	}

	code, err := UniqueJoinCode(GenerateJoinCode, func(code string) (bool, error) {
		var n int64
		err := db.Model(&models.CourseSession{}).Where("join_code = ?", code).Count(&n).Error
		return n > 0, err
	})
	if err != nil {
		return nil, nil, err
	}

	session := models.CourseSession{
		CourseID:        course.ID,
		HostID:          host.ID,
		Name:            opts.Name,
		JoinCode:        code,
		Status:          models.SessionActive,
		MaxParticipants: opts.MaxParticipants,
		ExpiresAt:       now.Add(opts.Duration),
	}
	hostID := host.ID
	participant := models.SessionParticipant{
		UserID:     &hostID,
		Nickname:   host.FullName,
		Role:       models.ParticipantHost,
		JoinedAt:   now,
		LastSeenAt: now,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		participant.SessionID = session.ID
		return tx.Create(&participant).Error
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	return &session, &participant, nil
}

// LoadSession returns a session by id or ErrSessionNotFound.
func LoadSession(db *gorm.DB, id uuid.UUID) (*models.CourseSession, error) {
	var s models.CourseSession
	err := db.First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// OnSessionExpired is called with the id of a session that a request found
// past its expiry and marked expired. ExpireSessions reports its own ids.
var OnSessionExpired func(id uuid.UUID)

// EnsureOpen fails with ErrSessionEnded or ErrSessionExpired when the session
// no longer accepts activity. An active session past its expiry is marked
// expired on the way out.
func EnsureOpen(db *gorm.DB, s *models.CourseSession, now time.Time) error {
	switch s.Status {
	case models.SessionEnded:
		return ErrSessionEnded
	case models.SessionExpired:
		return ErrSessionExpired
	}
	if !now.Before(s.ExpiresAt) {
		changed, err := markExpired(db, s.ID)
		if err != nil {
			return err
		}
		s.Status = models.SessionExpired
		if changed && OnSessionExpired != nil {
			OnSessionExpired(s.ID)
		}
		return ErrSessionExpired
	}
	return nil
}

func markExpired(db *gorm.DB, id uuid.UUID) (bool, error) {
	res := db.Model(&models.CourseSession{}).
		Where("id = ? AND status = ?", id, models.SessionActive).
		Update("status", models.SessionExpired)
	return res.RowsAffected > 0, res.Error
}

// JoinSession adds a participant to the session with the given code.
// Registered users (userID != nil) rejoin their existing row; guests need a nickname.
func JoinSession(db *gorm.DB, code string, userID *uuid.UUID, nickname string, now time.Time) (*models.CourseSession, *models.SessionParticipant, error) {
	code = NormalizeJoinCode(code)
	if !ValidJoinCode(code) {
		return nil, nil, ErrSessionNotFound
	}

	var session models.CourseSession
	err := db.Where("join_code = ?", code).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if err := EnsureOpen(db, &session, now); err != nil {
		return &session, nil, err
	}

	nickname = strings.TrimSpace(nickname)

	if userID != nil {
		var existing models.SessionParticipant
		err := db.Where("session_id = ? AND user_id = ?", session.ID, *userID).First(&existing).Error
		if err == nil {
			updates := map[string]interface{}{"left_at": nil, "last_seen_at": now}
			if existing.LeftAt != nil {
				if full, err := sessionFull(db, &session); err != nil {
					return nil, nil, err
				} else if full {
					return &session, nil, ErrSessionFull
				}
			}
			if err := db.Model(&existing).Updates(updates).Error; err != nil {
				return nil, nil, err
			}
			existing.LeftAt = nil
			existing.LastSeenAt = now
			return &session, &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, err
		}
	} else if n := utf8.RuneCountInString(nickname); n < 2 || n > 40 {
		return &session, nil, ErrNicknameRequired
	}

	full, err := sessionFull(db, &session)
	if err != nil {
		return nil, nil, err
	}
	if full {
		return &session, nil, ErrSessionFull
	}

	p := models.SessionParticipant{
		SessionID:  session.ID,
		UserID:     userID,
		Nickname:   nickname,
		Role:       models.ParticipantMember,
		JoinedAt:   now,
		LastSeenAt: now,
	}
	if err := db.Create(&p).Error; err != nil {
		return nil, nil, fmt.Errorf("join session: %w", err)
	}
	return &session, &p, nil
}

func sessionFull(db *gorm.DB, s *models.CourseSession) (bool, error) {
	if s.MaxParticipants <= 0 {
		return false, nil
	}
	var n int64
	err := db.Model(&models.SessionParticipant{}).
		Where("session_id = ? AND left_at IS NULL", s.ID).
		Count(&n).Error
	return n >= int64(s.MaxParticipants), err
}

// FindParticipant returns the participant row or ErrNotParticipant.
func FindParticipant(db *gorm.DB, sessionID, participantID uuid.UUID) (*models.SessionParticipant, error) {
	var p models.SessionParticipant
	err := db.Where("id = ? AND session_id = ?", participantID, sessionID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotParticipant
	}
	return &p, err
}

// FindUserParticipant returns the registered user's participant row or ErrNotParticipant.
func FindUserParticipant(db *gorm.DB, sessionID, userID uuid.UUID) (*models.SessionParticipant, error) {
	var p models.SessionParticipant
	err := db.Where("session_id = ? AND user_id = ?", sessionID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotParticipant
	}
	return &p, err
}

// Heartbeat marks the participant as present.
func Heartbeat(db *gorm.DB, session *models.CourseSession, participantID uuid.UUID, now time.Time) error {
	if err := EnsureOpen(db, session, now); err != nil {
		return err
	}
	res := db.Model(&models.SessionParticipant{}).
		Where("id = ? AND session_id = ? AND left_at IS NULL", participantID, session.ID).
		Update("last_seen_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotParticipant
	}
	return nil
}

// Leave marks the participant as gone. Leaving twice is not an error.
func Leave(db *gorm.DB, sessionID, participantID uuid.UUID, now time.Time) (*models.SessionParticipant, error) {
	p, err := FindParticipant(db, sessionID, participantID)
	if err != nil {
		return nil, err
	}
	if p.LeftAt != nil {
		return p, nil
	}
	if err := db.Model(p).Update("left_at", now).Error; err != nil {
		return nil, err
	}
	p.LeftAt = &now
	return p, nil
}

// Navigate moves the whole session to a lesson or a quiz of its course.
// Exactly one of lessonID and quizID must be set.
func Navigate(db *gorm.DB, session *models.CourseSession, actorID uuid.UUID, lessonID, quizID *uuid.UUID, now time.Time) error {
	if session.HostID != actorID {
		return ErrNotHost
	}
	if err := EnsureOpen(db, session, now); err != nil {
		return err
	}
	if (lessonID == nil) == (quizID == nil) {
		return ErrInvalidInput
	}

	course, err := LoadCourseTree(db, "id = ?", session.CourseID)
	if err != nil {
		return err
	}
	if lessonID != nil && !CourseHasLesson(course, *lessonID) {
		return ErrContentNotInCourse
	}
	if quizID != nil && !CourseHasQuiz(course, *quizID) {
		return ErrContentNotInCourse
	}

	err = db.Model(&models.CourseSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{"current_lesson_id": lessonID, "current_quiz_id": quizID}).Error
	if err != nil {
		return err
	}
	session.CurrentLessonID = lessonID
	session.CurrentQuizID = quizID
	return nil
}

// EndSession closes an active session. Only the host may end it and a
// session is only ever ended once.
func EndSession(db *gorm.DB, session *models.CourseSession, actorID uuid.UUID, now time.Time) error {
	if session.HostID != actorID {
		return ErrNotHost
	}
	res := db.Model(&models.CourseSession{}).
		Where("id = ? AND status = ?", session.ID, models.SessionActive).
		Updates(map[string]interface{}{"status": models.SessionEnded, "ended_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		fresh, err := LoadSession(db, session.ID)
		if err != nil {
			return err
		}
		if fresh.Status == models.SessionExpired {
			return ErrSessionExpired
		}
		return ErrSessionEnded
	}
	session.Status = models.SessionEnded
	session.EndedAt = &now
	return nil
}

// ExpireSessions marks every active session past its expiry as expired and
// returns the ids it changed.
func ExpireSessions(db *gorm.DB, now time.Time) ([]uuid.UUID, error) {
	var stale []models.CourseSession
	err := db.Select("id").
		Where("status = ? AND expires_at <= ?", models.SessionActive, now).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}

	var expired []uuid.UUID
	for _, s := range stale {
		changed, err := markExpired(db, s.ID)
		if err != nil {
			return expired, err
		}
		if changed {
			expired = append(expired, s.ID)
		}
	}
	return expired, nil
}

// SessionState is what clients poll to stay in sync.
type SessionState struct {
	Session      *models.CourseSession       `json:"session"`
	CourseTitle  string                      `json:"course_title"`
	Participants []models.SessionParticipant `json:"participants"`
}

// LoadSessionState returns the session with participants seen within
// ParticipantActiveWindow. The host is always listed while they have not left.
func LoadSessionState(db *gorm.DB, session *models.CourseSession, now time.Time) (*SessionState, error) {
	var course models.Course
	if err := db.Select("id", "title").First(&course, "id = ?", session.CourseID).Error; err != nil {
		return nil, err
	}

	var participants []models.SessionParticipant
	err := db.Where("session_id = ? AND left_at IS NULL AND (last_seen_at >= ? OR role = ?)",
		session.ID, now.Add(-ParticipantActiveWindow), models.ParticipantHost).
		Order("joined_at").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}

	return &SessionState{Session: session, CourseTitle: course.Title, Participants: participants}, nil
}
