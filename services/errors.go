package services

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrAlreadyOwned         = errors.New("course already owned")
	ErrCourseNotPurchasable = errors.New("course is not purchasable")
	ErrPaymentRequired      = errors.New("course requires purchase")
)

var (
	ErrJoinCodeExhausted  = errors.New("could not allocate a unique join code")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionEnded       = errors.New("session has ended")
	ErrSessionExpired     = errors.New("session has expired")
	ErrSessionFull        = errors.New("session is full")
	ErrNotHost            = errors.New("only the host may do this")
	ErrNotParticipant     = errors.New("not a participant of this session")
	ErrNicknameRequired   = errors.New("nickname required")
	ErrContentNotInCourse = errors.New("content does not belong to the session course")
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrDuplicateEvent   = errors.New("webhook event already processed")
)
