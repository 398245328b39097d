package domain

import "errors"

var (
	ErrInvalidChannel          = errors.New("invalid channel")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrEmptyUserID             = errors.New("user id is required")
	ErrEmptyTemplateCode       = errors.New("template code is required")
	ErrEmptyIdempotencyKey     = errors.New("idempotency key is required")
	ErrNotificationNotFound    = errors.New("notification not found")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrChannelOptedOut         = errors.New("user opted out of channel")
	ErrTemplateInactive        = errors.New("template is not active")
	ErrTemplateChannelMissing  = errors.New("template has no version for channel")
	ErrRemoteUnavailable       = errors.New("remote service unavailable")
	ErrRemoteRejected          = errors.New("remote service rejected request")
	ErrRemoteMalformed         = errors.New("remote service returned malformed payload")
)

// ErrorCode values stored on failed notifications.
type ErrorCode string

const (
	ErrCodeUserFetch     ErrorCode = "USER_FETCH_ERROR"
	ErrCodeTemplateFetch ErrorCode = "TEMPLATE_FETCH_ERROR"
	ErrCodeParse         ErrorCode = "PARSE_ERROR"
	ErrCodeQueue         ErrorCode = "QUEUE_ERROR"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
)
