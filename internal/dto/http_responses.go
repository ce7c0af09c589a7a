package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	AuthRequired     = "AUTH_REQUIRED"
	EventNotFound    = "EVENT_NOT_FOUND"
	ProfileNotFound  = "PROFILE_NOT_FOUND"
	RequestNotFound  = "REQUEST_NOT_FOUND"
	RequestDuplicate = "REQUEST_DUPLICATE"
)

type ToggleCheckinRequest struct {
	Status string `json:"status" validate:"required,checkin_status"`
}

type SaveProfileRequest struct {
	Email            string   `json:"email" validate:"required,email"`
	FullName         string   `json:"full_name" validate:"max=255"`
	Bio              string   `json:"bio" validate:"max=2000"`
	Location         string   `json:"location" validate:"max=255"`
	InstagramHandle  string   `json:"instagram_handle" validate:"max=64"`
	DancePreferences []string `json:"dance_preferences" validate:"dive,max=64"`
	AvatarURL        string   `json:"avatar_url" validate:"omitempty,url"`
}

type SendFriendRequestRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required,uuid"`
}

type FriendRequestIDRequest struct {
	RequestID string `json:"request_id" validate:"required,uuid"`
}

// NotificationMessage travels through RabbitMQ from the data service to the
// push worker. Body and Data override the worker's defaults when present.
type NotificationMessage struct {
	UserID string         `json:"user_id"`
	Kind   string         `json:"kind"`
	Body   string         `json:"body,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	SentAt time.Time      `json:"sent_at"`
}

const (
	NotifyFriendRequest   = "friend_request"
	NotifyRequestAccepted = "friend_request_accepted"
	NotifyEventCheckin    = "event_checkin"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func UnauthorizedError(c *ginext.Context) {
	c.JSON(401, Response{
		Status: "error",
		Error: &Error{
			Code: AuthRequired,
			Desc: "Authentication required",
		},
	})
}

func NotFoundError(c *ginext.Context, code, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func ConflictError(c *ginext.Context, code, desc string) {
	c.JSON(409, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
