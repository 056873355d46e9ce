package chatError

import "net/http"

// Kind identifies a deterministic rejection. Clients switch on it to show a
// specific message; it is never retried automatically.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindNotFound           Kind = "NOT_FOUND"
	KindNotAllowed         Kind = "NOT_ALLOWED"
	KindDuplicatePending   Kind = "DUPLICATE_PENDING"
	KindBlocked            Kind = "BLOCKED"
	KindAlreadyFriends     Kind = "ALREADY_FRIENDS"
	KindFriendshipNotFound Kind = "FRIENDSHIP_NOT_FOUND"
	KindReceiverNotFound   Kind = "RECEIVER_NOT_FOUND"
	KindSenderBlocked      Kind = "SENDER_BLOCKED"
	KindNotGroupMember     Kind = "NOT_GROUP_MEMBER"
	KindInvalidMembers     Kind = "INVALID_MEMBERS"
	KindConflict           Kind = "CONFLICT"
)

type ChatError struct {
	Status  int
	Kind    Kind
	Message string
}

func (e *ChatError) Error() string {
	return e.Message
}

// Is matches on Kind so callers can write errors.Is(err, chatError.ErrBlocked).
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func NewChatError(status int, kind Kind, message string) *ChatError {
	return &ChatError{
		Status:  status,
		Kind:    kind,
		Message: message,
	}
}

var (
	ErrNotFound           = NewChatError(http.StatusNotFound, KindNotFound, "not found")
	ErrNotAllowed         = NewChatError(http.StatusForbidden, KindNotAllowed, "not allowed")
	ErrDuplicatePending   = NewChatError(http.StatusConflict, KindDuplicatePending, "a pending friend request already exists")
	ErrBlocked            = NewChatError(http.StatusForbidden, KindBlocked, "a block exists between these users")
	ErrAlreadyFriends     = NewChatError(http.StatusConflict, KindAlreadyFriends, "users are already friends")
	ErrFriendshipNotFound = NewChatError(http.StatusForbidden, KindFriendshipNotFound, "users are not friends")
	ErrReceiverNotFound   = NewChatError(http.StatusNotFound, KindReceiverNotFound, "receiver not found")
	ErrSenderBlocked      = NewChatError(http.StatusForbidden, KindSenderBlocked, "sender is blocked")
	ErrNotGroupMember     = NewChatError(http.StatusForbidden, KindNotGroupMember, "not a member of this conversation")
	ErrInvalidMembers     = NewChatError(http.StatusBadRequest, KindInvalidMembers, "members must be friends of the creator")
)

func NotFound(message string) *ChatError {
	return NewChatError(http.StatusNotFound, KindNotFound, message)
}

func NotAllowed(message string) *ChatError {
	return NewChatError(http.StatusForbidden, KindNotAllowed, message)
}

func Validation(message string) *ChatError {
	return NewChatError(http.StatusBadRequest, KindValidation, message)
}

func Unauthorized(message string) *ChatError {
	return NewChatError(http.StatusUnauthorized, KindUnauthorized, message)
}

func Conflict(message string) *ChatError {
	return NewChatError(http.StatusConflict, KindConflict, message)
}
