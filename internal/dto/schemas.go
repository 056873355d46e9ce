package dto

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/golang-jwt/jwt/v5"
)

var (
	Validate *validator.Validate
	Trans    ut.Translator
)

func InitValidator() {
	en := en.New()
	uni := ut.New(en, en)
	Trans, _ = uni.GetTranslator("en")

	Validate = validator.New()

	_ = enTranslations.RegisterDefaultTranslations(Validate, Trans)

	_ = Validate.RegisterValidation("trim", trimValue) // SIDE EFFECT: trims the value
	_ = Validate.RegisterValidation("username", validateUsername)
	_ = Validate.RegisterValidation("reaction", validateReaction)
	registerUsernameTranslation(Validate, Trans)
	registerReactionTranslation(Validate, Trans)
}

// Space Trimming, SIDE EFFECT!
func trimValue(fl validator.FieldLevel) bool {
	value := fl.Field().String()

	trimed := strings.TrimSpace(value)
	fl.Field().SetString(trimed)

	return true
}

// Username

type UserName struct {
	Username string `json:"username" validate:"required,trim,min=3,max=50,username"`
}

// Contains only letters, numbers, ".", "_" or "-"
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func validateUsername(fl validator.FieldLevel) bool {
	username := fl.Field().String()

	return usernameRegex.MatchString(username)
}

func registerUsernameTranslation(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterTranslation(
		"username",
		trans,
		func(ut ut.Translator) error {
			return ut.Add(
				"username",
				"username may only contain letters, numbers, '.', '_' or '-'",
				true,
			)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T("username")
			return msg
		},
	)
}

// Reactions

const (
	ReactionLike  = "like"
	ReactionLove  = "love"
	ReactionHaha  = "haha"
	ReactionWow   = "wow"
	ReactionSad   = "sad"
	ReactionAngry = "angry"
)

// ReactionGlyphs maps a reaction type to the glyph clients render.
var ReactionGlyphs = map[string]string{
	ReactionLike:  "👍",
	ReactionLove:  "❤️",
	ReactionHaha:  "😂",
	ReactionWow:   "😮",
	ReactionSad:   "😢",
	ReactionAngry: "😡",
}

func validateReaction(fl validator.FieldLevel) bool {
	_, ok := ReactionGlyphs[fl.Field().String()]
	return ok
}

func registerReactionTranslation(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterTranslation(
		"reaction",
		trans,
		func(ut ut.Translator) error {
			return ut.Add(
				"reaction",
				"reaction must be one of like, love, haha, wow, sad or angry",
				true,
			)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T("reaction")
			return msg
		},
	)
}

// Pagination

type PageQuery struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// Normalize fills in defaults and clamps the page size.
func (q PageQuery) Normalize(defaultSize, maxSize int) PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultSize
	}
	if q.PageSize > maxSize {
		q.PageSize = maxSize
	}
	return q
}

func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

type Pagination struct {
	Page            int   `json:"page"`
	PageSize        int   `json:"pageSize"`
	TotalItems      int64 `json:"totalItems"`
	TotalPages      int   `json:"totalPages"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
	NextPage        *int  `json:"nextPage"`
	PreviousPage    *int  `json:"previousPage"`
}

func NewPagination(q PageQuery, totalItems int64) Pagination {
	totalPages := 0
	if q.PageSize > 0 {
		totalPages = int((totalItems + int64(q.PageSize) - 1) / int64(q.PageSize))
	}

	p := Pagination{
		Page:            q.Page,
		PageSize:        q.PageSize,
		TotalItems:      totalItems,
		TotalPages:      totalPages,
		HasNextPage:     q.Page < totalPages,
		HasPreviousPage: q.Page > 1,
	}

	if p.HasNextPage {
		next := q.Page + 1
		p.NextPage = &next
	}
	if p.HasPreviousPage {
		prev := q.Page - 1
		p.PreviousPage = &prev
	}

	return p
}

type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func NewPage[T any](items []T, q PageQuery, totalItems int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Pagination: NewPagination(q, totalItems),
	}
}

// List filters

type FriendListQuery struct {
	PageQuery
	IsOnline bool   `form:"is_online"`
	IsRecent bool   `form:"is_recent"`
	Query    string `form:"query" validate:"omitempty,trim,max=50"`
}

const (
	RequestTypeIncoming = "incoming"
	RequestTypeOutgoing = "outgoing"
	RequestTypeAll      = "all"
)

type FriendRequestListQuery struct {
	PageQuery
	Type string `form:"type" validate:"omitempty,oneof=incoming outgoing all"`
}

type ConversationListQuery struct {
	PageQuery
	GroupOnly         bool `form:"group_only"`
	IncludeUnreadOnly bool `form:"include_unread_only"`
}

// Users

type SimpleUser struct {
	ID       uint    `json:"id"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
}

type UpdateProfileRequest struct {
	UserName
	Avatar *string `json:"avatar" validate:"omitempty,url"`
}

type UserProfileResponse struct {
	SimpleUser
	IsOnline   bool       `json:"isOnline"`
	LastSeenAt *time.Time `json:"lastSeenAt"`
}

type FriendResponse struct {
	SimpleUser
	Online       bool       `json:"online"`
	LastSeenAt   *time.Time `json:"lastSeenAt"`
	FriendsSince time.Time  `json:"friendsSince"`
}

// Relationships

type SendFriendRequestRequest struct {
	ReceiverID uint `json:"receiverId" validate:"required"`
}

type FriendRequestResponse struct {
	ID        uint       `json:"id"`
	Sender    SimpleUser `json:"sender"`
	Receiver  SimpleUser `json:"receiver"`
	Status    string     `json:"status"`
	Direction string     `json:"direction"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type BlockUserRequest struct {
	UserID uint `json:"userId" validate:"required"`
}

type BlockedUserResponse struct {
	SimpleUser
	BlockedAt time.Time `json:"blockedAt"`
}

// Conversations

type CreatePrivateConversationRequest struct {
	UserID uint `json:"userId" validate:"required"`
}

type CreateGroupRequest struct {
	Name        string  `json:"name" validate:"required,trim,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Icon        *string `json:"icon" validate:"omitempty,url"`
	MemberIDs   []uint  `json:"memberIds" validate:"required,min=1,max=256,dive,required"`
}

type UpdateGroupRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Icon        *string `json:"icon" validate:"omitempty,url"`
}

type AddMembersRequest struct {
	MemberIDs []uint `json:"memberIds" validate:"required,min=1,max=256,dive,required"`
}

type MemberResponse struct {
	ID       uint       `json:"id"`
	User     SimpleUser `json:"user"`
	Role     string     `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
	Online   bool       `json:"online"`
}

type ConversationResponse struct {
	ID          uint             `json:"id"`
	IsGroup     bool             `json:"isGroup"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Icon        *string          `json:"icon"`
	CreatedBy   uint             `json:"createdBy"`
	Peer        *SimpleUser      `json:"peer,omitempty"`
	LastMessage *MessageResponse `json:"lastMessage"`
	UnreadCount int64            `json:"unreadCount"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type ConversationOverviewResponse struct {
	ConversationResponse
	MyMemberID uint             `json:"myMemberId"`
	MyRole     string           `json:"myRole"`
	Members    []MemberResponse `json:"members"`
}

// Messages

// FileDescriptor is what the media host returns for an uploaded file.
type FileDescriptor struct {
	ID     string `json:"id" validate:"required,max=200"`
	URL    string `json:"url" validate:"required,url"`
	Size   int64  `json:"size" validate:"min=0"`
	Width  int    `json:"width" validate:"min=0"`
	Height int    `json:"height" validate:"min=0"`
}

type MessageContent struct {
	Type    string          `json:"type" validate:"required,oneof=text image"`
	Content string          `json:"content" validate:"required_if=Type text,max=4000"`
	Image   *FileDescriptor `json:"image" validate:"required_if=Type image"`
}

type SendGroupMessageRequest struct {
	MessageContent
}

type SendPrivateMessageRequest struct {
	ReceiverID uint `json:"receiverId" validate:"required"`
	MessageContent
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required,trim,min=1,max=4000"`
}

type MarkSeenRequest struct {
	MessageIDs []uint `json:"messageIds" validate:"required,min=1,max=500,dive,required"`
}

type ToggleReactionRequest struct {
	Type string `json:"type" validate:"required,reaction"`
}

type ReactionResponse struct {
	UserID uint   `json:"userId"`
	Type   string `json:"type"`
	Glyph  string `json:"glyph"`
}

type MessageResponse struct {
	ID                 uint               `json:"id"`
	ConversationID     uint               `json:"conversationId"`
	SenderID           uint               `json:"senderId"`
	Type               string             `json:"type"`
	Content            string             `json:"content"`
	Image              *FileDescriptor    `json:"image,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
	IsEdited           bool               `json:"isEdited"`
	DeletedAt          *time.Time         `json:"deletedAt"`
	DeletedForEveryone bool               `json:"deletedForEveryone"`
	Reactions          []ReactionResponse `json:"reactions"`
	SeenByMemberIDs    []uint             `json:"seenByMemberIds"`
	Starred            bool               `json:"starred"`
}

type SeenStatusResponse struct {
	MessageID       uint   `json:"messageId"`
	SeenByMemberIDs []uint `json:"seenByMemberIds"`
}

type MarkSeenResponse struct {
	Seen []SeenStatusResponse `json:"seen"`
}

const (
	ReactionCreated = "created"
	ReactionUpdated = "updated"
	ReactionRemoved = "removed"
)

type ToggleReactionResponse struct {
	Action   string            `json:"action"`
	Reaction *ReactionResponse `json:"reaction"`
}

type ToggleStarResponse struct {
	MessageID uint `json:"messageId"`
	Starred   bool `json:"starred"`
}

type DeleteMessageQuery struct {
	ForEveryone bool `form:"for_everyone"`
}

// Tokens issued by the auth service.

type UserJwtPayload struct {
	UserID uint   `json:"userId"`
	Type   string `json:"type"` // must be "USER"
	jwt.RegisteredClaims
}
