package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/coursecast/server/internal/domain"
)

// Client to server message types.
const (
	TypeJoinCourse  = "join-course"
	TypeLeaveCourse = "leave-course"
	TypeSendMessage = "send-message"
	TypeTyping      = "typing"
	TypeStopTyping  = "stop-typing"
)

// Server to client message types.
const (
	TypeNewMessage     = "new-message"
	TypeUserTyping     = "user-typing"
	TypeUserStopTyping = "user-stop-typing"
	TypeTypingUsers    = "typing-users"
)

var errEmptyCourseId = errors.New("course id is empty")

// ClientEvent is implemented only by the inbound event payloads of this package.
type ClientEvent interface {
	Type() string
	clientEvent()
}

// ClientTypes lists every inbound message type the gateway must route.
func ClientTypes() []string {
	return []string{
		JoinCourse{}.Type(),
		LeaveCourse{}.Type(),
		SendMessage{}.Type(),
		Typing{}.Type(),
		StopTyping{}.Type(),
	}
}

// courseRef accepts either a bare JSON string or an object with a courseId field.
type courseRef struct {
	CourseId string `json:"courseId"`
}

func (c *courseRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.CourseId)
	}

	var obj struct {
		CourseId string `json:"courseId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.CourseId = obj.CourseId

	return nil
}

type JoinCourse struct {
	courseRef
}

func (JoinCourse) Type() string { return TypeJoinCourse }
func (JoinCourse) clientEvent() {}

type LeaveCourse struct {
	courseRef
}

func (LeaveCourse) Type() string { return TypeLeaveCourse }
func (LeaveCourse) clientEvent() {}

type StopTyping struct {
	courseRef
}

func (StopTyping) Type() string { return TypeStopTyping }
func (StopTyping) clientEvent() {}

// SendMessage carries the sender fields the client believes it has. The
// gateway overrides them with the authenticated identity.
type SendMessage struct {
	CourseId  string      `json:"courseId"`
	Content   string      `json:"content"`
	UserId    string      `json:"userId"`
	UserName  string      `json:"userName"`
	UserImage *string     `json:"userImage"`
	UserRole  domain.Role `json:"userRole"`
}

func (SendMessage) Type() string { return TypeSendMessage }
func (SendMessage) clientEvent() {}

type Typing struct {
	CourseId string `json:"courseId"`
	UserName string `json:"userName"`
}

func (Typing) Type() string { return TypeTyping }
func (Typing) clientEvent() {}

type ChatMessage struct {
	Id        string      `json:"id"`
	CourseId  string      `json:"courseId"`
	Content   string      `json:"content"`
	UserId    string      `json:"userId"`
	UserName  string      `json:"userName"`
	UserImage *string     `json:"userImage"`
	UserRole  domain.Role `json:"userRole"`
	Timestamp time.Time   `json:"timestamp"`
}

type TypingUsers struct {
	CourseId  string   `json:"courseId"`
	UserNames []string `json:"userNames"`
}

// Outbound is the envelope written to clients.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func NewMessage(msg ChatMessage) Outbound {
	return Outbound{Type: TypeNewMessage, Payload: msg}
}

func UserTyping(userName string) Outbound {
	return Outbound{Type: TypeUserTyping, Payload: userName}
}

func UserStopTyping() Outbound {
	return Outbound{Type: TypeUserStopTyping}
}

func TypingUsersSnapshot(courseId string, userNames []string) Outbound {
	if userNames == nil {
		userNames = []string{}
	}

	return Outbound{Type: TypeTypingUsers, Payload: TypingUsers{CourseId: courseId, UserNames: userNames}}
}

// Validate reports whether the reference names a course.
func (c courseRef) Validate() error {
	if c.CourseId == "" {
		return errEmptyCourseId
	}

	return nil
}
