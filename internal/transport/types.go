package transport

import "context"

type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateCallback    UpdateKind = "callback"
	UpdateJoinRequest UpdateKind = "join_request"
)

type Update struct {
	Kind        UpdateKind
	Message     *Message
	Callback    *Callback
	JoinRequest *JoinRequest
}

// User is the sender profile as reported by the platform.
type User struct {
	ID        int64
	Username  string // may be empty
	FirstName string
	LastName  string
}

// DisplayName joins first and last name, falling back to the handle.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
	From     User
	Text     string
	IsGroup  bool
}

type Callback struct {
	ID        string
	From      User
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// JoinRequest is emitted when a user asks to join a chat that requires approval.
type JoinRequest struct {
	ChatID int64
	From   User
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Button is a platform-neutral inline button. Data is delivered back verbatim
// in Callback.Data.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Buttons are rendered as an inline keyboard, one slice per row.
	Buttons [][]Button
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photoURL, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// JoinRequestApprover is an optional interface for adapters that can approve
// pending join requests.
type JoinRequestApprover interface {
	ApproveJoinRequest(ctx context.Context, chatID, userID int64) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
