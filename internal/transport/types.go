package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateQuery   UpdateKind = "query"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
	Query   *Query
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

// Query is an inline (autocomplete) request typed into the chat input box.
type Query struct {
	ID     string
	FromID int64
	Text   string
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

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Document is a file attachment read from disk at send time.
type Document struct {
	Path     string
	FileName string
	Caption  string
	// ParseMode applies to Caption.
	ParseMode string
}

// Suggestion is one inline-query answer. Choosing it sends Text to the chat.
type Suggestion struct {
	ID    string
	Title string
	Text  string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc Document) (MessageRef, error)
	AnswerQuery(ctx context.Context, queryID string, results []Suggestion) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command
// menu to the platform.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
