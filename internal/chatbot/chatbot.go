package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ArbusChat/internal/backend"
	"ArbusChat/internal/credential"
	"ArbusChat/internal/session"
)

var (
	// ErrMissingCredential is returned when a message is sent before an API key is stored.
	ErrMissingCredential = errors.New("no API key configured")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrBusy is returned when a message is sent while a reply is still pending.
	ErrBusy = errors.New("a message is already being sent")
)

// State is the lifecycle position of a chat session.
type State int

const (
	StateNoCredential State = iota
	StateIdle
	StateSending
)

func (s State) String() string {
	switch s {
	case StateNoCredential:
		return "no-credential"
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transport delivers the conversation to the model and returns its reply.
type Transport interface {
	Send(ctx context.Context, history []session.Entry, credential string) (string, error)
}

// Level classifies a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

// Notice is a transient message for the user. Notices are never stored in
// the conversation.
type Notice struct {
	Level   Level
	Message string
}

// Notifier receives notices as they happen.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Options configures a ChatBot.
type Options struct {
	Credentials credential.Store
	Transport   Transport
	Notifier    Notifier
	Logger      *slog.Logger

	// Timeout bounds each request; zero leaves it to the transport.
	Timeout time.Duration

	// OnStateChange, when set, is called after every state transition.
	OnStateChange func(State)
}

// ChatBot owns one conversation: it turns user input into requests, keeps
// the message log and tracks whether a reply is pending. At most one
// request is in flight at a time.
type ChatBot struct {
	credentials   credential.Store
	transport     Transport
	notifier      Notifier
	logger        *slog.Logger
	timeout       time.Duration
	onStateChange func(State)

	log   *session.Log
	mu    sync.Mutex
	state State
}

// NewChatBot creates a session, reading any stored credential to pick the
// initial state.
func NewChatBot(ctx context.Context, opts Options) (*ChatBot, error) {
	if opts.Credentials == nil {
		return nil, errors.New("credential store cannot be nil")
	}
	if opts.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	cb := &ChatBot{
		credentials:   opts.Credentials,
		transport:     opts.Transport,
		notifier:      opts.Notifier,
		logger:        opts.Logger,
		timeout:       opts.Timeout,
		onStateChange: opts.OnStateChange,
		log:           session.NewLog(),
		state:         StateNoCredential,
	}
	if cb.notifier == nil {
		cb.notifier = NotifierFunc(func(Notice) {})
	}
	if cb.logger == nil {
		cb.logger = slog.Default()
	}

	key, ok, err := cb.credentials.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if ok {
		cb.state = StateIdle
		cb.logger.Info("loaded stored credential", "fingerprint", credential.Fingerprint(key))
	} else {
		cb.logger.Info("no stored credential")
	}

	return cb, nil
}

// State returns the current lifecycle state.
func (cb *ChatBot) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Turns returns the conversation so far.
func (cb *ChatBot) Turns() []session.Turn {
	return cb.log.Turns()
}

// SetCredential stores a new API key, replacing any previous one.
func (cb *ChatBot) SetCredential(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return credential.ErrEmptyCredential
	}

	if err := cb.credentials.Set(ctx, value); err != nil {
		cb.logger.Error("failed to store credential", "error", err)
		cb.notifier.Notify(Notice{Level: LevelError, Message: "Could not save the API key"})
		return err
	}

	cb.mu.Lock()
	changed := cb.state == StateNoCredential
	if changed {
		cb.state = StateIdle
	}
	cb.mu.Unlock()

	cb.logger.Info("credential saved", "fingerprint", credential.Fingerprint(value))
	if changed {
		cb.stateChanged(StateIdle)
	}
	cb.notifier.Notify(Notice{Level: LevelSuccess, Message: "API key saved"})
	return nil
}

// SendMessage appends text as a user turn, sends the whole conversation and
// appends the reply. The user turn stays in the log even when the request
// fails, so it can be resent. On success the assistant turn is returned.
func (cb *ChatBot) SendMessage(ctx context.Context, text string) (session.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return session.Turn{}, ErrEmptyMessage
	}

	cb.mu.Lock()
	if cb.state == StateSending {
		cb.mu.Unlock()
		return session.Turn{}, ErrBusy
	}

	key, ok, err := cb.credentials.Get(ctx)
	if err != nil {
		cb.mu.Unlock()
		err = fmt.Errorf("failed to load credential: %w", err)
		cb.fail(err)
		return session.Turn{}, err
	}
	if !ok {
		cb.mu.Unlock()
		cb.fail(ErrMissingCredential)
		return session.Turn{}, ErrMissingCredential
	}

	cb.log.Append(session.NewUserTurn(text))
	history := cb.log.OutboundHistory()
	cb.state = StateSending
	cb.mu.Unlock()
	cb.stateChanged(StateSending)

	cb.logger.Info("sending message", "history_length", len(history))

	reply, err := cb.send(ctx, history, key)

	cb.mu.Lock()
	cb.state = StateIdle
	var turn session.Turn
	if err == nil {
		turn = session.NewAssistantTurn(reply)
		cb.log.Append(turn)
	}
	cb.mu.Unlock()
	cb.stateChanged(StateIdle)

	if err != nil {
		cb.fail(err)
		return session.Turn{}, err
	}

	cb.logger.Info("received reply", "turn_id", turn.ID, "length", len(reply))
	return turn, nil
}

func (cb *ChatBot) send(ctx context.Context, history []session.Entry, key string) (string, error) {
	if cb.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.timeout)
		defer cancel()
	}
	return cb.transport.Send(ctx, history, key)
}

func (cb *ChatBot) fail(err error) {
	cb.logger.Error("failed to send message", "error", err)
	cb.notifier.Notify(Notice{Level: LevelError, Message: UserMessage(err)})
}

func (cb *ChatBot) stateChanged(s State) {
	if cb.onStateChange != nil {
		cb.onStateChange(s)
	}
}

// UserMessage turns an error from SendMessage or SetCredential into text
// fit to show the user.
func UserMessage(err error) string {
	var remote *backend.RemoteServiceError
	var network *backend.NetworkError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return "Please enter your Anthropic API key"
	case errors.Is(err, ErrEmptyMessage):
		return "Type a message first"
	case errors.Is(err, ErrBusy):
		return "Wait for the current reply before sending another message"
	case errors.Is(err, credential.ErrEmptyCredential):
		return "The API key must not be empty"
	case errors.As(err, &remote):
		return remote.Message
	case errors.Is(err, backend.ErrTimeout):
		return "Claude did not respond in time"
	case errors.As(err, &network):
		return "Could not reach the service"
	default:
		return "An error occurred while processing your message"
	}
}
