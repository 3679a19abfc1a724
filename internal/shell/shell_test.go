package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ArbusChat/internal/backend"
	"ArbusChat/internal/chatbot"
	"ArbusChat/internal/credential"
	"ArbusChat/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replyTransport struct {
	replies []string
	errs    []error
	calls   int
}

func (r *replyTransport) Send(_ context.Context, _ []session.Entry, _ string) (string, error) {
	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return "", r.errs[i]
	}
	if i < len(r.replies) {
		return r.replies[i], nil
	}
	return "", backend.ErrMalformedResponse
}

func runShell(t *testing.T, input string, store credential.Store, transport chatbot.Transport) (string, *chatbot.ChatBot) {
	t.Helper()
	var out bytes.Buffer
	sh := New(Options{In: strings.NewReader(input), Out: &out, Plain: true})

	bot, err := chatbot.NewChatBot(context.Background(), chatbot.Options{
		Credentials:   store,
		Transport:     transport,
		Notifier:      sh,
		OnStateChange: sh.StateChanged,
	})
	require.NoError(t, err)

	require.NoError(t, sh.Run(context.Background(), bot))
	return out.String(), bot
}

func TestRun_PromptsForKeyThenChats(t *testing.T) {
	store := credential.NewMemoryStore("")
	transport := &replyTransport{replies: []string{"hi there"}}

	out, bot := runShell(t, "   \nsk-test\nhello\n/quit\n", store, transport)

	assert.Contains(t, out, "An Anthropic API key is required")
	assert.Contains(t, out, "Error: The API key must not be empty")
	assert.Contains(t, out, "API key saved")
	assert.Contains(t, out, "Claude is thinking...")
	assert.Contains(t, out, "Claude: hi there")
	assert.Contains(t, out, "Goodbye!")
	assert.NotContains(t, out, "sk-test", "the key is never echoed back")

	key, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-test", key)
	assert.Len(t, bot.Turns(), 2)
}

func TestRun_FailureShowsNoticeAndKeepsTurn(t *testing.T) {
	transport := &replyTransport{
		errs:    []error{&backend.RemoteServiceError{StatusCode: 529, Message: "Overloaded"}},
		replies: []string{"", "second try worked"},
	}

	out, bot := runShell(t, "hello\nhello\n", credential.NewMemoryStore("sk-test"), transport)

	assert.Contains(t, out, "Error: Overloaded")
	assert.Contains(t, out, "Claude: second try worked")

	turns := bot.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, session.RoleUser, turns[1].Role)
	assert.Equal(t, session.RoleAssistant, turns[2].Role)
}

func TestRun_Commands(t *testing.T) {
	transport := &replyTransport{replies: []string{"pong"}}
	store := credential.NewMemoryStore("sk-old")

	out, _ := runShell(t, "/history\n/help\nping\n/history\n/key\nsk-new\n/bogus\n/exit\nnever sent\n", store, transport)

	assert.Contains(t, out, "No messages yet.")
	assert.Contains(t, out, "Available commands:")
	assert.Equal(t, 2, strings.Count(out, "Claude: pong"), "reply printed once when received and once by /history")
	assert.Contains(t, out, "You: ping")
	assert.Contains(t, out, "Unknown command /bogus")
	assert.Equal(t, 1, transport.calls)

	key, _, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-new", key)
}

func TestRun_EOFWhileWaitingForKey(t *testing.T) {
	out, bot := runShell(t, "", credential.NewMemoryStore(""), &replyTransport{})

	assert.Contains(t, out, "API key: ")
	assert.Equal(t, chatbot.StateNoCredential, bot.State())
}

func TestRun_QuitAtKeyPromptStoresNothing(t *testing.T) {
	store := credential.NewMemoryStore("")

	out, bot := runShell(t, "/quit\n", store, &replyTransport{})

	assert.NotContains(t, out, "API key saved")
	assert.Equal(t, chatbot.StateNoCredential, bot.State())

	_, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_CommandAtKeyPromptIsRejected(t *testing.T) {
	store := credential.NewMemoryStore("")
	transport := &replyTransport{replies: []string{"hi"}}

	out, bot := runShell(t, "/help\n/exit\n", store, transport)

	assert.Contains(t, out, "Error: Enter your API key, or /quit to exit")
	assert.Equal(t, 2, strings.Count(out, "API key: "))
	assert.Equal(t, chatbot.StateNoCredential, bot.State())

	_, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_ReadSecret(t *testing.T) {
	var out bytes.Buffer
	secretCalls := 0
	sh := New(Options{
		In:    strings.NewReader("/quit\n"),
		Out:   &out,
		Plain: true,
		ReadSecret: func() (string, error) {
			secretCalls++
			return "sk-hidden", nil
		},
	})
	store := credential.NewMemoryStore("")
	bot, err := chatbot.NewChatBot(context.Background(), chatbot.Options{
		Credentials: store,
		Transport:   &replyTransport{},
		Notifier:    sh,
	})
	require.NoError(t, err)

	require.NoError(t, sh.Run(context.Background(), bot))
	assert.Equal(t, 1, secretCalls)
	key, _, _ := store.Get(context.Background())
	assert.Equal(t, "sk-hidden", key)
}

func TestRun_SecretReadError(t *testing.T) {
	boom := errors.New("tty gone")
	var out bytes.Buffer
	sh := New(Options{
		In:         strings.NewReader(""),
		Out:        &out,
		Plain:      true,
		ReadSecret: func() (string, error) { return "", boom },
	})
	bot, err := chatbot.NewChatBot(context.Background(), chatbot.Options{
		Credentials: credential.NewMemoryStore(""),
		Transport:   &replyTransport{},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, sh.Run(context.Background(), bot), boom)
}

func TestPrintTurn_Markdown(t *testing.T) {
	var out bytes.Buffer
	sh := New(Options{In: strings.NewReader(""), Out: &out, Width: 60})
	require.NotNil(t, sh.markdown)

	sh.printTurn(session.NewAssistantTurn("# Title\n\nSome **bold** text"))

	assert.Contains(t, out.String(), "Claude:")
	assert.Contains(t, out.String(), "Title")
	assert.Contains(t, out.String(), "bold")
}
