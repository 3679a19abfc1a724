package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ArbusChat/internal/chatbot"
	"ArbusChat/internal/credential"
	"ArbusChat/internal/session"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const keyConsoleURL = "https://console.anthropic.com/"

// Bot is the session the shell drives.
type Bot interface {
	State() chatbot.State
	Turns() []session.Turn
	SetCredential(ctx context.Context, value string) error
	SendMessage(ctx context.Context, text string) (session.Turn, error)
}

// Options configures a Shell.
type Options struct {
	In  io.Reader
	Out io.Writer

	// ReadSecret reads the API key without echoing it. When nil the key is
	// read as the next input line.
	ReadSecret func() (string, error)

	// Plain prints assistant replies as-is instead of rendering markdown.
	Plain bool
	Width int
}

// Shell is the terminal front end: it prompts for the API key, reads
// messages and commands, and prints turns and notices.
type Shell struct {
	scanner    *bufio.Scanner
	out        io.Writer
	readSecret func() (string, error)
	markdown   *glamour.TermRenderer

	userLabel      lipgloss.Style
	assistantLabel lipgloss.Style
	errorStyle     lipgloss.Style
	successStyle   lipgloss.Style
	faint          lipgloss.Style
}

// New creates a shell reading from opts.In and writing to opts.Out.
func New(opts Options) *Shell {
	scanner := bufio.NewScanner(opts.In)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	r := lipgloss.NewRenderer(opts.Out)
	s := &Shell{
		scanner:        scanner,
		out:            opts.Out,
		readSecret:     opts.ReadSecret,
		userLabel:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		assistantLabel: r.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		errorStyle:     r.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle:   r.NewStyle().Foreground(lipgloss.Color("42")),
		faint:          r.NewStyle().Faint(true),
	}

	if !opts.Plain {
		width := opts.Width
		if width <= 0 {
			width = 80
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			s.markdown = md
		}
	}

	return s
}

// Notify prints a notice; it satisfies chatbot.Notifier.
func (s *Shell) Notify(n chatbot.Notice) {
	switch n.Level {
	case chatbot.LevelError:
		fmt.Fprintln(s.out, s.errorStyle.Render("Error: "+n.Message))
	case chatbot.LevelSuccess:
		fmt.Fprintln(s.out, s.successStyle.Render(n.Message))
	default:
		fmt.Fprintln(s.out, s.faint.Render(n.Message))
	}
}

// StateChanged shows a pending indicator while a reply is awaited.
func (s *Shell) StateChanged(state chatbot.State) {
	if state == chatbot.StateSending {
		fmt.Fprintln(s.out, s.faint.Render("Claude is thinking..."))
	}
}

// Run reads input until /quit or end of input.
func (s *Shell) Run(ctx context.Context, bot Bot) error {
	fmt.Fprintln(s.out, "=== Arbus Studio · Chat with Claude ===")
	fmt.Fprintln(s.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(s.out)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if bot.State() == chatbot.StateNoCredential {
			if err := s.promptCredential(ctx, bot); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			continue
		}

		fmt.Fprint(s.out, s.userLabel.Render("You:")+" ")
		line, err := s.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := s.handleCommand(ctx, bot, input)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if quit {
				break
			}
			continue
		}

		// Failures are reported through Notify.
		turn, err := bot.SendMessage(ctx, line)
		if err != nil {
			continue
		}
		s.printTurn(turn)
	}

	fmt.Fprintln(s.out, "Goodbye!")
	return nil
}

func (s *Shell) readLine() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

// promptCredential asks for a key until a non-blank one is given. Only
// input errors are returned.
func (s *Shell) promptCredential(ctx context.Context, bot Bot) error {
	fmt.Fprintf(s.out, "An Anthropic API key is required. Get one at %s\n", keyConsoleURL)
	fmt.Fprintln(s.out, s.faint.Render("The key is stored only on this machine."))

	for {
		fmt.Fprint(s.out, "API key: ")

		var value string
		var err error
		if s.readSecret != nil {
			value, err = s.readSecret()
			fmt.Fprintln(s.out)
		} else {
			value, err = s.readLine()
		}
		if err != nil {
			return err
		}

		// Commands are never keys: quitting leaves like end of input.
		if input := strings.TrimSpace(value); strings.HasPrefix(input, "/") {
			switch strings.Fields(input)[0] {
			case "/quit", "/exit":
				return io.EOF
			}
			s.Notify(chatbot.Notice{Level: chatbot.LevelError, Message: "Enter your API key, or /quit to exit"})
			continue
		}

		// Storage failures are reported by the bot itself.
		err = bot.SetCredential(ctx, value)
		if errors.Is(err, credential.ErrEmptyCredential) {
			s.Notify(chatbot.Notice{Level: chatbot.LevelError, Message: chatbot.UserMessage(err)})
			continue
		}
		return nil
	}
}

func (s *Shell) handleCommand(ctx context.Context, bot Bot, cmd string) (bool, error) {
	parts := strings.Fields(cmd)

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/key":
		return false, s.promptCredential(ctx, bot)

	case "/history":
		turns := bot.Turns()
		if len(turns) == 0 {
			fmt.Fprintln(s.out, s.faint.Render("No messages yet."))
			return false, nil
		}
		for _, turn := range turns {
			s.printTurn(turn)
		}
		return false, nil

	case "/help":
		fmt.Fprintln(s.out, "Available commands:")
		fmt.Fprintln(s.out, "  /key          - Replace the stored API key")
		fmt.Fprintln(s.out, "  /history      - Show the conversation so far")
		fmt.Fprintln(s.out, "  /quit, /exit  - Exit the chat")
		fmt.Fprintln(s.out, "  /help         - Show this help message")
		return false, nil

	default:
		fmt.Fprintf(s.out, "Unknown command %s, type /help for the list\n", parts[0])
		return false, nil
	}
}

func (s *Shell) printTurn(turn session.Turn) {
	if turn.Role == session.RoleUser {
		fmt.Fprintf(s.out, "%s %s\n", s.userLabel.Render("You:"), turn.Content)
		return
	}

	content := turn.Content
	if s.markdown != nil {
		if rendered, err := s.markdown.Render(content); err == nil {
			content = strings.TrimSpace(rendered)
		}
	}
	fmt.Fprintf(s.out, "%s %s\n\n", s.assistantLabel.Render("Claude:"), content)
}
