package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/0xkonsti/chat-go/pkg/client"
	"github.com/0xkonsti/chat-go/pkg/logging"
	"github.com/0xkonsti/chat-go/pkg/protocol"
	"github.com/0xkonsti/chat-go/pkg/version"
)

func main() {
	addr := flag.String("addr", "localhost:9650", "Server address")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	// The REPL owns stdout; keep log noise down by default. Override with
	// CHAT_LOG_LEVEL / CHAT_LOG_FORMAT (debug, info, warn, error).
	level := "warn"
	if v := os.Getenv("CHAT_LOG_LEVEL"); v != "" {
		level = v
	}
	format := "text"
	if v := os.Getenv("CHAT_LOG_FORMAT"); v != "" {
		format = v
	}
	_ = logging.Setup(logging.Options{Level: level, Format: format, Output: os.Stderr})

	c, err := client.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	rl, err := newReadline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	fmt.Fprintf(rl.Stdout(), "connected to %s - /help for commands\n", *addr)
	go printEvents(rl, c)

	repl(rl, c)
}

func newReadline() (*readline.Instance, error) {
	var historyFile string
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".chat_history")
	}
	completer := readline.NewPrefixCompleter(
		readline.PcItem("/register"),
		readline.PcItem("/login"),
		readline.PcItem("/msg"),
		readline.PcItem("/debuglog"),
		readline.PcItem("/shutdown"),
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
	)
	return readline.NewEx(&readline.Config{
		Prompt:            "chat> ",
		HistoryFile:       historyFile,
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
}

// printEvents renders server traffic above the prompt. Writing through
// rl.Stdout() makes readline redraw the input line afterwards.
func printEvents(rl *readline.Instance, c *client.Client) {
	out := rl.Stdout()
	for ev := range c.Events() {
		switch ev.Kind {
		case protocol.KindAuthSuccess:
			fmt.Fprintln(out, "* logged in")
		case protocol.KindAuthFailure:
			fmt.Fprintf(out, "* auth failed: %s\n", field(ev, 0))
		case protocol.KindDirectMessageReceive:
			fmt.Fprintf(out, "[%s] %s\n", field(ev, 0), field(ev, 1))
		case protocol.KindMessageError:
			fmt.Fprintf(out, "* delivery failed: %s\n", field(ev, 0))
		case protocol.KindServerShutdownWarning:
			fmt.Fprintf(out, "* server shutting down in %s seconds\n", shutdownSeconds(ev))
		case protocol.KindDisconnect:
			fmt.Fprintln(out, "* server closed the connection")
		case protocol.KindAck:
			fmt.Fprintln(out, "* ok")
		case protocol.KindNack:
			fmt.Fprintln(out, "* rejected")
		}
	}
}

func field(ev client.Event, i int) string {
	if i < len(ev.Text) {
		return ev.Text[i]
	}
	return ""
}

// shutdownSeconds renders the 8-byte big-endian grace period carried by a
// shutdown warning.
func shutdownSeconds(ev client.Event) string {
	if len(ev.Text) == 0 || len(ev.Text[0]) != 8 {
		return "?"
	}
	b := []byte(ev.Text[0])
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return strconv.FormatUint(v, 10)
}

func repl(rl *readline.Instance, c *client.Client) {
	for {
		select {
		case <-c.Done():
			fmt.Fprintln(rl.Stdout(), "connection lost")
			return
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			_ = c.Disconnect()
			return
		}
		if err != nil {
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if done := runCommand(rl, c, input); done {
			return
		}
	}
}

// runCommand executes one REPL line. It returns true when the session
// should end.
func runCommand(rl *readline.Instance, c *client.Client, input string) bool {
	out := rl.Stdout()
	cmd, rest, _ := strings.Cut(input, " ")

	var err error
	switch cmd {
	case "/register", "/login":
		username := strings.TrimSpace(rest)
		if username == "" {
			fmt.Fprintf(out, "usage: %s USERNAME\n", cmd)
			return false
		}
		var pw []byte
		fmt.Fprintf(out, "password: ")
		pw, err = term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			break
		}
		if cmd == "/register" {
			err = c.Register(username, string(pw))
		} else {
			err = c.Login(username, string(pw))
		}

	case "/msg":
		recipient, body, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok || body == "" {
			fmt.Fprintln(out, "usage: /msg USERNAME MESSAGE")
			return false
		}
		err = c.Send(recipient, body)

	case "/debuglog":
		err = c.RequestDebugLog()

	case "/shutdown":
		var secs uint64
		secs, err = strconv.ParseUint(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			fmt.Fprintln(out, "usage: /shutdown SECONDS")
			return false
		}
		err = c.RequestShutdown(secs)

	case "/help":
		fmt.Fprintln(out, "/register USERNAME   create an account and log in")
		fmt.Fprintln(out, "/login USERNAME      log in")
		fmt.Fprintln(out, "/msg USERNAME TEXT   send a direct message")
		fmt.Fprintln(out, "/debuglog            dump server state to its log (admin)")
		fmt.Fprintln(out, "/shutdown SECONDS    shut the server down (admin)")
		fmt.Fprintln(out, "/quit                leave")

	case "/quit", "/exit":
		_ = c.Disconnect()
		return true

	default:
		fmt.Fprintf(out, "unknown command %q - /help for commands\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		if errors.Is(err, client.ErrClosed) {
			return true
		}
	}
	return false
}
