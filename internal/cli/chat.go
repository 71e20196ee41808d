package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/MobasirSarkar/chatrelay/internal/client"
	"github.com/MobasirSarkar/chatrelay/internal/config"
	"github.com/MobasirSarkar/chatrelay/internal/session"
	"github.com/spf13/cobra"
)

var (
	chatToken    string
	chatLogLevel string
)

var chatCmd = &cobra.Command{
	Use:   "chat <user-id> [peer-id]",
	Short: "Chat from the terminal",
	Long: `Connect as <user-id> and open the conversation with [peer-id].

Commands inside the session:
  /peer <id>   switch conversation
  /users       list the user directory
  /quit        leave

Anything else is sent to the current peer.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatToken, "token", "", "join token when the server runs AUTH_MODE=jwt")
	chatCmd.Flags().StringVar(&chatLogLevel, "log-level", "WARN", "client log level")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	log, closeLog := config.SetupLogger("", config.ParseLogLevel(chatLogLevel))
	defer func() { _ = closeLog() }()

	api := client.New(serverURL, clientTimeout)
	ctrl := session.New(api, session.Options{RelayURL: api.WebSocketURL()}, log)
	defer ctrl.Close()

	if err := ctrl.Activate(ctx, args[0], chatToken); err != nil {
		return err
	}

	out := &transcript{w: cmd.OutOrStdout()}
	sub := ctrl.Subscribe()
	defer sub.Close()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.C:
				out.render(ctrl.Peer(), ctrl.Messages())
			}
		}
	}()

	if len(args) == 2 {
		if err := ctrl.SelectPeer(ctx, args[1]); err != nil {
			return err
		}
	} else {
		out.println("Select a conversation with /peer <id>.")
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "/quit":
			return nil
		case line == "/users":
			users, err := api.ListUsers(ctx)
			if err != nil {
				out.println("error: " + err.Error())
				continue
			}
			for _, u := range users {
				out.println(fmt.Sprintf("  %s (%s)", u.DisplayName(), u.ID))
			}
		case strings.HasPrefix(line, "/peer"):
			peer := strings.TrimSpace(strings.TrimPrefix(line, "/peer"))
			if err := ctrl.SelectPeer(ctx, peer); err != nil {
				out.println("error: " + err.Error())
			}
		default:
			if _, err := ctrl.Send(ctx, line); err != nil {
				if errors.Is(err, session.ErrEmptyMessage) {
					continue
				}
				out.println("error: " + err.Error())
			} else if !ctrl.Connected() {
				out.println("(offline: stored, not relayed)")
			}
		}
	}
	return scanner.Err()
}

// transcript prints the displayed conversation incrementally.
type transcript struct {
	mu    sync.Mutex
	w     io.Writer
	peer  string
	shown int
}

func (t *transcript) render(peer string, messages []chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if peer != t.peer || len(messages) < t.shown {
		t.peer, t.shown = peer, 0
		if peer != "" {
			fmt.Fprintf(t.w, "--- conversation with %s ---\n", peer)
		}
	}
	for _, m := range messages[t.shown:] {
		fmt.Fprintf(t.w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.SenderID, m.Content)
	}
	t.shown = len(messages)
}

func (t *transcript) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, s)
}
