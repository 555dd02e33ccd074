package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/guru/pkg/conversation"
	"github.com/go-go-golems/guru/pkg/events"
	"github.com/go-go-golems/guru/pkg/store"
)

const chatHelp = `commands:
  /new              start a new conversation
  /list             list conversations
  /open <page>      continue the conversation on a page
  /research         toggle research mode
  /history          reload history from the backend
  /quit             leave`

// printing every event is slow enough to lag behind a research turn
const showEventsBuffer = 1024

func NewChatCommand() *cobra.Command {
	var (
		research   bool
		showEvents bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var busOptions []events.BusOption
			if showEvents {
				busOptions = append(busOptions, events.WithSubscriptionBuffer(showEventsBuffer))
			}
			s, err := openStore(ctx, busOptions...)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			if err := requireIdentity(s); err != nil {
				return err
			}

			changes, err := s.Subscribe(ctx)
			if err != nil {
				return err
			}
			go watchChanges(s, changes, cmd.ErrOrStderr(), showEvents)

			mode := modeFromFlag(research)
			s.SetUIMode(mode)
			return runChat(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&research, "research", false, "Start in research mode")
	cmd.Flags().BoolVar(&showEvents, "show-events", false, "Print every state change")
	return cmd
}

// watchChanges prints the loading label while a research send is running.
func watchChanges(s *store.Store, changes <-chan events.StateChanged, w io.Writer, all bool) {
	for e := range changes {
		if all {
			_, _ = fmt.Fprintf(w, "[v%d %s]\n", e.Version, e.Action)
		}
		if e.Action == "set_loading_label" {
			if label := s.State().ActiveLoadingLabel; label != "" {
				_, _ = fmt.Fprintf(w, "... %s\n", label)
			}
		}
	}
	log.Debug().Msg("state change subscription ended")
}

func runChat(ctx context.Context, s *store.Store, in io.Reader, out io.Writer) error {
	_, _ = fmt.Fprintln(out, chatHelp)
	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprintf(out, "%s> ", s.State().UIMode)
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/new":
			s.CreateConversation()
		case line == "/list":
			for _, c := range s.State().Conversations {
				renderConversation(out, c, false)
			}
		case strings.HasPrefix(line, "/open"):
			var page int
			if _, err := fmt.Sscanf(line, "/open %d", &page); err != nil {
				_, _ = fmt.Fprintln(out, "usage: /open <page>")
				continue
			}
			if !openPage(s, page) {
				_, _ = fmt.Fprintf(out, "no conversation on page %d\n", page)
				continue
			}
			if c, ok := s.State().Selected(); ok {
				renderConversation(out, *c, true)
			}
		case line == "/research":
			mode := conversation.ModeResearch
			if s.State().UIMode.IsResearch() {
				mode = conversation.ModeGeneral
			}
			s.SetUIMode(mode)
		case line == "/history":
			res := s.LoadHistory(ctx)
			if res.Err != nil {
				_, _ = fmt.Fprintf(out, "could not load history: %v\n", res.Err)
			}
		case strings.HasPrefix(line, "/"):
			_, _ = fmt.Fprintln(out, chatHelp)
		default:
			turn := s.SendMessage(ctx, line, s.State().UIMode)
			res, err := turn.Wait()
			if err != nil {
				_, _ = fmt.Fprintf(out, "send failed: %v\n", err)
				continue
			}
			if c, ok := s.State().Conversation(res.ConversationID); ok {
				if m, ok := c.Message(res.AssistantMessageID); ok {
					renderMessage(out, *m)
				}
			}
		}
	}
}

func openPage(s *store.Store, page int) bool {
	for _, c := range s.State().Conversations {
		if c.Page == page {
			s.SelectConversation(c.ID)
			return true
		}
	}
	return false
}
