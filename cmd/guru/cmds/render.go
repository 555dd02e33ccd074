package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
)

// renderContent prints message content, expanding block and video sections.
func renderContent(w io.Writer, content string) {
	body := content
	var videos string
	if idx := strings.Index(body, "\n"+conversation.VideosMarker+"\n"); idx >= 0 {
		videos = body[idx+len(conversation.VideosMarker)+2:]
		body = body[:idx]
	}

	if strings.HasPrefix(body, conversation.BlocksMarker+"\n") {
		var blocks []api.Block
		raw := strings.TrimPrefix(body, conversation.BlocksMarker+"\n")
		if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
			_, _ = fmt.Fprintln(w, raw)
		}
		for _, b := range blocks {
			switch b.Type {
			case "image":
				label := b.Alt
				if label == "" {
					label = b.Prompt
				}
				_, _ = fmt.Fprintf(w, "  [image: %s]\n", label)
			default:
				_, _ = fmt.Fprintf(w, "  %s\n", b.Content)
			}
		}
	} else {
		for _, line := range strings.Split(body, "\n") {
			_, _ = fmt.Fprintf(w, "  %s\n", line)
		}
	}

	if videos != "" {
		var list []api.Video
		if err := json.Unmarshal([]byte(videos), &list); err == nil && len(list) > 0 {
			_, _ = fmt.Fprintln(w, "  videos:")
			for _, v := range list {
				_, _ = fmt.Fprintf(w, "    - %s <%s>\n", v.Title, v.Link)
			}
		}
	}
}

func renderMessage(w io.Writer, m conversation.Message) {
	who := "you"
	if m.Role == conversation.RoleAssistant {
		who = "guru"
	}
	_, _ = fmt.Fprintf(w, "%s:\n", who)
	renderContent(w, m.Content)
}

func renderConversation(w io.Writer, c conversation.Conversation, full bool) {
	research := ""
	if c.HasUsedResearchMode {
		research = " (research)"
	}
	_, _ = fmt.Fprintf(w, "# page %d: %s%s, %d messages\n", c.Page, c.Title, research, len(c.Messages))
	if !full {
		if m, ok := c.LastMessage(); ok {
			if preview := conversation.DeriveTitle(m.Content); preview != conversation.DefaultTitle {
				_, _ = fmt.Fprintf(w, "  last: %s\n", preview)
			}
		}
		return
	}
	for _, m := range c.Messages {
		renderMessage(w, m)
	}
	_, _ = fmt.Fprintln(w)
}
