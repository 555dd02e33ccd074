package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
)

// idNamespace scopes the deterministic ids of reconstituted conversations and
// messages, so that loading the same feed twice yields the same ids.
var idNamespace = uuid.MustParse("6f1c2b9e-3d4a-5e8f-9a0b-1c2d3e4f5a6b")

// BuildOptions tune how records are turned into conversations.
type BuildOptions struct {
	// ResearchModels are the model tags that mark a record as a research one.
	ResearchModels []string
}

// Built is the outcome of Build.
type Built struct {
	// Conversations are ordered by page, most recent first.
	Conversations []conversation.Conversation
	// CurrentPage is the highest page seen, 0 when there was none.
	CurrentPage int
	// Skipped counts malformed pages and records that were left out.
	Skipped int
}

// Build converts a history feed into one conversation per page. It does not
// touch any state and never fails: malformed entries are logged and skipped.
func Build(username string, resp *api.HistoryResponse, opts BuildOptions) Built {
	research := map[string]bool{}
	for _, m := range opts.ResearchModels {
		research[strings.ToLower(strings.TrimSpace(m))] = true
	}

	pages, errs := resp.Pages()
	ret := Built{Skipped: len(errs)}
	for _, err := range errs {
		log.Warn().Err(err).Str("username", username).Msg("skipping malformed history page")
	}

	byPage := map[int]*conversation.Conversation{}
	for i := range pages {
		p := &pages[i]
		if p.Page <= 0 {
			log.Warn().Int("page", p.Page).Msg("skipping history page with invalid number")
			ret.Skipped++
			continue
		}

		records, errs := p.Records()
		ret.Skipped += len(errs)
		for _, err := range errs {
			log.Warn().Err(err).Int("page", p.Page).Msg("skipping malformed history record")
		}

		c, ok := byPage[p.Page]
		if !ok {
			c = &conversation.Conversation{
				ID:       pageID(username, p.Page),
				Title:    strings.TrimSpace(p.Preview),
				Messages: []conversation.Message{},
				Page:     p.Page,
			}
			byPage[p.Page] = c
		}

		for j, rec := range records {
			messages, err := recordMessages(username, p.Page, j, rec, research)
			if err != nil {
				log.Warn().Err(err).Int("page", p.Page).Str("record_id", rec.ID).Msg("skipping malformed history record")
				ret.Skipped++
				continue
			}
			c.Messages = append(c.Messages, messages...)
			if research[strings.ToLower(rec.LLMModel)] {
				c.HasUsedResearchMode = true
			}
		}
	}

	for _, c := range byPage {
		if len(c.Messages) == 0 {
			continue
		}
		sort.SliceStable(c.Messages, func(i, j int) bool {
			return c.Messages[i].Timestamp.Before(c.Messages[j].Timestamp)
		})

		c.CreatedAt = c.Messages[0].Timestamp
		c.UpdatedAt = c.Messages[len(c.Messages)-1].Timestamp
		// the page preview only names conversations whose first message has no text
		preview := c.Title
		c.Title = conversation.DeriveTitle(c.Messages[0].Content)
		if c.Title == conversation.DefaultTitle && preview != "" {
			c.Title = conversation.DeriveTitle(preview)
		}

		ret.Conversations = append(ret.Conversations, *c)
		if c.Page > ret.CurrentPage {
			ret.CurrentPage = c.Page
		}
	}

	sort.Slice(ret.Conversations, func(i, j int) bool {
		return ret.Conversations[i].Page > ret.Conversations[j].Page
	})
	return ret
}

func recordMessages(username string, page, index int, rec api.HistoryRecord, research map[string]bool) ([]conversation.Message, error) {
	key := rec.ID
	if key == "" {
		key = fmt.Sprintf("#%d@%s", index, rec.Timestamp.UTC().Format("20060102T150405.000000000"))
	}

	mode := conversation.ModeGeneral
	if research[strings.ToLower(rec.LLMModel)] {
		mode = conversation.ModeResearch
	}

	response, hasResponse, err := responseContent(rec.Response)
	if err != nil {
		return nil, err
	}

	var ret []conversation.Message
	if strings.TrimSpace(rec.Query) != "" {
		ret = append(ret, conversation.Message{
			ID:        messageID(username, page, key, conversation.RoleUser),
			Role:      conversation.RoleUser,
			Content:   rec.Query,
			Timestamp: rec.Timestamp.Time,
			Mode:      mode,
			Page:      page,
		})
	}
	if hasResponse {
		if len(rec.YoutubeLinks) > 0 {
			response = conversation.AppendVideos(response, rec.YoutubeLinks)
		}
		ret = append(ret, conversation.Message{
			ID:        messageID(username, page, key, conversation.RoleAssistant),
			Role:      conversation.RoleAssistant,
			Content:   response,
			Timestamp: rec.Timestamp.Time,
			Mode:      mode,
			Page:      page,
		})
	}
	return ret, nil
}

// responseContent turns a stored response into message content. Strings are
// used verbatim, block arrays use the block payload convention, lesson
// objects contribute their text.
func responseContent(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, errors.Wrap(err, "invalid response string")
		}
		return s, strings.TrimSpace(s) != "", nil

	case '[':
		var blocks []json.RawMessage
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return "", false, errors.Wrap(err, "invalid response blocks")
		}
		if len(blocks) == 0 {
			return "", false, nil
		}
		encoded, err := conversation.EncodeBlocks(blocks)
		if err != nil {
			return "", false, err
		}
		return encoded, true, nil

	case '{':
		var lesson api.QueryResponse
		if err := json.Unmarshal(raw, &lesson); err == nil {
			if text := lesson.Text(); text != "" {
				return text, true, nil
			}
		}
		var generated api.GenerateResponse
		if err := json.Unmarshal(raw, &generated); err == nil && len(generated.Blocks) > 0 {
			encoded, err := conversation.EncodeBlocks(generated.Blocks)
			if err != nil {
				return "", false, err
			}
			return encoded, true, nil
		}
		return "", false, errors.New("unrecognized response object")
	}

	return "", false, errors.Errorf("unsupported response payload %.20q", string(raw))
}

func pageID(username string, page int) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s/page/%d", username, page))).String()
}

func messageID(username string, page int, key string, role conversation.Role) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s/page/%d/%s/%s", username, page, key, role))).String()
}
