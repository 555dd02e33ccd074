package api

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// QueryRequest is sent to the general query service.
type QueryRequest struct {
	UserID string  `json:"user_id" jsonschema:"required"`
	Query  string  `json:"query" jsonschema:"required"`
	Mode   string  `json:"mode,omitempty"`
	Page   int     `json:"page"`
	ChatID *string `json:"chat_id,omitempty"`
	Lang   string  `json:"lang,omitempty"`
}

type Quiz struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// PageContent is one page of a lesson.
type PageContent struct {
	Script       string   `json:"script"`
	Audio        *string  `json:"audio,omitempty"`
	ImagePrompts []string `json:"image_prompts,omitempty"`
	Quizzes      []Quiz   `json:"quizzes,omitempty"`
}

// QueryResponse is tolerant of missing fields; older deployments answered with
// a bare response/answer string instead of a lesson.
type QueryResponse struct {
	Source   string        `json:"source,omitempty"`
	Language string        `json:"language,omitempty"`
	Lesson   []PageContent `json:"lesson,omitempty"`
	Response string        `json:"response,omitempty"`
	Answer   string        `json:"answer,omitempty"`
}

// Text extracts the displayable answer.
func (r *QueryResponse) Text() string {
	if r == nil {
		return ""
	}
	for _, p := range r.Lesson {
		if strings.TrimSpace(p.Script) != "" {
			return p.Script
		}
	}
	if r.Response != "" {
		return r.Response
	}
	return r.Answer
}

// GenerateRequest is sent to the content generation service.
type GenerateRequest struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query" jsonschema:"required"`
	Page      int    `json:"page"`
	MaxImages int    `json:"max_images"`
	Lang      string `json:"lang,omitempty"`
}

// Block is one element of a generated tutorial.
type Block struct {
	Type     string `json:"type" jsonschema:"enum=text,enum=image"`
	Content  string `json:"content,omitempty"`
	Alt      string `json:"alt,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	DataURL  string `json:"data_url,omitempty"`
}

type GenerateResponse struct {
	Source   string  `json:"source,omitempty"`
	Language string  `json:"language,omitempty"`
	Blocks   []Block `json:"blocks,omitempty"`
	ChatID   string  `json:"chat_id,omitempty"`
}

// Video is a recommended video card.
type Video struct {
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Link      string `json:"link" yaml:"link"`
	Thumbnail string `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Views     any    `json:"views,omitempty" yaml:"views,omitempty"`
	Channel   string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Published string `json:"published,omitempty" yaml:"published,omitempty"`
}

type VideoResponse struct {
	Query  string  `json:"query,omitempty"`
	Count  int     `json:"count,omitempty"`
	Videos []Video `json:"videos,omitempty"`
}

// EnrichmentRequest stores video links against a server-side chat record.
type EnrichmentRequest struct {
	ChatID       string  `json:"chat_id" jsonschema:"required"`
	YoutubeLinks []Video `json:"youtube_links"`
	Page         int     `json:"page"`
}

// HistoryResponse keeps pages and records raw so that one malformed entry
// does not fail the whole feed; see Pages and Records.
type HistoryResponse struct {
	UserID  string            `json:"user_id,omitempty"`
	History []json.RawMessage `json:"history,omitempty"`
}

type HistoryPage struct {
	Page    int               `json:"page"`
	Preview string            `json:"preview,omitempty"`
	Chats   []json.RawMessage `json:"chats"`
}

// Pages decodes every page entry, collecting the ones that fail.
func (r *HistoryResponse) Pages() ([]HistoryPage, []error) {
	if r == nil {
		return nil, nil
	}
	pages := make([]HistoryPage, 0, len(r.History))
	var errs []error
	for i, raw := range r.History {
		var p HistoryPage
		if err := json.Unmarshal(raw, &p); err != nil {
			errs = append(errs, errors.Wrapf(err, "history entry %d", i))
			continue
		}
		pages = append(pages, p)
	}
	return pages, errs
}

// Records decodes the records of a page, collecting the ones that fail.
func (p *HistoryPage) Records() ([]HistoryRecord, []error) {
	records := make([]HistoryRecord, 0, len(p.Chats))
	var errs []error
	for i, raw := range p.Chats {
		var rec HistoryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			errs = append(errs, errors.Wrapf(err, "page %d record %d", p.Page, i))
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// HistoryRecord is one persisted query/response pair. Response is kept raw
// because it is either a string or a block array.
type HistoryRecord struct {
	ID                    string          `json:"_id,omitempty"`
	Timestamp             Timestamp       `json:"timestamp"`
	ChatID                string          `json:"chat_id,omitempty"`
	Query                 string          `json:"query,omitempty"`
	Response              json.RawMessage `json:"response,omitempty"`
	YoutubeLinks          []Video         `json:"youtube_links,omitempty"`
	GeneratedMCQQuestions json.RawMessage `json:"generated_mcq_questions,omitempty"`
	LLMModel              string          `json:"LLM_model,omitempty"`
}

type CreateUserRequest struct {
	Name string `json:"name" jsonschema:"required"`
}

type CreateUserResponse struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

type QuizRequest struct {
	UserID       string  `json:"user_id" jsonschema:"required"`
	NumQuestions int     `json:"num_questions,omitempty"`
	Difficulty   string  `json:"difficulty,omitempty" jsonschema:"enum=easy,enum=medium,enum=hard"`
	ChatID       *string `json:"chat_id,omitempty"`
}

type MCQItem struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

type QuizResponse struct {
	UserID string    `json:"user_id,omitempty"`
	MCQs   []MCQItem `json:"mcqs"`
	Source string    `json:"source,omitempty"`
}

// Timestamp accepts the date formats the backend emits (ISO without zone from
// python datetimes, RFC3339, mongo extended JSON dates, epoch millis).
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if b[0] == '{' {
		var ext struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(b, &ext); err != nil {
			return errors.Wrap(err, "invalid timestamp object")
		}
		if len(ext.Date) == 0 {
			return errors.Errorf("timestamp object without $date: %s", string(b))
		}
		return t.UnmarshalJSON(ext.Date)
	}

	var raw string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return errors.Wrap(err, "invalid timestamp string")
		}
	} else {
		raw = string(b)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return errors.Wrapf(err, "could not parse timestamp %q", raw)
	}
	t.Time = parsed.UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}
