package orchestrator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/helpers"
)

// runGeneral issues one query and appends exactly one assistant message, the
// answer or the failure notice.
func (o *Orchestrator) runGeneral(ctx context.Context, req request, result *TurnResult) {
	content := o.failureNotice

	resp, err := o.queryService(ctx, req)
	if err != nil {
		result.PrimaryErr = err
		log.Warn().Err(err).Str("conversation_id", req.conversationID).Msg("query failed, using fallback notice")
	} else {
		content = resp.Text()
	}

	result.AssistantMessageID = o.appendAssistant(req, content, true)
	result.BackendID = req.backendID
}

func (o *Orchestrator) queryService(ctx context.Context, req request) (*api.QueryResponse, error) {
	if o.query == nil {
		return nil, errors.New("no query service configured")
	}
	q := api.QueryRequest{
		UserID: req.username,
		Query:  req.text,
		Mode:   string(req.mode),
		Page:   req.page,
		Lang:   o.lang,
		ChatID: helpers.NonEmptyPointer(req.backendID),
	}
	return o.query.Query(ctx, q)
}
