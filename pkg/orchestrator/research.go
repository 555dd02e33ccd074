package orchestrator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
)

// runResearch fans out to content generation and video recommendation.
//
// The assistant message is appended as soon as content generation resolves,
// whatever the video call is doing. The video result is then appended to that
// same message, keyed by its id. Both calls start immediately.
func (o *Orchestrator) runResearch(ctx context.Context, req request, result *TurnResult) {
	o.dispatcher.Dispatch(conversation.SetLoadingLabel(o.loadingLabel))

	// carries the assistant message id from the content side to the video side
	messageIDs := make(chan string, 1)

	var (
		assistantID string
		backendID   string
		primaryErr  error
	)

	g := errgroup.Group{}

	g.Go(func() (err error) {
		defer close(messageIDs)
		defer recoverInto(&err, "content generation")

		content := o.researchFailureNotice
		resp, genErr := o.generate(ctx, req)
		if genErr != nil {
			primaryErr = genErr
			log.Warn().Err(genErr).Str("conversation_id", req.conversationID).Msg("content generation failed, using fallback notice")
		} else {
			backendID = o.commitBackendID(req.conversationID, resp.ChatID)
			blocks := resp.Blocks
			if blocks == nil {
				blocks = []api.Block{}
			}
			encoded, encErr := conversation.EncodeBlocks(blocks)
			if encErr != nil {
				primaryErr = encErr
				log.Error().Err(encErr).Str("conversation_id", req.conversationID).Msg("could not encode generated blocks")
			} else {
				content = encoded
			}
		}

		assistantID = o.appendAssistant(req, content, false)
		messageIDs <- assistantID
		return nil
	})

	var (
		videoCount int
		videoErr   error
	)

	g.Go(func() (err error) {
		defer recoverInto(&err, "video enrichment")

		videos, recErr := o.recommend(ctx, req)
		if recErr != nil {
			videoErr = recErr
			log.Warn().Err(recErr).Str("conversation_id", req.conversationID).Msg("video recommendation failed")
		}

		messageID, ok := <-messageIDs
		if !ok || messageID == "" {
			return nil
		}

		if c, ok := o.dispatcher.State().Conversation(req.conversationID); ok && c.BackendID != "" && len(videos) > 0 {
			o.persistEnrichment(ctx, req, c.BackendID, videos)
		}

		o.dispatcher.Dispatch(conversation.AppendMessageContent(req.conversationID, messageID, conversation.VideoSection(videos)))
		o.dispatcher.Dispatch(conversation.MarkResearchModeUsed(req.conversationID))
		videoCount = len(videos)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("conversation_id", req.conversationID).Msg("research fan-out failed")
	}

	result.AssistantMessageID = assistantID
	result.PrimaryErr = primaryErr
	result.VideoErr = videoErr
	result.VideoCount = videoCount
	result.BackendID = backendID
	if result.BackendID == "" {
		result.BackendID = req.backendID
	}
}

func (o *Orchestrator) generate(ctx context.Context, req request) (*api.GenerateResponse, error) {
	if o.content == nil {
		return nil, errors.New("no content generation service configured")
	}
	resp, err := o.content.Generate(ctx, api.GenerateRequest{
		UserID:    req.username,
		Query:     req.text,
		Page:      req.page,
		MaxImages: o.maxImages,
		Lang:      o.lang,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &api.GenerateResponse{}, nil
	}
	return resp, nil
}

// recommend treats "not found" as an empty list.
func (o *Orchestrator) recommend(ctx context.Context, req request) ([]api.Video, error) {
	if o.videos == nil {
		return nil, errors.New("no video service configured")
	}
	resp, err := o.videos.RecommendVideos(ctx, req.text)
	if err != nil {
		if api.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return resp.Videos, nil
}

// persistEnrichment stores the videos server-side without blocking the turn.
// It outlives the turn; failures are only logged.
func (o *Orchestrator) persistEnrichment(ctx context.Context, req request, backendID string, videos []api.Video) {
	if o.enrichment == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	payload := api.EnrichmentRequest{
		ChatID:       backendID,
		YoutubeLinks: append([]api.Video(nil), videos...),
		Page:         req.page,
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("recovered from panic while saving enrichment")
			}
		}()
		if err := o.enrichment.SaveEnrichment(ctx, payload); err != nil {
			log.Warn().Err(err).
				Str("conversation_id", req.conversationID).
				Str("backend_id", backendID).
				Msg("could not save video enrichment")
			return
		}
		log.Debug().Str("backend_id", backendID).Int("videos", len(payload.YoutubeLinks)).Msg("video enrichment saved")
	}()
}

func recoverInto(err *error, what string) {
	if r := recover(); r != nil {
		*err = errors.Errorf("%s panicked: %v", what, r)
	}
}
