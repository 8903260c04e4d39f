package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/model-router/internal/middleware"
	"github.com/tributary-ai/model-router/internal/providers"
	"github.com/tributary-ai/model-router/internal/types"
)

// AutoModel asks the router to pick the model
const AutoModel = "auto"

var errNoCandidates = errors.New("no invocable model")

// attempts records how a completion was served
type attempts struct {
	count    int
	failed   []string
	model    string
	provider string
	latency  time.Duration
}

// handleChatCompletion routes the conversation, forwards it to the selected
// model and walks the fallback chain when a provider call fails
func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req types.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", "messages must not be empty")
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if req.ID == "" {
		req.ID = "chatcmpl-" + requestID
	}
	req.Timestamp = time.Now()

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	routingReq := &types.RoutingRequest{
		Messages:    req.Messages,
		Preferences: req.Preferences,
	}
	if req.Model != "" && req.Model != AutoModel {
		routingReq.RequestedModel = req.Model
	}

	result, err := s.deps.Router.Route(ctx, routingReq)
	if err != nil {
		s.logger.WithError(err).WithField("request_id", requestID).Error("Routing failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "routing_error", fmt.Sprintf("Routing failed: %v", err))
		return
	}
	if result.SelectedProvider == "" && routingReq.RequestedModel != "" {
		s.writeErrorResponse(w, http.StatusNotFound, "model_not_found", fmt.Sprintf("Model %s not found", routingReq.RequestedModel))
		return
	}

	resp, log, err := s.invoke(ctx, &req, result)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id":    requestID,
			"failed_models": log.failed,
		}).Error("Chat completion failed")
		statusCode, errType := completionErrorStatus(ctx, err)
		s.writeErrorResponse(w, statusCode, errType,
			fmt.Sprintf("Completion failed after %d attempt(s) [%s]: %v", log.count, strings.Join(log.failed, ", "), err))
		return
	}

	resp.RouterMetadata = &types.RouterMetadata{
		Provider:        log.provider,
		Model:           log.model,
		Strategy:        result.Strategy,
		RoutingReason:   result.Reason,
		Confidence:      result.Confidence,
		EstimatedCost:   result.EstimatedCost,
		ProcessingTime:  time.Since(start),
		RequestID:       requestID,
		ProviderLatency: log.latency,
		AttemptCount:    log.count,
		FailedModels:    log.failed,
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// invoke tries the selected model, then each fallback in order. Each call is
// tracked against the provider's live health.
func (s *Server) invoke(ctx context.Context, req *types.ChatRequest, result *types.RoutingResult) (*types.ChatResponse, *attempts, error) {
	log := &attempts{}
	candidates := append([]string{result.SelectedModel}, result.FallbackChain...)
	seen := make(map[string]bool, len(candidates))
	lastErr := errNoCandidates

	for i, modelID := range candidates {
		if seen[modelID] {
			continue
		}
		seen[modelID] = true

		providerID := result.SelectedProvider
		if i > 0 {
			entry, err := s.deps.Catalog.Get(modelID)
			if err != nil {
				log.failed = append(log.failed, modelID)
				lastErr = err
				continue
			}
			providerID = entry.ProviderID
		}

		client, err := s.deps.Providers.Get(providerID)
		if err != nil {
			log.failed = append(log.failed, modelID)
			lastErr = err
			continue
		}

		callReq := *req
		callReq.Model = modelID
		log.count++

		done := s.deps.Health.Track(providerID)
		callStart := time.Now()
		resp, err := client.ChatCompletion(ctx, &callReq)
		elapsed := time.Since(callStart)
		done(err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveProvider(providerID, modelID, elapsed, err)
		}

		if err == nil {
			log.model = modelID
			log.provider = providerID
			log.latency = elapsed
			return resp, log, nil
		}

		log.failed = append(log.failed, modelID)
		lastErr = err
		s.logger.WithError(err).WithFields(logrus.Fields{
			"model":    modelID,
			"provider": providerID,
			"attempt":  log.count,
		}).Warn("Model call failed")

		if ctx.Err() != nil || !providers.Retryable(err) {
			break
		}
	}

	return nil, log, lastErr
}

func completionErrorStatus(ctx context.Context, err error) (int, string) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout_error"
	case !providers.Retryable(err):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, providers.ErrProviderNotFound), errors.Is(err, errNoCandidates):
		return http.StatusServiceUnavailable, "provider_unavailable"
	default:
		return http.StatusBadGateway, "provider_error"
	}
}
