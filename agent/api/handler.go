package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/servicesaver/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	"github.com/tanpawarit/servicesaver/agent/intake"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

const (
	RunPath         = "/v1/negotiations/run"
	signatureHeader = "Upstash-Signature"
	maxBodyBytes    = 1 << 20

	failureWriteTimeout = 10 * time.Second
)

var errRunInFlight = errors.New("a negotiation is already running for this user")

type Extractor interface {
	Extract(ctx context.Context, req intake.Request) (intake.Extraction, error)
}

type Runner interface {
	Run(ctx context.Context, req orchestrator.RunRequest) (orchestrator.RunResult, error)
}

type RecordStore interface {
	Upsert(ctx context.Context, userID string, fields map[string]any) error
	Load(ctx context.Context, userID string) (*statex.Record, error)
	// ClaimRun reports false when runID was already claimed.
	ClaimRun(ctx context.Context, runID string) (bool, error)
	ReleaseRun(ctx context.Context, runID string) error
}

// Publisher hands a run job to the queue that calls RunPath back.
type Publisher interface {
	Publish(ctx context.Context, destination string, body any, dedupID string) (string, error)
}

type Verifier interface {
	Verify(signature string, body []byte, destination string) error
}

type Deps struct {
	Extractor Extractor
	Runner    Runner
	Store     RecordStore
	// Publisher and Verifier are optional. Without a publisher runs start
	// inline; without a verifier the run endpoint accepts unsigned jobs.
	Publisher Publisher
	Verifier  Verifier
}

type Config struct {
	PublicBaseURL string
	// BaseContext is the parent of background runs.
	BaseContext context.Context
}

// RunJob is the payload delivered to the run endpoint.
type RunJob struct {
	RunID   string                    `json:"run_id"`
	UserID  string                    `json:"user_id"`
	Profile contractx.CustomerProfile `json:"profile"`
}

type Handler struct {
	extractor Extractor
	runner    Runner
	store     RecordStore
	publisher Publisher
	verifier  Verifier

	runURL  string
	baseCtx context.Context
	guard   *runGuard
	wg      sync.WaitGroup
}

func New(deps Deps, cfg Config) (*Handler, error) {
	switch {
	case deps.Extractor == nil:
		return nil, errors.New("intake extractor is required")
	case deps.Runner == nil:
		return nil, errors.New("runner is required")
	case deps.Store == nil:
		return nil, errors.New("record store is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if deps.Publisher != nil && baseURL == "" {
		return nil, errors.New("public base url is required to publish run jobs")
	}
	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Handler{
		extractor: deps.Extractor,
		runner:    deps.Runner,
		store:     deps.Store,
		publisher: deps.Publisher,
		verifier:  deps.Verifier,
		runURL:    baseURL + RunPath,
		baseCtx:   baseCtx,
		guard:     newRunGuard(),
	}, nil
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("POST /v1/negotiations", h.startNegotiation)
	mux.HandleFunc("POST "+RunPath, h.runNegotiation)
	mux.HandleFunc("GET /v1/negotiations/{userID}", h.getNegotiation)
	return mux
}

// Wait blocks until every background run has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

type startRequest struct {
	UserID   string `json:"user_id"`
	Vertical string `json:"vertical"`
	Dialogue string `json:"dialogue"`
}

type startResponse struct {
	RunID     string `json:"run_id"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) startNegotiation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, statex.ErrInvalidUser)
		return
	}
	logger := log.With().Str("user_id", req.UserID).Str("vertical", req.Vertical).Logger()

	extraction, err := h.extractor.Extract(r.Context(), intake.Request{
		UserID:   req.UserID,
		Vertical: req.Vertical,
		Dialogue: req.Dialogue,
	})
	if err != nil {
		if errors.Is(err, intake.ErrEmptyDialogue) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		logger.Error().Err(err).Msg("intake extraction failed")
		writeError(w, http.StatusBadGateway, err)
		return
	}

	profile, err := extraction.Profile()
	if err != nil {
		var incomplete *contractx.IncompleteFieldsError
		if errors.As(err, &incomplete) {
			logger.Info().Strs("missing", incomplete.Missing).Msg("intake incomplete")
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Missing: incomplete.Missing})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if !h.guard.acquire(req.UserID) {
		writeError(w, http.StatusConflict, errRunInFlight)
		return
	}
	handedOff := false
	defer func() {
		if !handedOff {
			h.guard.release(req.UserID)
		}
	}()

	job := RunJob{RunID: uuid.NewString(), UserID: req.UserID, Profile: profile}
	if err := h.store.Upsert(r.Context(), req.UserID, map[string]any{
		statex.FieldCustomerInfo: profile,
		statex.FieldStatus:       statex.StatusStrategizing,
		statex.FieldRunID:        job.RunID,
		statex.FieldError:        "",
	}); err != nil {
		logger.Error().Err(err).Msg("persist customer info failed")
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	if h.publisher != nil {
		messageID, err := h.publisher.Publish(r.Context(), h.runURL, job, job.RunID)
		if err != nil {
			logger.Error().Err(err).Msg("publish run job failed")
			writeError(w, http.StatusBadGateway, err)
			return
		}
		logger.Info().Str("run_id", job.RunID).Str("message_id", messageID).Msg("run job published")
		writeJSON(w, http.StatusAccepted, startResponse{RunID: job.RunID, MessageID: messageID, Status: "queued"})
		return
	}

	handedOff = true
	h.launch(job)
	writeJSON(w, http.StatusAccepted, startResponse{RunID: job.RunID, Status: "running"})
}

func (h *Handler) runNegotiation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read request: %w", err))
		return
	}
	if h.verifier != nil {
		if err := h.verifier.Verify(r.Header.Get(signatureHeader), body, h.runURL); err != nil {
			log.Warn().Err(err).Msg("rejected run job")
			writeError(w, http.StatusUnauthorized, err)
			return
		}
	}

	var job RunJob
	if err := json.Unmarshal(body, &job); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode run job: %w", err))
		return
	}
	job.UserID = strings.TrimSpace(job.UserID)
	if job.UserID == "" {
		writeError(w, http.StatusBadRequest, statex.ErrInvalidUser)
		return
	}
	if !job.Profile.Complete {
		writeError(w, http.StatusUnprocessableEntity, contractx.ErrIntakeIncomplete)
		return
	}

	if strings.TrimSpace(job.RunID) == "" {
		writeError(w, http.StatusBadRequest, statex.ErrInvalidRunID)
		return
	}
	logger := log.With().Str("user_id", job.UserID).Str("run_id", job.RunID).Logger()

	claimed, err := h.store.ClaimRun(r.Context(), job.RunID)
	if err != nil {
		logger.Error().Err(err).Msg("claim run failed")
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !claimed {
		logger.Info().Msg("duplicate run delivery ignored")
		writeJSON(w, http.StatusOK, startResponse{RunID: job.RunID, Status: "duplicate"})
		return
	}

	if !h.guard.acquire(job.UserID) {
		if err := h.store.ReleaseRun(r.Context(), job.RunID); err != nil {
			logger.Warn().Err(err).Msg("release run claim failed")
		}
		writeError(w, http.StatusConflict, errRunInFlight)
		return
	}
	h.launch(job)
	writeJSON(w, http.StatusAccepted, startResponse{RunID: job.RunID, Status: "running"})
}

func (h *Handler) getNegotiation(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("userID"))
	record, err := h.store.Load(r.Context(), userID)
	switch {
	case errors.Is(err, statex.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, statex.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// launch runs job in the background. The caller must hold the user's guard;
// it is released when the run returns.
func (h *Handler) launch(job RunJob) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.guard.release(job.UserID)

		logger := log.With().Str("user_id", job.UserID).Str("run_id", job.RunID).Logger()
		logger.Info().Msg("negotiation started")

		res, err := h.runner.Run(h.baseCtx, orchestrator.RunRequest{UserID: job.UserID, Profile: job.Profile})
		if err != nil {
			logger.Error().Err(err).Msg("negotiation failed")
			h.recordFailure(job, err)
			return
		}
		logger.Info().
			Str("vertical", res.Vertical).
			Int("providers", res.Shortlist.Len()).
			Int("processed", res.Negotiation.Processed()).
			Msg("negotiation completed")
	}()
}

// recordFailure marks the user's record as failed. It also runs when the run
// was canceled by shutdown.
func (h *Handler) recordFailure(job RunJob, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.baseCtx), failureWriteTimeout)
	defer cancel()
	if err := h.store.Upsert(ctx, job.UserID, map[string]any{
		statex.FieldStatus: statex.StatusFailed,
		statex.FieldError:  runErr.Error(),
		statex.FieldRunID:  job.RunID,
	}); err != nil {
		log.Error().Err(err).Str("user_id", job.UserID).Str("run_id", job.RunID).Msg("persist run failure failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
