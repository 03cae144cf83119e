package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mailagent/internal/gmailc"
	"mailagent/internal/model"
	"mailagent/internal/responder"
	"mailagent/internal/store"
	"mailagent/internal/syncer"
)

// probeTimeout bounds the connectivity checks behind /api/status.
const probeTimeout = 10 * time.Second

// MailboxSender is the mailbox capability the handlers need beyond sync.
type MailboxSender interface {
	SendReply(ctx context.Context, to, subject, body, inReplyTo string) (string, error)
	MarkRead(ctx context.Context, id string) error
	CheckConnection(ctx context.Context) error
}

// InferenceVerifier probes the model server for the status endpoint.
type InferenceVerifier interface {
	Verify(ctx context.Context) (string, error)
}

// Handlers serves the produced HTTP surface.
type Handlers struct {
	store     *store.Store
	orch      *syncer.Orchestrator
	generator *responder.Generator
	mailbox   MailboxSender
	inference InferenceVerifier
	variants  int
	log       *slog.Logger

	// bgCtx scopes background historical syncs to the server lifetime
	// so shutdown cancels them.
	bgCtx context.Context
}

// NewHandlers creates the handler set.
func NewHandlers(
	bgCtx context.Context,
	st *store.Store,
	orch *syncer.Orchestrator,
	generator *responder.Generator,
	mailbox MailboxSender,
	inference InferenceVerifier,
	variants int,
	log *slog.Logger,
) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		store:     st,
		orch:      orch,
		generator: generator,
		mailbox:   mailbox,
		inference: inference,
		variants:  variants,
		log:       log,
		bgCtx:     bgCtx,
	}
}

// Status reports mailbox and model-server connectivity.
func (h *Handlers) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	resp := gin.H{"status": "ok"}
	gmailOK, llmOK := true, true

	if err := h.mailbox.CheckConnection(ctx); err != nil {
		gmailOK = false
		resp["error"] = "gmail: " + err.Error()
		h.log.Warn("gmail connectivity check failed", "error", err)
	}

	modelName, err := h.inference.Verify(ctx)
	if err != nil {
		llmOK = false
		if _, set := resp["error"]; !set {
			resp["error"] = "llm: " + err.Error()
		}
		h.log.Warn("llm connectivity check failed", "error", err)
	}

	switch {
	case gmailOK && llmOK:
		resp["status"] = "ok"
	case gmailOK || llmOK:
		resp["status"] = "degraded"
	default:
		resp["status"] = "error"
	}
	resp["gmail_connected"] = gmailOK
	resp["llm_connected"] = llmOK
	if modelName != "" {
		resp["model"] = modelName
	}

	c.JSON(http.StatusOK, resp)
}

type syncRequest struct {
	MaxResults int64 `json:"max_results"`
	Classify   *bool `json:"classify"`
}

// Sync runs an incremental sync within the request lifetime.
func (h *Handlers) Sync(c *gin.Context) {
	req := syncRequest{MaxResults: 50}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MaxResults < 1 || req.MaxResults > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_results must be between 1 and 100"})
		return
	}
	classify := req.Classify == nil || *req.Classify

	report, err := h.orch.SyncRecent(c.Request.Context(), req.MaxResults, classify)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gmailc.ErrAuth) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error(), "report": report})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "report": report})
}

type historicalSyncRequest struct {
	DaysBack int   `json:"days_back"`
	Classify *bool `json:"classify"`
}

// SyncHistorical starts a background historical sync. Historical windows
// can hold far more messages than a recent sync, so the run is detached
// from the request and tied to the server lifetime instead.
func (h *Handlers) SyncHistorical(c *gin.Context) {
	req := historicalSyncRequest{DaysBack: 30}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DaysBack < 1 || req.DaysBack > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days_back must be between 1 and 365"})
		return
	}
	classify := req.Classify == nil || *req.Classify

	go func() {
		if _, err := h.orch.SyncHistorical(h.bgCtx, req.DaysBack, classify); err != nil {
			h.log.Error("historical sync failed", "error", err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"status": "started", "message": "historical sync running in background"})
}

// ListEmails returns stored messages matching the query filters.
func (h *Handlers) ListEmails(c *gin.Context) {
	filter := store.Filter{
		Status:     model.Status(c.Query("status")),
		Importance: model.Importance(c.Query("importance")),
		Category:   model.Category(c.Query("category")),
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	messages, err := h.store.ListMessages(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.log.Error("list emails failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"emails": messages, "count": len(messages)})
}

// GetEmail returns one stored message.
func (h *Handlers) GetEmail(c *gin.Context) {
	msg, err := h.store.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// GetResponses returns the drafts for a message, generating a fresh
// variant set on first access.
func (h *Handlers) GetResponses(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	drafts, err := h.store.GetDrafts(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(drafts) > 0 {
		c.JSON(http.StatusOK, gin.H{"email_id": id, "responses": drafts})
		return
	}

	msg, err := h.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	drafts, err = h.generator.Generate(ctx, msg, h.variants)
	if err != nil {
		h.log.Error("response generation failed", "id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SaveDrafts(ctx, id, drafts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"email_id": id, "responses": drafts})
}

type sendRequest struct {
	DraftID   string `json:"draft_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	InReplyTo string `json:"in_reply_to"`
}

// Send sends a reply for a message and marks the draft sent. Missing
// to/subject fields are derived from the original message.
func (h *Handlers) Send(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var draft *model.Draft
	if req.DraftID != "" {
		draft, err = h.store.GetDraft(ctx, req.DraftID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "draft not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if req.Body == "" {
			req.Body = draft.Content
		}
	}
	if req.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body or draft_id is required"})
		return
	}

	to := req.To
	if to == "" {
		to = ReplyAddress(msg.FromAddr)
	}
	subject := req.Subject
	if subject == "" {
		subject = ReplySubject(msg.Subject)
	}

	sentID, err := h.mailbox.SendReply(ctx, to, subject, req.Body, req.InReplyTo)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gmailc.ErrAuth) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if draft != nil {
		if err := h.store.MarkSent(ctx, draft.ID); err != nil {
			h.log.Error("failed to mark draft sent", "draft_id", draft.ID, "error", err)
		}
	}
	if err := h.mailbox.MarkRead(ctx, id); err != nil {
		h.log.Warn("failed to mark message read in mailbox", "id", id, "error", err)
	}
	if err := h.store.UpdateStatus(ctx, id, model.StatusRead); err != nil {
		h.log.Warn("failed to update stored status", "id", id, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent", "message_id": sentID})
}

type improveRequest struct {
	Draft    string `json:"draft" binding:"required"`
	Feedback string `json:"feedback" binding:"required"`
}

// Improve revises a draft with user feedback. The result is appended as
// a new improved draft; the original is left untouched, preserving
// history.
func (h *Handlers) Improve(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req improveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	improved, err := h.generator.Improve(ctx, msg, req.Draft, req.Feedback)
	if err != nil {
		h.log.Error("improve failed", "id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	drafts := []model.Draft{{MessageID: id, Tone: model.ToneImproved, Content: improved}}
	if err := h.store.SaveDrafts(ctx, id, drafts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"improved": improved, "draft": drafts[0]})
}

type preferenceRequest struct {
	Value string `json:"value" binding:"required"`
}

// SetPreference stores one user preference under the key path parameter.
func (h *Handlers) SetPreference(c *gin.Context) {
	key := c.Param("key")

	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SetPreference(c.Request.Context(), key, req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "key": key, "value": req.Value})
}

// GetPreference returns a stored preference. A missing key answers with
// the optional default query parameter instead of failing.
func (h *Handlers) GetPreference(c *gin.Context) {
	key := c.Param("key")

	value, err := h.store.GetPreference(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		value = c.Query("default")
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// Stats returns aggregate mailbox counts.
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
