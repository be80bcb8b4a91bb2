package router

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/config"
	"github.com/relaymesh/aiproxy/internal/dialect"
	"github.com/relaymesh/aiproxy/internal/pool"
	"github.com/relaymesh/aiproxy/internal/quota"
	"github.com/relaymesh/aiproxy/internal/store"
	"github.com/relaymesh/aiproxy/internal/upstream"
)

// messagesHandler serves every client-facing completion endpoint
// (/v1/chat/completions, /v1/messages, /v1/models/:model::generateContent
// and its streaming counterpart): detect dialect, enforce quota, acquire a
// credential, dispatch upstream, translate the result back. Grounded on the
// teacher's internal/server/handlers/chat.go request lifecycle, generalized
// from "always Anthropic in, always Google out" to three dialects in and
// either family out (spec.md §4.5 dispatch decision).
type messagesHandler struct {
	db         *store.Store
	pools      *pool.Engine
	governor   *quota.Governor
	dispatcher *upstream.Dispatcher
	cfg        *config.Config
}

func newMessagesHandler(db *store.Store, pools *pool.Engine, governor *quota.Governor, dispatcher *upstream.Dispatcher, cfg *config.Config) *messagesHandler {
	return &messagesHandler{db: db, pools: pools, governor: governor, dispatcher: dispatcher, cfg: cfg}
}

func (h *messagesHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	user := userFromContext(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apierr.Server("reading request body: %v", err))
		return
	}

	d, canonical, err := dialect.ParseRequest(body)
	if err != nil {
		h.respondDialectError(c, d, apierr.New(apierr.KindServer, http.StatusBadRequest, err.Error(), false, nil))
		return
	}
	pathModel, pathVerb := splitModelAction(c.Param("action"))
	canonical.Model, canonical.Stream = normalizeModel(canonical.Model, pathModel, canonical.Stream, pathVerb)

	bypass := bypassesQuota(user, apiKeyFromContext(c))

	holdings, err := h.holdingsFor(ctx, user)
	if err != nil {
		h.respondDialectError(c, d, apierr.Server("loading credential holdings: %v", err))
		return
	}
	if err := h.checkAccess(user, canonical.Model, holdings, bypass); err != nil {
		h.respondDialectError(c, d, err)
		return
	}
	if err := h.governor.Check(ctx, user.ID, holdings, bypass); err != nil {
		h.respondDialectError(c, d, apierr.As(err))
		return
	}

	requireV3 := isV3Model(canonical.Model)
	family := store.FamilyCloudCode
	antigravity := isAntigravityModel(canonical.Model)
	if antigravity {
		family = store.FamilyAntigravity
		if err := h.governor.CheckAntigravity(ctx, user, canonical.Model, bypass); err != nil {
			h.respondDialectError(c, d, apierr.As(err))
			return
		}
	}

	lockTTL := config.NonStreamLockTTL
	if canonical.Stream {
		lockTTL = config.StreamLockTTL
	}

	held, err := h.pools.Acquire(ctx, family, requireV3, lockTTL, user.ID)
	if err != nil {
		h.respondDialectError(c, d, apierr.As(err))
		return
	}

	wire := dialect.CanonicalToGeminiWire(canonical)
	payload := upstream.BuildPayload(canonical, wire, held.Credential.ProjectID)

	if canonical.Stream {
		h.stream(c, d, canonical, held, payload, user.ID, antigravity)
		return
	}
	h.sendOnce(c, d, canonical, held, payload, user.ID, antigravity)
}

func (h *messagesHandler) sendOnce(c *gin.Context, d dialect.Dialect, canonical *dialect.CanonicalRequest, held *pool.Held, payload *upstream.Payload, userID string, antigravity bool) {
	ctx := c.Request.Context()
	defer held.Release(ctx)

	respBody, err := h.dispatcher.Send(ctx, held, payload)
	if err != nil {
		h.handleUpstreamErr(ctx, held, err)
		h.respondDialectError(c, d, apierr.As(err))
		return
	}

	resp, err := dialect.ParseGoogleResponse(respBody, canonical.Model)
	if err != nil {
		respondError(c, apierr.Server("parsing upstream response: %v", err))
		return
	}
	resp.ID = "msg-" + uuid.New().String()

	_ = h.pools.OnSuccess(ctx, held.Credential)
	h.recordSuccess(ctx, userID, canonical.Model, resp.OutputTokens, antigravity)
	_ = h.db.InsertUsageLog(ctx, store.UsageLogEntry{
		UserID: userID, CredentialID: held.Credential.ID, Model: canonical.Model,
		Dialect: string(d), StatusCode: http.StatusOK, InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens,
	})

	c.JSON(http.StatusOK, dialect.RenderResponse(d, resp))
}

// recordSuccess accounts a completed call against the user's/global daily
// counters (spec.md §4.2 "increment the user's today_used ...") and, for
// Antigravity-dispatched models, also the per-model requests/tokens
// counters the Antigravity quota mode enforces against.
func (h *messagesHandler) recordSuccess(ctx context.Context, userID, model string, completionTokens int, antigravity bool) {
	if err := h.governor.Record(ctx, userID, model); err != nil {
		_ = err // best-effort accounting, never fails the request (spec.md §7)
	}
	if err := h.db.IncrTodayUsed(ctx, userID, 1); err != nil {
		_ = err
	}
	if antigravity {
		if err := h.governor.RecordAntigravity(ctx, userID, model, completionTokens); err != nil {
			_ = err
		}
	}
}

func (h *messagesHandler) stream(c *gin.Context, d dialect.Dialect, canonical *dialect.CanonicalRequest, held *pool.Held, payload *upstream.Payload, userID string, antigravity bool) {
	ctx := c.Request.Context()
	defer held.Release(ctx)

	frames, errs, err := h.dispatcher.Stream(ctx, held, payload)
	if err != nil {
		h.handleUpstreamErr(ctx, held, err)
		h.respondDialectError(c, d, apierr.As(err))
		return
	}

	sw, err := newSSEWriter(c.Writer)
	if err != nil {
		respondError(c, apierr.Server("streaming not supported: %v", err))
		return
	}
	sw.setHeaders()
	c.Writer.WriteHeader(http.StatusOK)

	state := dialect.NewStreamState(d, "msg-"+uuid.New().String(), canonical.Model)
	var streamErr error

drain:
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				break drain
			}
			events, err := state.Ingest(frame.Data)
			if err != nil {
				continue
			}
			for _, ev := range events {
				_ = sw.writeEvent(ev.Name, ev.Data)
			}
		case e, ok := <-errs:
			if ok && e != nil {
				streamErr = e
			}
		case <-ctx.Done():
			break drain
		}
	}

	if streamErr != nil {
		h.handleUpstreamErr(ctx, held, streamErr)
		_ = sw.writeError(string(apierr.As(streamErr).Kind), apierr.As(streamErr).Message)
	} else {
		_ = h.pools.OnSuccess(ctx, held.Credential)
		h.recordSuccess(ctx, userID, canonical.Model, state.OutputTokens(), antigravity)
		_ = h.db.InsertUsageLog(ctx, store.UsageLogEntry{
			UserID: userID, CredentialID: held.Credential.ID, Model: canonical.Model,
			Dialect: string(d), StatusCode: http.StatusOK,
		})
	}

	writeStreamTerminator(sw, d)
}

// writeStreamTerminator always emits the dialect's terminator, on both the
// success and error paths (spec.md §8 testable property 5).
func writeStreamTerminator(sw *sseWriter, d dialect.Dialect) {
	if d == dialect.DialectAnthropic {
		_ = sw.writeEvent("message_stop", map[string]interface{}{"type": "message_stop"})
		return
	}
	_, _ = io.WriteString(sw.w, "data: [DONE]\n\n")
	sw.flusher.Flush()
}

// handleUpstreamErr applies the credential state transition that goes with
// a classified failure (spec.md §4.4 error classification table): 429 cools
// the credential, auth/permission failures accrue a strike.
func (h *messagesHandler) handleUpstreamErr(ctx context.Context, held *pool.Held, err error) {
	ae := apierr.As(err)
	switch ae.Kind {
	case apierr.KindRateLimit:
		_ = h.pools.MarkCoolingFor(ctx, held.Credential.ID, 0)
	case apierr.KindAuthentication, apierr.KindPermission:
		if ae.Metadata["strike"] == true {
			h.pools.RecordStrike(ctx, held.Credential, ae)
		}
	}
}

func (h *messagesHandler) CountTokens(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apierr.Server("reading request body: %v", err))
		return
	}
	_, canonical, err := dialect.ParseRequest(body)
	if err != nil {
		respondError(c, apierr.New(apierr.KindServer, http.StatusBadRequest, err.Error(), false, nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"input_tokens": estimateTokens(canonical)})
}

// estimateTokens is a rough whitespace-based estimate, not a tokenizer call
// upstream -- good enough for clients that only use count_tokens to decide
// whether to trim context, the same approximate role the teacher's
// /v1/messages/count_tokens stub plays.
func estimateTokens(r *dialect.CanonicalRequest) int {
	n := len(strings.Fields(r.System)) + 2
	for _, m := range r.Messages {
		for _, part := range m.Content {
			n += len(strings.Fields(part.Text))
		}
	}
	return n
}

func (h *messagesHandler) holdingsFor(ctx context.Context, user *store.User) (quota.Holdings, error) {
	creds, err := h.db.ListCredentialsByOwner(ctx, user.ID)
	if err != nil {
		return quota.Holdings{}, err
	}
	var h2 quota.Holdings
	for _, cred := range creds {
		if cred.Status != store.StatusActive {
			continue
		}
		h2.ActiveCredentials++
		if cred.V3Capable {
			h2.HasV3CapableActive = true
		}
	}
	return h2, nil
}

// checkAccess implements spec.md §4.5's access-control rules beyond
// authentication: V3 model gating and CLI-shared-mode credential
// contribution requirements. bypass exempts an admin-role user or an
// ADMIN-type API key from both (spec.md §3.1/§3.2).
func (h *messagesHandler) checkAccess(user *store.User, model string, holdings quota.Holdings, bypass bool) error {
	if isV3Model(model) && !bypass && !holdings.HasV3CapableActive && !h.cfg.EnableGemini3OpenAccess {
		return apierr.Permission("model %s requires a contributed V3-capable credential", model)
	}
	if !h.cfg.CLISharedMode && !bypass && holdings.ActiveCredentials == 0 {
		return apierr.Permission("CLI-shared mode is off; contribute at least one active credential")
	}
	return nil
}

func (h *messagesHandler) respondDialectError(c *gin.Context, d dialect.Dialect, err *apierr.Error) {
	switch d {
	case dialect.DialectAnthropic:
		c.AbortWithStatusJSON(err.HTTPStatus, apierr.RenderAnthropic(err))
	case dialect.DialectGemini:
		c.AbortWithStatusJSON(err.HTTPStatus, apierr.RenderGemini(err))
	default:
		c.AbortWithStatusJSON(err.HTTPStatus, apierr.RenderOpenAI(err))
	}
}

// isV3Model reports whether model belongs to the Gemini-3 family that
// requires a V3-capable credential (spec.md §Glossary "V3").
func isV3Model(model string) bool {
	return strings.Contains(model, "gemini-3")
}

// isAntigravityModel reports whether model should dispatch through the
// Antigravity upstream family rather than Cloud Code (spec.md §4.5
// "Antigravity-tagged models").
func isAntigravityModel(model string) bool {
	return strings.HasPrefix(model, "antigravity/") || strings.Contains(model, "antigravity")
}

// splitModelAction splits a single path segment carrying an embedded colon
// action, e.g. "gemini-2.5-flash:streamGenerateContent" (spec.md §6's
// `/v1/models/:model::generateContent` family of routes), into the bare
// model id and the verb after the colon. Grounded on the pack's
// CLIProxyAPI gin server, which registers these as a single ":action"
// wildcard and splits on ":" inside the handler rather than trying to get
// gin to match an embedded colon as a route segment boundary.
func splitModelAction(action string) (model, verb string) {
	if idx := strings.LastIndex(action, ":"); idx >= 0 {
		return action[:idx], action[idx+1:]
	}
	return action, ""
}

// normalizeModel strips client-hint suffixes to recover the real model name
// and a fakeStream flag (spec.md §4.5 "Model normalization"), and falls
// back to a path parameter for Gemini's native :generateContent routes.
func normalizeModel(model, pathModel string, stream bool, path string) (string, bool) {
	if model == "" {
		model = pathModel
	}
	if strings.HasSuffix(path, "streamGenerateContent") {
		stream = true
	}
	real, fakeStream := stripModelHints(model)
	return real, stream || fakeStream
}

// stripModelHints removes the bracketed and CJK fake/real-stream suffixes
// some clients append to a model name as an out-of-band hint, returning the
// bare model id and whether a fake-stream hint was present.
func stripModelHints(model string) (string, bool) {
	fakeStream := false
	if idx := strings.Index(model, "-["); idx >= 0 {
		model = model[:idx]
	}
	for _, suffix := range []string{"-假流", "-真流"} {
		if strings.HasSuffix(model, suffix) {
			fakeStream = suffix == "-假流"
			model = strings.TrimSuffix(model, suffix)
		}
	}
	return model, fakeStream
}
