package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/store"
)

// adminHandler serves the admin-only read-only visibility endpoints, a
// feature supplemented into SPEC_FULL.md from the teacher's webui admin
// surface (internal/webui's account/usage dashboards) scaled down to a
// read-only API since this proxy's admin surface is explicitly out of
// scope for the full account-management UI spec.md §6 carries.
type adminHandler struct {
	db *store.Store
}

func newAdminHandler(db *store.Store) *adminHandler {
	return &adminHandler{db: db}
}

func (h *adminHandler) UserUsage(c *gin.Context) {
	userID := c.Param("id")
	if _, err := h.db.GetUserByID(c.Request.Context(), userID); err == store.ErrNotFound {
		respondError(c, notFoundError())
		return
	} else if err != nil {
		respondError(c, apierr.Server("looking up user: %v", err))
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	summary, err := h.db.UsageSince(c.Request.Context(), userID, since)
	if err != nil {
		respondError(c, apierr.Server("loading usage: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":       userID,
		"since":         since.UTC().Format(time.RFC3339),
		"request_count": summary.RequestCount,
		"input_tokens":  summary.InputTokens,
		"output_tokens": summary.OutputTokens,
	})
}

func (h *adminHandler) ListCredentials(c *gin.Context) {
	families := []store.CredentialFamily{store.FamilyCloudCode, store.FamilyAntigravity}
	out := make([]gin.H, 0)
	for _, family := range families {
		creds, err := h.db.ListCredentialsByFamily(c.Request.Context(), family)
		if err != nil {
			respondError(c, apierr.Server("loading credentials: %v", err))
			return
		}
		for _, cred := range creds {
			out = append(out, gin.H{
				"id":            cred.ID,
				"owner_user_id": cred.OwnerUserID,
				"family":        cred.Family,
				"email":         cred.Email,
				"v3_capable":    cred.V3Capable,
				"status":        cred.Status,
				"strike_count":  cred.StrikeCount,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"credentials": out})
}
