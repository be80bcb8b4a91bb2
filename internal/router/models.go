package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/aiproxy/internal/dialect"
)

// modelsHandler lists the models this proxy serves, mirroring the
// teacher's ModelsHandler (internal/server/handlers/models.go) shape but
// returning a static catalog instead of querying a selected account's
// upstream quota, since model availability here is a proxy-level policy
// decision, not a property of any one credential. The representation is
// dialect-aware (spec.md §6: `?format=gemini|anthropic` or
// dialect-identifying headers), since /v1/models, /v1beta/models, and
// /googleai/models all route through it with different expected shapes.
type modelsHandler struct{}

func newModelsHandler() *modelsHandler { return &modelsHandler{} }

var servedModels = []string{
	"claude-sonnet-4-5",
	"claude-opus-4-1",
	"gemini-2.5-pro",
	"gemini-2.5-flash",
}

// dialectForModelsList picks the response shape for a GET models-list
// request, which (unlike the completion endpoints) carries no JSON body
// for dialect.Detect to inspect. ?format= is checked first so a client can
// force a representation; otherwise the same header heuristics §4.3 uses
// for chat completions apply.
func dialectForModelsList(r *http.Request) dialect.Dialect {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "gemini":
		return dialect.DialectGemini
	case "anthropic":
		return dialect.DialectAnthropic
	case "openai":
		return dialect.DialectOpenAI
	}
	if r.Header.Get("x-goog-api-key") != "" || strings.Contains(strings.ToLower(r.Header.Get("User-Agent")), "gemini") {
		return dialect.DialectGemini
	}
	if r.Header.Get("x-api-key") != "" && r.Header.Get("anthropic-version") != "" {
		return dialect.DialectAnthropic
	}
	return dialect.DialectOpenAI
}

func (h *modelsHandler) List(c *gin.Context) {
	switch dialectForModelsList(c.Request) {
	case dialect.DialectGemini:
		c.JSON(http.StatusOK, gin.H{"models": geminiModelList()})
	case dialect.DialectAnthropic:
		c.JSON(http.StatusOK, gin.H{"data": anthropicModelList(), "has_more": false})
	default:
		c.JSON(http.StatusOK, gin.H{"object": "list", "data": openAIModelList()})
	}
}

func openAIModelList() []gin.H {
	data := make([]gin.H, 0, len(servedModels))
	for _, m := range servedModels {
		data = append(data, gin.H{"id": m, "object": "model", "owned_by": "aiproxy"})
	}
	return data
}

func geminiModelList() []gin.H {
	data := make([]gin.H, 0, len(servedModels))
	for _, m := range servedModels {
		data = append(data, gin.H{
			"name":                       "models/" + m,
			"displayName":                m,
			"supportedGenerationMethods": []string{"generateContent", "streamGenerateContent"},
		})
	}
	return data
}

func anthropicModelList() []gin.H {
	data := make([]gin.H, 0, len(servedModels))
	for _, m := range servedModels {
		data = append(data, gin.H{"id": m, "type": "model", "display_name": m})
	}
	return data
}
