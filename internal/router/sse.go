package router

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter streams Server-Sent Events to a client. Adapted near-verbatim
// from the teacher's internal/server/sse/writer.go -- this part of the
// teacher needed no domain-specific change, only relocation alongside the
// handler that uses it.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("router: streaming not supported by response writer")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (sw *sseWriter) setHeaders() {
	sw.w.Header().Set("Content-Type", "text/event-stream")
	sw.w.Header().Set("Cache-Control", "no-cache")
	sw.w.Header().Set("Connection", "keep-alive")
	sw.w.Header().Set("X-Accel-Buffering", "no")
}

func (sw *sseWriter) writeEvent(eventType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if eventType == "" {
		_, err = fmt.Fprintf(sw.w, "data: %s\n\n", jsonData)
	} else {
		_, err = fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	}
	if err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

func (sw *sseWriter) writeError(errorType, message string) error {
	return sw.writeEvent("error", map[string]interface{}{
		"type": "error",
		"error": map[string]string{"type": errorType, "message": message},
	})
}
