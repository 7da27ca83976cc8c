package routes

import (
	"fmt"
	"net/http"
	"time"
)

// tasksSSE streams a change event whenever the replica mutates, so the
// frontend can refetch instead of polling.
func (wr *WebRouter) tasksSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel := wr.notifier.Subscribe()
	defer cancel()

	// Initial event so clients render immediately.
	fmt.Fprint(w, "event: tasks\ndata: changed\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-updates:
			fmt.Fprint(w, "event: tasks\ndata: changed\n\n")
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
