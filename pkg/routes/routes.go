package routes

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/skillmesh/mesh-node/pkg/models"
	"github.com/skillmesh/mesh-node/pkg/store"
)

// WebRouter serves the node's local HTTP API. It is a thin JSON shim over the
// MeshNode interface; all state lives behind the node's event loop.
type WebRouter struct {
	node     models.MeshNode
	notifier *TaskNotifier
}

// NewWebRouter creates a router for the given node.
func NewWebRouter(node models.MeshNode, notifier *TaskNotifier) *WebRouter {
	return &WebRouter{node: node, notifier: notifier}
}

// Initialize builds the route table and serves on listenAddr. Blocks for the
// lifetime of the process.
func (wr *WebRouter) Initialize(listenAddr string) error {
	return http.ListenAndServe(listenAddr, wr.Handler())
}

// Handler returns the fully wired HTTP handler.
func (wr *WebRouter) Handler() http.Handler {
	myRouter := mux.NewRouter().StrictSlash(true)

	myRouter.HandleFunc("/api/profile", wr.getProfile).Methods("GET")
	myRouter.HandleFunc("/api/profile", wr.updateProfile).Methods("PUT")
	myRouter.HandleFunc("/api/profile/availability", wr.setAvailability).Methods("POST")
	myRouter.HandleFunc("/api/tasks", wr.listTasks).Methods("GET")
	myRouter.HandleFunc("/api/tasks", wr.createTask).Methods("POST")
	myRouter.HandleFunc("/api/tasks/claim", wr.claimTask).Methods("POST")
	myRouter.HandleFunc("/api/tasks/complete", wr.completeTask).Methods("POST")
	myRouter.HandleFunc("/api/tasks/events", wr.tasksSSE).Methods("GET")
	myRouter.HandleFunc("/api/tasks/{id}/contact", wr.getContact).Methods("GET")
	myRouter.HandleFunc("/api/chat/{taskId}", wr.getChatLog).Methods("GET")
	myRouter.HandleFunc("/api/chat", wr.postChatMessage).Methods("POST")
	myRouter.HandleFunc("/api/mesh/stats", wr.meshStats).Methods("GET")

	myRouter.Use(handlers.ProxyHeaders)
	myRouter.Use(RequestLogger)
	h := handlers.RecoveryHandler()

	return h(myRouter)
}

// RequestLogger logs every API hit.
func RequestLogger(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		slog.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

// writeNodeError maps node errors onto HTTP statuses.
func writeNodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, store.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "error": err.Error()})
	default:
		slog.Error("internal error handling request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal error"})
	}
}

func (wr *WebRouter) getProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wr.node.Profile())
}

type updateProfileRequest struct {
	Name         string `json:"name"`
	Profession   string `json:"profession"`
	Location     string `json:"location"`
	MobileNumber string `json:"mobileNumber"`
}

func (wr *WebRouter) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	profile, err := wr.node.UpdateProfile(req.Name, req.Profession, req.Location, req.MobileNumber)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type availabilityRequest struct {
	IsAvailable bool `json:"isAvailable"`
}

func (wr *WebRouter) setAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	profile, err := wr.node.SetAvailability(req.IsAvailable)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (wr *WebRouter) listTasks(w http.ResponseWriter, r *http.Request) {
	status := models.TaskStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, wr.node.ListTasks(status))
}

func (wr *WebRouter) createTask(w http.ResponseWriter, r *http.Request) {
	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if task.Title == "" {
		http.Error(w, "Title required", http.StatusBadRequest)
		return
	}
	created, err := wr.node.CreateTask(&task)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type taskActionRequest struct {
	TaskID string `json:"taskId"`
}

type taskActionResponse struct {
	Success bool         `json:"success"`
	Task    *models.Task `json:"task,omitempty"`
}

func (wr *WebRouter) claimTask(w http.ResponseWriter, r *http.Request) {
	var req taskActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	task, err := wr.node.ClaimTask(req.TaskID)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskActionResponse{Success: true, Task: task})
}

func (wr *WebRouter) completeTask(w http.ResponseWriter, r *http.Request) {
	var req taskActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	task, err := wr.node.CompleteTask(req.TaskID)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskActionResponse{Success: true, Task: task})
}

type contactResponse struct {
	MobileNumber string `json:"mobileNumber,omitempty"`
	Status       string `json:"status,omitempty"`
}

func (wr *WebRouter) getContact(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	number, requested, err := wr.node.GetContact(taskID)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	if requested {
		writeJSON(w, http.StatusAccepted, contactResponse{Status: "requested"})
		return
	}
	writeJSON(w, http.StatusOK, contactResponse{MobileNumber: number})
}

func (wr *WebRouter) getChatLog(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]
	writeJSON(w, http.StatusOK, wr.node.ChatLog(taskID))
}

type postChatRequest struct {
	TaskID string `json:"taskId"`
	Text   string `json:"text"`
}

func (wr *WebRouter) postChatMessage(w http.ResponseWriter, r *http.Request) {
	var req postChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" || req.Text == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	msg, err := wr.node.PostChatMessage(req.TaskID, req.Text)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

type meshStatsResponse struct {
	PeerCount           int                    `json:"peerCount"`
	ActiveProfessionals []*models.PeerPresence `json:"activeProfessionals"`
}

func (wr *WebRouter) meshStats(w http.ResponseWriter, r *http.Request) {
	peers := wr.node.ActivePeers()
	writeJSON(w, http.StatusOK, meshStatsResponse{
		PeerCount:           len(peers),
		ActiveProfessionals: peers,
	})
}
