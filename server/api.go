package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/monitor"
	"github.com/mattermost/mattermost-plugin-sbmq/server/store"
)

const defaultProcessedWindowMinutes = 60

type systemHandler func(w http.ResponseWriter, r *http.Request, system *monitor.System)

// ServeHTTP handles HTTP requests for the plugin.
// The root URL is currently <siteUrl>/plugins/com.mattermost.plugin-sbmq/api/v1/.
func (p *Plugin) ServeHTTP(c *plugin.Context, w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

func (p *Plugin) initRouter() *mux.Router {
	router := mux.NewRouter()

	// Middleware to require that the user is logged in
	router.Use(p.MattermostAuthorizationRequired)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/adapters", p.handleListAdapters).Methods(http.MethodGet)
	apiRouter.HandleFunc("/status", p.handleStatus).Methods(http.MethodGet)
	apiRouter.Handle("/metrics", p.metrics.Handler()).Methods(http.MethodGet)

	apiRouter.HandleFunc("/items", p.withSystem(p.handleListItems)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/items/processed", p.withSystem(p.handleRetrieveProcessed)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/items/processed", p.withSystem(p.handleClearProcessed)).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/monitor/{category}", p.withSystem(p.handleSetWatched)).Methods(http.MethodPut)
	apiRouter.HandleFunc("/monitoring/{action}", p.withSystem(p.handleMonitoring)).Methods(http.MethodPost)

	apiRouter.HandleFunc("/messages", p.withSystem(p.handlePurgeAll)).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/messages/{id}", p.withSystem(p.handlePurgeMessage)).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/messages/{id}/requeue", p.withSystem(p.handleRequeueMessage)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/errors", p.withSystem(p.handlePurgeAllErrors)).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/errors/{queue}", p.withSystem(p.handlePurgeErrors)).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/errors/{queue}/requeue", p.withSystem(p.handleRequeueErrors)).Methods(http.MethodPost)

	apiRouter.HandleFunc("/commands", p.withSystem(p.handleListCommands)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/commands", p.withSystem(p.handleSendCommand)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/subscriptions", p.withSystem(p.handleSubscriptions)).Methods(http.MethodGet)

	return router
}

func (p *Plugin) MattermostAuthorizationRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("Mattermost-User-ID")
		if userID == "" {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withSystem answers 503 while no service bus is configured.
func (p *Plugin) withSystem(handler systemHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		system := p.getSystem()
		if system == nil {
			http.Error(w, "No service bus is configured", http.StatusServiceUnavailable)
			return
		}
		handler(w, r, system)
	}
}

type adaptersResponse struct {
	Available []backend.Descriptor `json:"available"`
	Active    *backend.Descriptor  `json:"active,omitempty"`
}

func (p *Plugin) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	response := adaptersResponse{Available: p.registry.ListAvailable()}
	if system := p.getSystem(); system != nil {
		active := system.Descriptor()
		response.Active = &active
	}
	p.writeJSON(w, http.StatusOK, response)
}

type statusResponse struct {
	Configured bool              `json:"configured"`
	ServiceBus string            `json:"serviceBus,omitempty"`
	State      string            `json:"state"`
	Watched    []string          `json:"watched"`
	Counts     map[string]uint32 `json:"counts"`
	Items      int               `json:"items"`
	Filter     string            `json:"filter,omitempty"`
	Health     *store.Status     `json:"health,omitempty"`
}

func (p *Plugin) handleStatus(w http.ResponseWriter, r *http.Request) {
	system := p.getSystem()
	if system == nil {
		p.writeJSON(w, http.StatusOK, statusResponse{
			State:   monitor.StateStopped.String(),
			Watched: []string{},
			Counts:  map[string]uint32{},
		})
		return
	}

	descriptor := system.Descriptor()
	response := statusResponse{
		Configured: true,
		ServiceBus: descriptor.String(),
		State:      system.MonitoringState().String(),
		Watched:    []string{},
		Counts:     map[string]uint32{},
		Items:      len(system.Items()),
		Filter:     system.Filter(),
	}
	for _, category := range system.WatchedCategories() {
		response.Watched = append(response.Watched, category.String())
		response.Counts[category.String()] = system.UnprocessedCount(category)
	}

	health, err := store.NewStatusStore(p.API, descriptor.Name).Get()
	if err != nil {
		p.API.LogWarn("Failed to read poll status", "error", err.Error())
	} else {
		response.Health = &health
	}

	p.writeJSON(w, http.StatusOK, response)
}

func (p *Plugin) handleListItems(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	if r.URL.Query().Has("filter") {
		if filter := r.URL.Query().Get("filter"); filter != "" {
			system.FilterItems(filter)
		} else {
			system.ClearFilter()
		}
	}

	p.writeJSON(w, http.StatusOK, system.Items())
}

func (p *Plugin) handleRetrieveProcessed(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	minutes := defaultProcessedWindowMinutes
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "minutes must be a positive integer", http.StatusBadRequest)
			return
		}
		minutes = parsed
	}

	if err := system.RetrieveProcessedItems(r.Context(), time.Duration(minutes)*time.Minute); err != nil {
		p.writeError(w, err)
		return
	}

	p.writeJSON(w, http.StatusOK, system.Items())
}

func (p *Plugin) handleClearProcessed(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	removed := system.ClearProcessedItems()
	p.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

type watchRequest struct {
	Watched bool `json:"watched"`
}

func (p *Plugin) handleSetWatched(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	category, err := backend.ParseCategory(mux.Vars(r)["category"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var request watchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	system.SetWatched(category, request.Watched)
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleMonitoring(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	switch action := mux.Vars(r)["action"]; action {
	case "start":
		if err := system.StartMonitoring(); err != nil {
			p.writeError(w, err)
			return
		}
	case "stop":
		system.StopMonitoring()
	case "pause":
		system.PauseMonitoring()
	case "resume":
		system.ResumeMonitoring()
	default:
		http.Error(w, "unknown monitoring action: "+action, http.StatusBadRequest)
		return
	}

	p.writeJSON(w, http.StatusOK, map[string]string{"state": system.MonitoringState().String()})
}

// Destructive operations run behind the mutation gate and report their outcome
// through the notification channel, so the handlers answer 202 right away.

func (p *Plugin) handlePurgeAll(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	p.accepted(w, system, func() { system.PurgeAllMessages() })
}

func (p *Plugin) handlePurgeMessage(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	item, ok := system.FindItem(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}
	p.accepted(w, system, func() { system.PurgeMessage(item) })
}

func (p *Plugin) handleRequeueMessage(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	item, ok := system.FindItem(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}
	if item.Queue.Category != backend.Error {
		http.Error(w, "only error messages can be requeued", http.StatusBadRequest)
		return
	}
	p.accepted(w, system, func() { system.MoveErrorMessageToOriginQueue(item) })
}

func (p *Plugin) handlePurgeAllErrors(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	p.accepted(w, system, func() { system.PurgeErrorAllMessages() })
}

func (p *Plugin) handlePurgeErrors(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	queue, ok := errorQueue(system, mux.Vars(r)["queue"])
	if !ok {
		http.Error(w, "unknown error queue", http.StatusNotFound)
		return
	}
	p.accepted(w, system, func() { system.PurgeErrorMessages(queue) })
}

func (p *Plugin) handleRequeueErrors(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	queue, ok := errorQueue(system, mux.Vars(r)["queue"])
	if !ok {
		http.Error(w, "unknown error queue", http.StatusNotFound)
		return
	}
	p.accepted(w, system, func() { system.MoveAllErrorMessagesToOriginQueue(queue) })
}

// accepted starts a gated operation. It refuses with 409 while monitoring is
// stopped, since the gate would skip the operation anyway.
func (p *Plugin) accepted(w http.ResponseWriter, system *monitor.System, start func()) {
	if system.MonitoringState() == monitor.StateStopped {
		http.Error(w, "monitoring is not running", http.StatusConflict)
		return
	}
	start()
	w.WriteHeader(http.StatusAccepted)
}

func errorQueue(system *monitor.System, name string) (string, bool) {
	for _, queue := range backend.QueuesOf(system.Queues(), backend.Error) {
		if queue == name {
			return queue, true
		}
	}
	return "", false
}

type commandsResponse struct {
	Supported bool     `json:"supported"`
	Commands  []string `json:"commands"`
}

func (p *Plugin) handleListCommands(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	p.writeJSON(w, http.StatusOK, commandsResponse{
		Supported: system.CanSendCommand(),
		Commands:  system.AvailableCommands(),
	})
}

type sendCommandRequest struct {
	Queue       string `json:"queue"`
	DisplayName string `json:"displayName"`
	Payload     string `json:"payload"`
}

func (p *Plugin) handleSendCommand(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	var request sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if request.Queue == "" {
		http.Error(w, "missing required field 'queue'", http.StatusBadRequest)
		return
	}

	if err := system.SendCommand(r.Context(), request.Queue, request.DisplayName, request.Payload); err != nil {
		p.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleSubscriptions(w http.ResponseWriter, r *http.Request, system *monitor.System) {
	subscriptions, err := system.MessageSubscriptions(r.Context())
	if err != nil {
		p.writeError(w, err)
		return
	}
	p.writeJSON(w, http.StatusOK, subscriptions)
}

func (p *Plugin) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		p.API.LogWarn("Failed to write response", "error", err.Error())
	}
}

// writeError maps engine errors onto HTTP status codes.
func (p *Plugin) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, backend.ErrCapabilityNotSupported):
		status = http.StatusNotImplemented
	case errors.Is(err, backend.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
