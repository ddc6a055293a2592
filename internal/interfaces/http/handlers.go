// Package http exposes the engine over REST for the deck UI.
package http

import (
	"encoding/json"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"conceptdeck-engine/internal/application/commands"
	"conceptdeck-engine/internal/application/coordinator"
	"conceptdeck-engine/internal/domain/category"
	"conceptdeck-engine/internal/domain/concept"
	appErrors "conceptdeck-engine/internal/errors"
	"conceptdeck-engine/internal/interfaces/ws"
	"conceptdeck-engine/pkg/api"
)

// Handler carries the dependencies shared by every route.
type Handler struct {
	engine *coordinator.Coordinator
	hub    *ws.Hub
	logger *zap.Logger
}

// NewHandler creates the route handler set. hub may be nil when the event
// stream is not served.
func NewHandler(engine *coordinator.Coordinator, hub *ws.Hub, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, hub: hub, logger: logger}
}

// ===== READ SIDE =====

func (h *Handler) getHierarchy(w http.ResponseWriter, r *http.Request) {
	hierarchy := h.engine.Hierarchy()

	names := make([]string, 0, len(hierarchy))
	total := 0
	for name, root := range hierarchy {
		names = append(names, name)
		total += root.ConceptCount
	}
	sort.Strings(names)

	roots := make([]api.CategoryView, 0, len(names))
	for _, name := range names {
		roots = append(roots, categoryView(hierarchy[name]))
	}

	api.Success(w, http.StatusOK, api.HierarchyResponse{
		Roots:         roots,
		SelectedPath:  h.engine.SelectedPath(),
		TotalConcepts: total,
	})
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	status := api.EngineStatusResponse{
		Busy:          h.engine.Busy(),
		Creating:      h.engine.IsCreating(),
		Renaming:      h.engine.IsRenaming(),
		Moving:        h.engine.IsMoving(),
		Transferring:  h.engine.IsTransferring(),
		LastOperation: operationView(h.engine.LastOperation()),
	}
	if h.hub != nil {
		counters := h.hub.Metrics()
		status.Events = &api.EventStreamStats{
			Subscribers:   h.hub.ConnectionCount(),
			EventsSent:    counters.MessagesSent,
			EventsDropped: counters.MessagesFailed,
		}
	}
	api.Success(w, http.StatusOK, status)
}

func (h *Handler) getOperation(w http.ResponseWriter, r *http.Request) {
	snapshot := h.engine.LastOperation()
	if snapshot == nil {
		api.Error(w, http.StatusNotFound, "no operation has run yet")
		return
	}
	api.Success(w, http.StatusOK, operationView(snapshot))
}

// ===== MUTATIONS =====

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snapshot, err := h.engine.CreateCategory(r.Context(), commands.CreateCategoryCommand{
		ParentPath: req.ParentPath,
		Name:       req.Name,
		Mode:       commands.CreateMode(req.Mode),
		ConceptIDs: req.ConceptIDs,
	})
	h.respondOperation(w, snapshot, err, http.StatusCreated)
}

func (h *Handler) renameCategory(w http.ResponseWriter, r *http.Request) {
	var req api.RenameCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snapshot, err := h.engine.RenameCategory(r.Context(), commands.RenameCategoryCommand{
		Path:    req.Path,
		NewName: req.NewName,
	})
	h.respondOperation(w, snapshot, err, http.StatusOK)
}

func (h *Handler) moveCategory(w http.ResponseWriter, r *http.Request) {
	var req api.MoveCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snapshot, err := h.engine.MoveCategory(r.Context(), commands.MoveCategoryCommand{
		Path:          req.Path,
		NewParentPath: req.NewParentPath,
	})
	h.respondOperation(w, snapshot, err, http.StatusOK)
}

func (h *Handler) transferConcepts(w http.ResponseWriter, r *http.Request) {
	var req api.TransferConceptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snapshot, err := h.engine.TransferConcepts(r.Context(), commands.TransferConceptsCommand{
		ConceptIDs:      req.ConceptIDs,
		DestinationPath: req.DestinationPath,
	})
	h.respondOperation(w, snapshot, err, http.StatusOK)
}

func (h *Handler) cancelOperation(w http.ResponseWriter, r *http.Request) {
	h.engine.Cancel()
	api.Success(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.getHierarchy(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{"status": "healthy", "service": "conceptdeck-engine"})
}

// respondOperation writes the snapshot for a mutation request. Failed
// operations still carry a snapshot; the error decides the status code.
func (h *Handler) respondOperation(w http.ResponseWriter, snapshot *coordinator.OperationSnapshot, err error, okStatus int) {
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	api.Success(w, okStatus, operationView(snapshot))
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	code := string(appErrors.CodeOf(err))

	switch {
	case appErrors.CodeOf(err) == appErrors.CodeDecisionRequired:
		api.ErrorWithCode(w, http.StatusUnprocessableEntity, err.Error(), code)
	case appErrors.IsValidation(err):
		api.ErrorWithCode(w, http.StatusBadRequest, err.Error(), code)
	case appErrors.IsConflict(err):
		api.ErrorWithCode(w, http.StatusConflict, err.Error(), code)
	case appErrors.IsTimeout(err):
		api.ErrorWithCode(w, http.StatusGatewayTimeout, err.Error(), code)
	case appErrors.IsCancelled(err):
		api.ErrorWithCode(w, http.StatusConflict, err.Error(), code)
	case appErrors.TypeOf(err) == appErrors.ErrorTypeExternal:
		api.ErrorWithCode(w, http.StatusBadGateway, err.Error(), code)
	default:
		h.logger.Error("Internal error", zap.Error(err))
		api.Error(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

// ===== VIEW BUILDERS =====

func operationView(s *coordinator.OperationSnapshot) *api.OperationResponse {
	if s == nil {
		return nil
	}
	resp := &api.OperationResponse{
		ID:         s.ID,
		Kind:       string(s.Kind),
		Status:     string(s.Status),
		TargetPath: s.TargetPath,
		StartedAt:  s.StartedAt,
		Error:      s.Error,
	}
	if !s.FinishedAt.IsZero() {
		finished := s.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}

func categoryView(node *category.Node) api.CategoryView {
	view := api.CategoryView{
		Name:         node.Name,
		FullPath:     node.FullPath,
		ConceptCount: node.ConceptCount,
	}
	for _, c := range node.Concepts {
		view.Concepts = append(view.Concepts, conceptView(c))
	}
	for _, sub := range node.SortedSubcategories() {
		view.Subcategories = append(view.Subcategories, categoryView(sub))
	}
	return view
}

func conceptView(c *concept.Concept) api.ConceptView {
	return api.ConceptView{
		ID:            c.ID,
		Title:         c.Title,
		Category:      c.Category,
		Summary:       c.Summary,
		NeedsReview:   c.NeedsReview,
		IsPlaceholder: c.IsPlaceholder,
	}
}
