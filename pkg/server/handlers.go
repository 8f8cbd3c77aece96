package server

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/alumnium-hq/alumnium/pkg/axtree"
	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
	"github.com/alumnium-hq/alumnium/pkg/session"
)

// toolNamePattern matches the PascalCaseTool convention for client-supplied
// tool schemas.
var toolNamePattern = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*Tool$`)

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body", err.Error())
		return false
	}
	return true
}

// scopeTree narrows a tree to a previously located area. A zero areaID
// means the whole tree.
func scopeTree(w http.ResponseWriter, tree *axtree.Tree, areaID int) (*axtree.Tree, bool) {
	if areaID == 0 {
		return tree, true
	}
	scoped, err := tree.ScopeToArea(areaID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Unknown area", err.Error())
		return nil, false
	}
	return scoped, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) *session.Session {
	id := chi.URLParam(r, "id")
	sess, err := s.manager.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found", "")
		return nil
	}
	return sess
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		APIVersion: APIVersion,
		Status:     "healthy",
		Model:      s.cfg.LLM.Model.String(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	provider, err := config.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid provider", err.Error())
		return
	}
	platform, err := axtree.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid platform", err.Error())
		return
	}

	tools := make([]llms.ToolDefinition, 0, len(req.Tools))
	for _, t := range req.Tools {
		if !toolNamePattern.MatchString(t.Function.Name) {
			writeError(w, http.StatusUnprocessableEntity, "Invalid tool name",
				"tool names must be PascalCase ending in Tool, got "+t.Function.Name)
			return
		}
		tools = append(tools, llms.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	planner := true
	if req.Planner != nil {
		planner = *req.Planner
	}

	sess, err := s.manager.Create(config.NewModel(provider, req.Name), platform, planner, tools)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session", err.Error())
		return
	}

	s.logger.Info("Session created", "session_id", sess.ID(), "model", sess.Model(), "platform", req.Platform)
	writeJSON(w, http.StatusOK, createSessionResponse{APIVersion: APIVersion, SessionID: sess.ID()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.manager.Delete(id) {
		writeError(w, http.StatusNotFound, "Session not found", "")
		return
	}
	s.logger.Info("Session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	stats := sess.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		APIVersion: APIVersion,
		Total:      usageStats(stats.Total),
		Cache:      usageStats(stats.Cache),
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	var req planRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing goal", "")
		return
	}

	// With the planner off the tree is never consulted, so skip parsing it.
	treeXML := ""
	if sess.PlannerEnabled() {
		tree, err := sess.ProcessTree(req.AccessibilityTree)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to plan actions", err.Error())
			return
		}
		tree, ok := scopeTree(w, tree, req.AreaID)
		if !ok {
			return
		}
		treeXML = tree.Render()
	}

	explanation, steps, err := sess.Plan(r.Context(), req.Goal, treeXML)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to plan actions", err.Error())
		return
	}
	if steps == nil {
		steps = []string{}
	}
	writeJSON(w, http.StatusOK, planResponse{APIVersion: APIVersion, Explanation: explanation, Steps: steps})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	var req stepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing goal", "")
		return
	}

	tree, err := sess.ProcessTree(req.AccessibilityTree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to execute step", err.Error())
		return
	}
	tree, ok := scopeTree(w, tree, req.AreaID)
	if !ok {
		return
	}

	explanation, calls, err := sess.ExecuteStep(r.Context(), req.Goal, req.Step, tree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to execute step", err.Error())
		return
	}

	actions := make([]actionModel, 0, len(calls))
	for _, call := range calls {
		actions = append(actions, actionModel{Tool: call.Tool, Args: call.Args})
	}
	writeJSON(w, http.StatusOK, stepResponse{APIVersion: APIVersion, Explanation: explanation, Actions: actions})
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	var req statementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Statement == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing statement", "")
		return
	}

	tree, err := sess.ProcessTree(req.AccessibilityTree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve information", err.Error())
		return
	}
	tree, ok := scopeTree(w, tree, req.AreaID)
	if !ok {
		return
	}

	explanation, value, err := sess.Retrieve(r.Context(), req.Statement, tree.Render(), req.Title, req.URL, req.Screenshot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve information", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statementResponse{APIVersion: APIVersion, Result: value, Explanation: explanation})
}

func (s *Server) handleArea(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	var req areaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing description", "")
		return
	}

	tree, err := sess.ProcessTree(req.AccessibilityTree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to find area", err.Error())
		return
	}

	area, err := sess.FindArea(r.Context(), req.Description, tree.Render())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to find area", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, areaResponse{APIVersion: APIVersion, ID: area.ID, Explanation: area.Explanation})
}

func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	var req areaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing description", "")
		return
	}

	tree, err := sess.ProcessTree(req.AccessibilityTree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to find elements", err.Error())
		return
	}
	tree, ok := scopeTree(w, tree, req.AreaID)
	if !ok {
		return
	}

	located, err := sess.FindElements(r.Context(), req.Description, tree.Render())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to find elements", err.Error())
		return
	}

	elements := make([]elementModel, 0, len(located))
	for _, l := range located {
		elements = append(elements, elementModel{ID: l.ID, Explanation: l.Explanation})
	}
	writeJSON(w, http.StatusOK, elementsResponse{APIVersion: APIVersion, Elements: elements})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	var req changesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	before, err := sess.ProcessTree(req.Before.Tree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to analyze changes", err.Error())
		return
	}
	after, err := sess.ProcessTree(req.After.Tree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to analyze changes", err.Error())
		return
	}

	summary, err := sess.AnalyzeChanges(r.Context(), axtree.Diff(before, after))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to analyze changes", err.Error())
		return
	}

	result := summary
	switch {
	case req.Before.URL == "" && req.After.URL == "":
		// No URL context, report the tree changes alone.
	case req.Before.URL == req.After.URL:
		result = "URL did not change. " + summary
	default:
		result = "URL changed to " + req.After.URL + ". " + summary
	}
	writeJSON(w, http.StatusOK, changesResponse{APIVersion: APIVersion, Result: result})
}

func (s *Server) handleAddExample(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	var req exampleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing goal", "")
		return
	}
	if len(req.Actions) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "Missing actions", "")
		return
	}

	sess.AddExample(req.Goal, req.Actions)
	writeJSON(w, http.StatusOK, ackResponse{APIVersion: APIVersion, Success: true, Message: "Example added"})
}

func (s *Server) handleClearExamples(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	sess.ClearExamples()
	writeJSON(w, http.StatusOK, ackResponse{APIVersion: APIVersion, Success: true, Message: "Examples cleared"})
}

func (s *Server) handleSaveCache(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	if err := sess.SaveCache(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save cache", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{APIVersion: APIVersion, Success: true, Message: "Cache saved"})
}

func (s *Server) handleDiscardCache(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	sess.DiscardCache()
	writeJSON(w, http.StatusOK, ackResponse{APIVersion: APIVersion, Success: true, Message: "Cache discarded"})
}
