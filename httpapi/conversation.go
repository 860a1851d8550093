package httpapi

import (
	"net/http"

	"github.com/smallnest/graphrag/conversation"
	"github.com/smallnest/graphrag/model"
)

// handleChat implements POST /conversation/chat, the single entry point
// into the turn-based conversation engine (spec §6, §4.8).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string `json:"session_id"`
		Message        string `json:"message"`
		SelectedOption string `json:"selected_option"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	result, err := s.chat.Chat(r.Context(), conversation.Turn{
		SessionID: req.SessionID, Message: req.Message, SelectedOption: req.SelectedOption,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.sessions.Reset(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleFlowOverview implements GET /conversation/flow: the full
// authored graph, read back for the flow-authoring UI (spec §6).
func (s *Server) handleFlowOverview(w http.ResponseWriter, r *http.Request) {
	intents, err := s.flow.ListAllIntents(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	conditions, err := s.flow.ListConditions(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	actions, err := s.flow.ListActions(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	edges, err := s.flow.ListEdges(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"intents": intents, "conditions": conditions, "actions": actions, "edges": edges,
	})
}

func (s *Server) handleFlowSaveIntent(w http.ResponseWriter, r *http.Request) {
	var in model.Intent
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, "invalid intent body")
		return
	}
	if err := s.flow.SaveIntent(r.Context(), &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleFlowGetIntent(w http.ResponseWriter, r *http.Request) {
	in, err := s.flow.GetIntent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleFlowDeleteIntent(w http.ResponseWriter, r *http.Request) {
	if err := s.flow.DeleteIntent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleFlowSaveCondition(w http.ResponseWriter, r *http.Request) {
	var c model.Condition
	if err := decodeJSON(r, &c); err != nil {
		badRequest(w, "invalid condition body")
		return
	}
	if err := s.flow.SaveCondition(r.Context(), &c); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleFlowGetCondition(w http.ResponseWriter, r *http.Request) {
	c, err := s.flow.GetCondition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleFlowDeleteCondition(w http.ResponseWriter, r *http.Request) {
	if err := s.flow.DeleteCondition(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleFlowSaveAction(w http.ResponseWriter, r *http.Request) {
	var a model.Action
	if err := decodeJSON(r, &a); err != nil {
		badRequest(w, "invalid action body")
		return
	}
	if err := s.flow.SaveAction(r.Context(), &a); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleFlowGetAction(w http.ResponseWriter, r *http.Request) {
	a, err := s.flow.GetAction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleFlowDeleteAction(w http.ResponseWriter, r *http.Request) {
	if err := s.flow.DeleteAction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleFlowSaveEdge(w http.ResponseWriter, r *http.Request) {
	var e model.FlowEdge
	if err := decodeJSON(r, &e); err != nil {
		badRequest(w, "invalid edge body")
		return
	}
	if err := s.flow.SaveEdge(r.Context(), &e); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleFlowSeed implements POST /conversation/flow/seed: loads the
// canonical product-selection example flow so a fresh deployment has
// something to converse about immediately (spec §6).
func (s *Server) handleFlowSeed(w http.ResponseWriter, r *http.Request) {
	if err := seedProductSelectionFlow(r.Context(), s.flow); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}
