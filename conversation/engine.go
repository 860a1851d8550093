// Package conversation implements the turn-based conversation engine
// (C11): a fixed five-state machine — analyze -> check_conditions ->
// {clarify -> end | execute -> generate -> end | end} — run directly as a
// sequence of node calls. The state graph this drives never branches
// beyond that one conditional fork, so it is hand-written rather than
// built on a general-purpose graph-execution engine.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallnest/graphrag/flow"
	"github.com/smallnest/graphrag/llm"
	"github.com/smallnest/graphrag/model"
	"github.com/smallnest/graphrag/narrative"
	"github.com/smallnest/graphrag/search"
	"github.com/smallnest/graphrag/session"
)

// stateName identifies one of the engine's fixed states.
type stateName string

const (
	stateAnalyze         stateName = "analyze"
	stateCheckConditions stateName = "check_conditions"
	stateClarify         stateName = "clarify"
	stateExecute         stateName = "execute"
	stateGenerate        stateName = "generate"
	stateEnd             stateName = ""
)

// productLexicon maps a crude keyword to a document_context id — the
// "small lexicon of product keywords" of spec §4.8 analyze state.
type productLexicon map[string]string

// Turn is one call's input (spec §4.8).
type Turn struct {
	SessionID      string
	Message        string
	SelectedOption string
}

// Result is one call's output, covering both clarification and
// completed-answer shapes (spec §4.8 clarify/generate contracts).
type Result struct {
	SessionID    string
	NeedsInput   bool
	InputType    string
	Options      []string
	FinalAnswer  string
	GraphData    model.Subgraph
	Sources      []narrative.Source
	IsComplete   bool
	Error        string
}

// turnState is threaded through analyze/check_conditions/clarify/
// execute/generate as the machine runs one turn.
type turnState struct {
	sess      *model.Session
	turn      Turn
	result    Result
	intent    *model.Intent
	lexicon   productLexicon
	keywords  []string
	nextRoute string
}

// Engine runs one conversational turn at a time (spec §4.8).
type Engine struct {
	sessions session.Store
	flow     *flow.Store
	search   *search.Engine
	gen      *narrative.Generator
	llm      *llm.Client
	lexicon  productLexicon

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-session serialization (spec §5)

	// nodes maps each state to the function that runs it; next maps it to
	// the state to transition to. check_conditions is the only state whose
	// next state is decided at run time (via turnState.nextRoute), so it
	// has no entry in next and routeAfterConditions is consulted instead.
	nodes map[stateName]func(context.Context, *turnState) (*turnState, error)
	next  map[stateName]stateName
}

// New constructs an Engine and wires its fixed state machine.
func New(sessions session.Store, flowStore *flow.Store, searchEngine *search.Engine, gen *narrative.Generator, llmClient *llm.Client, lexicon map[string]string) (*Engine, error) {
	e := &Engine{
		sessions: sessions, flow: flowStore, search: searchEngine, gen: gen, llm: llmClient,
		lexicon: lexicon, locks: make(map[string]*sync.Mutex),
	}

	e.nodes = map[stateName]func(context.Context, *turnState) (*turnState, error){
		stateAnalyze:         e.nodeAnalyze,
		stateCheckConditions: e.nodeCheckConditions,
		stateClarify:         e.nodeClarify,
		stateExecute:         e.nodeExecute,
		stateGenerate:        e.nodeGenerate,
	}
	e.next = map[stateName]stateName{
		stateAnalyze:  stateCheckConditions,
		stateClarify:  stateEnd,
		stateExecute:  stateGenerate,
		stateGenerate: stateEnd,
		// stateCheckConditions is branchy: see routeAfterConditions.
	}
	return e, nil
}

// run drives the fixed state machine from "analyze" to its first
// terminal state, one node call at a time.
func (e *Engine) run(ctx context.Context, s *turnState) (*turnState, error) {
	state := stateAnalyze
	for state != stateEnd {
		node, ok := e.nodes[state]
		if !ok {
			return nil, fmt.Errorf("conversation: unknown state %q", state)
		}
		var err error
		s, err = node(ctx, s)
		if err != nil {
			return nil, err
		}
		if state == stateCheckConditions {
			state = e.routeAfterConditions(s)
			continue
		}
		state = e.next[state]
	}
	return s, nil
}

func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

// Chat runs exactly one turn, serialized per session_id (spec §5: "the
// engine MUST serialize turns per session").
func (e *Engine) Chat(ctx context.Context, turn Turn) (Result, error) {
	var sess *model.Session
	var err error
	if turn.SessionID == "" {
		sess, err = e.sessions.Create(ctx)
	} else {
		sess, err = e.sessions.Get(ctx, turn.SessionID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("conversation: load session: %w", err)
	}

	lock := e.sessionLock(sess.SessionID)
	lock.Lock()
	defer lock.Unlock()

	state := &turnState{sess: sess, turn: turn, result: Result{SessionID: sess.SessionID}, lexicon: e.lexicon}

	final, err := e.run(ctx, state)
	if err != nil {
		// Any node failure becomes a benign user-visible message; session
		// state remains readable (spec §4.8 failure semantics, §7).
		sess.AddMessage("assistant", "I'm sorry, something went wrong answering that.")
		_ = e.sessions.Update(ctx, sess)
		return Result{SessionID: sess.SessionID, Error: err.Error(), FinalAnswer: "I'm sorry, something went wrong answering that.", IsComplete: true}, nil
	}

	sess.AddMessage("user", turn.Message)
	if final.result.FinalAnswer != "" {
		sess.AddMessage("assistant", final.result.FinalAnswer)
	}
	if err := e.sessions.Update(ctx, sess); err != nil {
		return Result{}, fmt.Errorf("conversation: persist session: %w", err)
	}
	return final.result, nil
}

// routeAfterConditions implements check_conditions' only branch: to
// clarify, to execute, or straight to end if neither node set a route.
func (e *Engine) routeAfterConditions(s *turnState) stateName {
	switch s.nextRoute {
	case "clarify":
		return stateClarify
	case "execute":
		return stateExecute
	default:
		return stateEnd
	}
}

// matchDocumentContext classifies free text into a lexicon-matched document context.
func matchDocumentContext(lexicon productLexicon, text string) string {
	lower := strings.ToLower(text)
	for keyword, docID := range lexicon {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return docID
		}
	}
	return ""
}
