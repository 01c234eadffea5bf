package server

import (
	"encoding/json"
	"net/http"

	"github.com/stockworks/workbench/internal/expr"
)

// ExprHandlers exposes the expression evaluator over HTTP.
type ExprHandlers struct {
	s *Server
}

type evalRequest struct {
	Expression string `json:"expression"`
}

type evalResponse struct {
	Kind  string      `json:"kind"`
	Value interface{} `json:"value"`
}

// HandleEval handles POST /api/expr: evaluate body.Expression against the
// shared evaluation context and return its resulting Value.
func (h *ExprHandlers) HandleEval(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Expression == "" {
		http.Error(w, "expression must not be empty", http.StatusBadRequest)
		return
	}

	result, err := expr.Eval(h.s.cfg.EvalCtx, req.Expression)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h.s.writeJSON(w, http.StatusOK, toEvalResponse(result))
}

func toEvalResponse(v expr.Value) evalResponse {
	switch v.Kind {
	case expr.KindString:
		return evalResponse{Kind: "string", Value: v.AsString()}
	case expr.KindBool:
		return evalResponse{Kind: "bool", Value: v.Truthy()}
	case expr.KindList:
		return evalResponse{Kind: "list", Value: v.Flatten()}
	case expr.KindPair:
		return evalResponse{Kind: "pair", Value: v.Flatten()}
	default:
		return evalResponse{Kind: "number", Value: v.AsNumber()}
	}
}
