package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"inkboard/internal/rpc"
)

type rpcResponse struct {
	Result any `json:"result"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	service := strings.TrimSpace(r.PathValue("service"))
	method := strings.TrimSpace(r.PathValue("method"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxSceneBytes))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && !json.Valid(body) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON))
		return
	}

	call := rpc.Call{Params: body}
	if principal, ok := authPrincipalFromContext(r.Context()); ok {
		call.User = principal.User
		call.SessionToken = principal.Token
	}

	result, err := s.manager.Call(r.Context(), service, method, call)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rpcResponse{Result: result})
}
