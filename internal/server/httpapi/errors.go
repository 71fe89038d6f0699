package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var statusByKind = map[common.Kind]int{
	common.KindValidation:           http.StatusBadRequest,
	common.KindInvalidResetToken:    http.StatusBadRequest,
	common.KindInvalidCredentials:   http.StatusUnauthorized,
	common.KindInvalidToken:         http.StatusUnauthorized,
	common.KindTokenExpired:         http.StatusUnauthorized,
	common.KindTokenRevoked:         http.StatusUnauthorized,
	common.KindForbidden:            http.StatusForbidden,
	common.KindNotFound:             http.StatusNotFound,
	common.KindAccountAlreadyExists: http.StatusConflict,
}

// writeError renders err as {"error": KIND, "message": ...}. Errors without
// a client-facing kind become a bare 500 so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	kind := common.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   common.KindInternal.String(),
			Message: common.ErrorInternal.Error(),
		})
		return
	}
	writeJSON(w, status, errorResponse{Error: kind.String(), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
