// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/roito2356/giiku-23/internal/auth"
	"github.com/roito2356/giiku-23/pkg/errutil"
)

var statusByKind = map[auth.Kind]int{
	auth.KindValidation:         http.StatusUnprocessableEntity,
	auth.KindDuplicate:          http.StatusConflict,
	auth.KindInvalidCredentials: http.StatusUnauthorized,
	auth.KindInvalidSession:     http.StatusUnauthorized,
	auth.KindUnauthenticated:    http.StatusUnauthorized,
	auth.KindForbidden:          http.StatusForbidden,
	auth.KindNotFound:           http.StatusNotFound,
	auth.KindProtected:          http.StatusConflict,
}

// statusFor maps an error kind to its HTTP status. Unknown kinds are 500.
func statusFor(kind auth.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError responds with the kind of err and, for validation and duplicate
// errors, the offending field. Internal details are logged, never returned.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	status := statusFor(kind)

	body := errorResponse{Error: string(kind)}
	switch kind {
	case auth.KindValidation, auth.KindDuplicate:
		body.Field = auth.FieldOf(err)
	case auth.KindInvalidSession:
		body.Error = string(auth.KindUnauthenticated)
	}
	if status == http.StatusInternalServerError {
		body.Error = string(auth.KindInternal)
		errutil.LogError(r.Context(), h.logger, "request failed", err)
	}
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value) //nolint:errcheck // client may disconnect
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w)
		return false
	}
	return true
}
