package server

import (
	"encoding/json"
	"net/http"

	"github.com/unkn0wn-root/stockcore"
)

func statusFor(k stockcore.Kind) int {
	switch k {
	case "":
		return http.StatusOK
	case stockcore.KindUnauthenticated, stockcore.KindAuthentication:
		return http.StatusUnauthorized
	case stockcore.KindForbidden:
		return http.StatusForbidden
	case stockcore.KindValidation:
		return http.StatusBadRequest
	case stockcore.KindStorage:
		return http.StatusServiceUnavailable
	case stockcore.KindRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeResult[T any](w http.ResponseWriter, r *http.Request, res stockcore.Result[T]) {
	status := http.StatusOK
	if !res.OK {
		status = statusFor(res.Kind)
	}
	writeJSON(w, r, status, res)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestIDFrom(r.Context()))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	writeResult(w, r, stockcore.Failure[struct{}](err))
}

// denyJSON renders gate rejections as Result bodies.
func denyJSON(w http.ResponseWriter, r *http.Request, err error) {
	writeErr(w, r, err)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return stockcore.Invalid("", "malformed JSON body: "+err.Error())
	}
	return nil
}
