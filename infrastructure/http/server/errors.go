package server

import (
	"duo-chat/errors"
	stderrors "errors"
	"net/http"
)

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	if stderrors.Is(err, errors.ErrFileTooLarge) || stderrors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	switch errors.KindOf(err) {
	case errors.KindValidation, errors.KindIntegrity:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// messageFor only exposes messages of typed errors; anything else is internal.
func messageFor(err error, status int) string {
	if status == http.StatusRequestEntityTooLarge {
		return errors.ErrFileTooLarge.Message
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.Kind != errors.KindInternal {
		return appErr.Message
	}
	return "internal server error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, response{Success: false, ErrMessage: messageFor(err, status)})
}
