package api

import (
	"net/http"

	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/modules"
)

// statusFor maps a core error kind to the HTTP status spec.md §6 assigns
// it. This is the one table handlers consult; nothing else in the tree
// pattern-matches on error identity to pick a status code.
func statusFor(err error) int {
	switch {
	case errors.Contains(err, modules.ErrPathConflict):
		return http.StatusConflict
	case errors.Contains(err, modules.ErrNoCapacity):
		return http.StatusServiceUnavailable
	case errors.Contains(err, modules.ErrNotFound):
		return http.StatusNotFound
	case errors.Contains(err, modules.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Contains(err, modules.ErrSessionExpired):
		return http.StatusBadRequest
	case errors.Contains(err, modules.ErrNoReportingWorkers):
		return http.StatusBadRequest
	case errors.Contains(err, modules.ErrInvalidChunkPlan):
		return http.StatusBadRequest
	case errors.Contains(err, modules.ErrNoSpace):
		return http.StatusInsufficientStorage
	case errors.Contains(err, modules.ErrCorrupted):
		return http.StatusUnprocessableEntity
	case errors.Contains(err, modules.ErrUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeCoreError(w http.ResponseWriter, err error) {
	WriteError(w, Error{err.Error()}, statusFor(err))
}
