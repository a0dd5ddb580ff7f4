package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/service"
)

// failDomain translates a service-layer error into the typed response code and
// HTTP status it maps to. Unknown errors become a generic 500.
func failDomain(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAssignmentInactive):
		response.Fail(c, http.StatusConflict, response.ErrAssignmentInactive)
	case errors.Is(err, service.ErrAssignmentExpired):
		response.Fail(c, http.StatusConflict, response.ErrAssignmentExpired)
	case errors.Is(err, service.ErrNotSupervised):
		response.Fail(c, http.StatusConflict, response.ErrNotSupervisedMode)
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrRoomNotFound)
	case errors.Is(err, service.ErrSessionNotWaiting):
		response.Fail(c, http.StatusConflict, response.ErrRoomNotWaiting)
	case errors.Is(err, service.ErrSessionClosed):
		response.Fail(c, http.StatusConflict, response.ErrRoomClosed)
	case errors.Is(err, service.ErrParticipantNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrParticipantNotFound)
	case errors.Is(err, service.ErrNotInvited):
		response.Fail(c, http.StatusForbidden, response.ErrNotInvited)
	case errors.Is(err, service.ErrNotThreadOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
