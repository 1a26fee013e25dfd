package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/rs/zerolog/log"
)

// statusFor maps a registry error to its HTTP status
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}

	switch types.CodeOf(err) {
	case types.ErrUnauthenticated.Code:
		return http.StatusUnauthorized
	case types.ErrNoChange.Code:
		return http.StatusConflict
	case types.ErrFileTooLarge.Code:
		return http.StatusRequestEntityTooLarge
	case types.ErrUnsupportedType.Code:
		return http.StatusUnsupportedMediaType
	case types.ErrUnsafeFilename.Code:
		return http.StatusBadRequest
	case types.ErrSecurityRejected.Code:
		return http.StatusUnprocessableEntity
	case types.ErrScanFailed.Code:
		return http.StatusBadGateway
	case types.ErrDownloadPending.Code:
		return http.StatusLocked
	case types.ErrDownloadInfected.Code:
		return http.StatusForbidden
	}

	switch types.KindOf(err) {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindConflict:
		return http.StatusConflict
	case types.KindAuthorization:
		return http.StatusForbidden
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindStorage:
		return http.StatusServiceUnavailable
	case types.KindScanTimeout:
		return http.StatusGatewayTimeout
	case types.KindSecurity:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an APIResponse. Internal errors are logged and
// their details are not exposed.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := types.APIResponse{Success: false, Error: err.Error(), Code: types.CodeOf(err)}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		body.Error = "request body too large"
		body.Code = types.ErrFileTooLarge.Code
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		body.Error = "Internal server error"
	}
	c.JSON(status, body)
}

// parseID reads a UUID path parameter, answering 400 when it is malformed
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		respondError(c, types.ErrInvalidInput.WithMessage("invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}
