package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

// APIVersion is reported in every response envelope.
const APIVersion = "1.0"

const (
	statusSuccess = "success"
	statusError   = "error"
)

type Metadata struct {
	APIVersion   string `json:"api_version"`
	Timestamp    string `json:"timestamp"`
	ResponseType string `json:"response_type"`
}

type Status struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope wraps every /ai response.
type Envelope struct {
	Metadata Metadata `json:"metadata"`
	Request  any      `json:"request,omitempty"`
	Data     any      `json:"data,omitempty"`
	Status   Status   `json:"status"`
}

func metadata(responseType string) Metadata {
	return Metadata{
		APIVersion:   APIVersion,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		ResponseType: responseType,
	}
}

func respond(c *gin.Context, code int, responseType string, data any, message string) {
	c.JSON(code, Envelope{
		Metadata: metadata(responseType),
		Data:     data,
		Status:   Status{Code: statusSuccess, Message: message},
	})
}

func respondError(c *gin.Context, responseType string, err error) {
	code := StatusFor(err)
	event := log.Warn()
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		event = log.Error()
	}
	event.Err(err).Str("response_type", responseType).Int("status", code).Msg("request failed")

	c.JSON(code, Envelope{
		Metadata: metadata(responseType),
		Status:   Status{Code: statusError, Message: err.Error()},
	})
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrDataSource):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTrainingInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
