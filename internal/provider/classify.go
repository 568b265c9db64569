package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

// Classify maps a provider failure to the error taxonomy. It is used for
// logging and metrics only.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorTimeout
	}
	if errors.Is(err, ErrLocalRateLimit) {
		return models.ErrorRateLimited
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests:
			return models.ErrorRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return models.ErrorAuth
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return models.ErrorTimeout
		case http.StatusBadGateway, http.StatusServiceUnavailable:
			return models.ErrorNetwork
		}
		return models.ErrorUnknown
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return models.ErrorTimeout
		}
		return models.ErrorNetwork
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "EOF"):
		return models.ErrorNetwork
	}
	return models.ErrorUnknown
}
