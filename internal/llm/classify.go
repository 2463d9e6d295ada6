package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/pagesmith-dev/pagesmith/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// Classify maps a provider or transport failure into the closed error
// taxonomy. Structured signals (API error codes, HTTP status, net errors)
// are preferred; substring heuristics on the message are a last resort, and
// anything unmatched falls to KindUnknown.
//
// Classification drives user-facing messaging only. It never changes retry
// behavior; a failure always terminates the session.
func Classify(err error) *models.Error {
	var classified *models.Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewError(models.KindTimeout, "streaming time limit exceeded")
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		return classifyStatus(apiErr.HTTPStatusCode, code, apiErr.Message)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, "", statusErr.Body)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.NewError(models.KindNetworkUnavailable, err.Error())
	}

	return classifyMessage(err.Error())
}

func classifyStatus(status int, code, message string) *models.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.NewError(models.KindMissingCredentials, message)
	case http.StatusPaymentRequired:
		return models.NewError(models.KindQuotaExceeded, message)
	case http.StatusTooManyRequests:
		// Providers report exhausted quota with the same status as transient
		// rate limits; the error code tells them apart.
		if code == "insufficient_quota" || strings.Contains(strings.ToLower(message), "quota") {
			return models.NewError(models.KindQuotaExceeded, message)
		}
		return models.NewError(models.KindRateLimited, message)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return models.NewError(models.KindNetworkUnavailable, message)
	}
	return classifyMessage(message)
}

func classifyMessage(message string) *models.Error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing"):
		return models.NewError(models.KindQuotaExceeded, message)
	case strings.Contains(lower, "api key") ||
		strings.Contains(lower, "authentication") ||
		strings.Contains(lower, "unauthorized"):
		return models.NewError(models.KindMissingCredentials, message)
	case strings.Contains(lower, "rate limit"):
		return models.NewError(models.KindRateLimited, message)
	case strings.Contains(lower, "network") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host"):
		return models.NewError(models.KindNetworkUnavailable, message)
	}
	return models.NewError(models.KindUnknown, message)
}
