package gateway

import (
	"errors"
	"strings"

	"github.com/kalambet/finplan/internal/plan"
)

// badRequestMarkers identify a rejected request, which in practice means a
// bad or revoked API key.
var badRequestMarkers = []string{"bad request", "invalid_argument", "api key not valid"}

// FriendlyError maps a generation failure to a message for the user.
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrEmptyResponse):
		return err.Error()
	case errors.Is(err, plan.ErrMalformedResponse):
		return "The model's reply could not be read as a plan. Try regenerating."
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range badRequestMarkers {
		if strings.Contains(msg, marker) {
			return "The request was rejected. Check your API key and try again."
		}
	}
	return "Failed to generate plan: " + err.Error()
}
