package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pulsoria/social-sync/internal/domain"
)

// Synthetic status codes for failures that never produced an HTTP response.
const (
	StatusNetworkError = 0
	StatusTimeout      = 408
)

// APIError is a normalized provider API failure. StatusCode is the HTTP
// status, or a synthetic code for network (0) and timeout (408) failures.
type APIError struct {
	Platform   domain.Platform
	Endpoint   string
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %s (status %d)", e.Platform, e.Endpoint, e.Message, e.StatusCode)
}

// Timeout reports whether the error is the synthetic request-timeout failure.
func (e *APIError) Timeout() bool {
	return e.StatusCode == StatusTimeout
}

// Each provider wraps errors differently: Meta and Google nest an object under
// "error", TikTok nests a string code, Twitter's v2 API returns a flat
// problem document, LinkedIn a flat message. parseErrorBody walks the shape
// for the platform and falls back to the raw body.

type metaErrorBody struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

type tiktokErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		LogID   string `json:"log_id"`
	} `json:"error"`
}

type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type twitterErrorBody struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type linkedinErrorBody struct {
	Message          string `json:"message"`
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Status           int    `json:"status"`
}

func parseErrorBody(platform domain.Platform, body []byte) string {
	switch platform {
	case domain.PlatformInstagram, domain.PlatformFacebook:
		var parsed metaErrorBody
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			msg := parsed.Error.Message
			if parsed.Error.Code != 0 {
				msg = fmt.Sprintf("(#%d) %s", parsed.Error.Code, msg)
			}
			return msg
		}

	case domain.PlatformTikTok:
		var parsed tiktokErrorBody
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			if parsed.Error.Code != "" && parsed.Error.Code != "ok" {
				return fmt.Sprintf("%s: %s", parsed.Error.Code, parsed.Error.Message)
			}
			return parsed.Error.Message
		}

	case domain.PlatformYouTube:
		var parsed googleErrorBody
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			if len(parsed.Error.Errors) > 0 && parsed.Error.Errors[0].Reason != "" {
				return fmt.Sprintf("%s: %s", parsed.Error.Errors[0].Reason, parsed.Error.Message)
			}
			return parsed.Error.Message
		}

	case domain.PlatformTwitter:
		var parsed twitterErrorBody
		if json.Unmarshal(body, &parsed) == nil {
			if parsed.Title != "" {
				if parsed.Detail != "" {
					return fmt.Sprintf("%s: %s", parsed.Title, parsed.Detail)
				}
				return parsed.Title
			}
			if len(parsed.Errors) > 0 && parsed.Errors[0].Message != "" {
				return parsed.Errors[0].Message
			}
		}

	case domain.PlatformLinkedIn:
		var parsed linkedinErrorBody
		if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
			return parsed.Message
		}
	}

	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return trimmed
	}
	return "request failed"
}
