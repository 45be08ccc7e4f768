package ioutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Snippet reads at most limit bytes of an error response body and reduces
// them to one line for logs and error messages. See SnippetBytes.
func Snippet(r io.Reader, limit int) string {
	body, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil && len(body) == 0 {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return SnippetBytes(body, limit)
}

// SnippetBytes summarises body. Provider JSON error payloads are reduced to
// their message; anything else has its whitespace collapsed and is cut at
// limit bytes, with "..." marking the cut.
func SnippetBytes(body []byte, limit int) string {
	if msg := errorMessage(body); msg != "" {
		return msg
	}

	truncated := len(body) > limit
	if truncated {
		body = body[:limit]
	}
	text := strings.Join(strings.Fields(strings.ToValidUTF8(string(body), "")), " ")
	if truncated {
		text += "..."
	}
	return text
}

// errorPayload covers the error shapes the upstreams send back:
// {"error":"invalid_grant","error_description":"..."} from OAuth endpoints,
// {"error":{"status":429,"message":"..."}} from the Spotify Web API and
// {"errors":["..."]} from notification webhooks.
type errorPayload struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Message          string          `json:"message"`
	Errors           []string        `json:"errors"`
}

func errorMessage(body []byte) string {
	var p errorPayload
	if json.Unmarshal(body, &p) != nil {
		return ""
	}

	var parts []string
	if len(p.Error) > 0 {
		var code string
		var nested struct {
			Message string `json:"message"`
		}
		switch {
		case json.Unmarshal(p.Error, &code) == nil:
			parts = append(parts, code)
		case json.Unmarshal(p.Error, &nested) == nil:
			parts = append(parts, nested.Message)
		}
	}
	parts = append(parts, p.ErrorDescription, p.Message, strings.Join(p.Errors, "; "))

	var out []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ": ")
}
