package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/dgellow/statusboard/internal/log"
	"github.com/dgellow/statusboard/internal/tokens"
)

//go:embed templates/*.html
var templatesFS embed.FS

var callbackTemplate = template.Must(template.ParseFS(templatesFS, "templates/callback.html"))

type callbackPage struct {
	Title    string
	Provider string
	Message  string
	Success  bool
}

func callbackFailurePage(provider string, kind tokens.Kind) callbackPage {
	page := callbackPage{Title: "Authorization failed", Provider: provider}
	switch kind {
	case tokens.KindStateMismatch:
		page.Message = "This link is stale or was not issued by this server. Start the authorization again."
	case tokens.KindProviderRejected:
		page.Message = "The provider did not grant access."
	case tokens.KindStoreUnavailable:
		page.Message = "The token store is unavailable. Try the link again in a moment."
	case tokens.KindProviderUnavailable:
		page.Message = "The provider could not be reached. Start the authorization again in a moment."
	case tokens.KindMissingConfiguration:
		page.Message = "This provider is not fully configured on the server."
	default:
		page.Message = "Something went wrong while completing the authorization."
	}
	return page
}

func renderCallbackPage(w http.ResponseWriter, status int, page callbackPage) {
	var buf bytes.Buffer
	if err := callbackTemplate.Execute(&buf, page); err != nil {
		log.LogErrorWithFields("server", "Failed to render callback page", map[string]any{
			"error": err.Error(),
		})
		http.Error(w, page.Title, status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
