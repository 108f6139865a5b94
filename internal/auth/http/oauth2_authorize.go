package http

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// loginPage is the minimal hosted login form for the authorization code
// flow. The front-channel parameters ride along as hidden fields.
var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Sign in</title>
  <style>
    body { font-family: sans-serif; display: flex; justify-content: center; margin-top: 10vh; }
    form { width: 320px; }
    label { display: block; margin-top: 1em; }
    input { width: 100%; padding: 0.5em; box-sizing: border-box; }
    button { margin-top: 1.5em; width: 100%; padding: 0.6em; }
  </style>
</head>
<body>
  <form method="POST" action="{{.Action}}">
    <h1>Sign in</h1>
    <label>Email or username
      <input type="text" name="identifier" autofocus required>
    </label>
    <label>Password
      <input type="password" name="password" required>
    </label>
    <input type="hidden" name="response_type" value="{{.ResponseType}}">
    <input type="hidden" name="client_id" value="{{.ClientID}}">
    <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
    <input type="hidden" name="scope" value="{{.Scope}}">
    <input type="hidden" name="state" value="{{.State}}">
    <input type="hidden" name="nonce" value="{{.Nonce}}">
    <button type="submit">Sign in</button>
  </form>
</body>
</html>`))

type loginPageData struct {
	Action       string
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	Nonce        string
}

// AuthorizeHandler drives the authorization code flow: GET renders the login
// form, POST checks credentials and redirects back with a one-time code.
type AuthorizeHandler struct {
	OAuth2 *service.OAuth2Service
}

// HandleGet validates the front-channel parameters and renders the login
// form. Client and redirect failures must never redirect, so they come back
// as JSON errors.
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := loginPageData{
		Action:       r.URL.Path,
		ResponseType: q.Get("response_type"),
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
		Nonce:        q.Get("nonce"),
	}

	if err := h.OAuth2.ValidateAuthorizeRequest(data.ClientID, data.RedirectURI, data.ResponseType); err != nil {
		h.writeValidationError(w, err)
		return
	}

	h.renderForm(w, data)
}

// HandlePost authenticates the resource owner. Success is a 302 back to the
// redirect URI with code and state; failures after validation redirect there
// too, carrying error and state, never a bare 401.
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		ErrInvalidFormBody.WriteError(w)
		return
	}

	data := loginPageData{
		Action:       r.URL.Path,
		ResponseType: r.Form.Get("response_type"),
		ClientID:     r.Form.Get("client_id"),
		RedirectURI:  r.Form.Get("redirect_uri"),
		Scope:        r.Form.Get("scope"),
		State:        r.Form.Get("state"),
		Nonce:        r.Form.Get("nonce"),
	}

	if err := h.OAuth2.ValidateAuthorizeRequest(data.ClientID, data.RedirectURI, data.ResponseType); err != nil {
		h.writeValidationError(w, err)
		return
	}

	code, err := h.OAuth2.Login(ctx,
		r.Form.Get("identifier"), r.Form.Get("password"),
		data.ClientID, data.RedirectURI, data.Scope, data.Nonce)
	if err != nil {
		// The redirect URI is validated, interactive-flow errors go back
		// to the client per RFC 6749 section 4.1.2.1.
		switch {
		case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrPasswordNotSet):
			redirectError(w, r, data.RedirectURI, ErrorCodeAccessDenied, "Invalid credentials", data.State)
		case errors.Is(err, service.ErrUserDisabled):
			redirectError(w, r, data.RedirectURI, ErrorCodeAccessDenied, "account is disabled", data.State)
		default:
			slogx.FromContext(ctx).Error("authorize login failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	target, err := url.Parse(data.RedirectURI)
	if err != nil {
		ErrServerError.WriteError(w)
		return
	}
	qs := target.Query()
	qs.Set("code", code)
	if data.State != "" {
		qs.Set("state", data.State)
	}
	target.RawQuery = qs.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *AuthorizeHandler) renderForm(w http.ResponseWriter, data loginPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = loginPage.Execute(w, data)
}

func (h *AuthorizeHandler) writeValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidRedirect):
		(&OAuth2Error{
			StatusCode:  http.StatusBadRequest,
			Code:        ErrorCodeInvalidRequest,
			Description: "redirect_uri is not registered for this client",
		}).WriteError(w)
	default:
		(&OAuth2Error{
			StatusCode:  http.StatusBadRequest,
			Code:        ErrorCodeUnsupportedResponseType,
			Description: "only response_type=code is supported",
		}).WriteError(w)
	}
}

// redirectError sends an interactive-flow error back to a validated
// redirect URI.
func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, code, description, state string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		ErrServerError.WriteError(w)
		return
	}
	q := target.Query()
	q.Set("error", code)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
