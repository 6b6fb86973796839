package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.scenegrid.dev/internal/auth"
	"go.scenegrid.dev/internal/auth/jwt"
	"go.scenegrid.dev/internal/common/metrics"
	"go.scenegrid.dev/internal/evaluator"
	"go.scenegrid.dev/internal/ids"
	"go.scenegrid.dev/internal/perms"
	"go.scenegrid.dev/internal/topics"
)

// cookieLimit is the browser cookie size threshold. Tokens at or above it
// are still returned in the body but never cookie-set.
const cookieLimit = 4096

// TokenResponse is the mqtt_auth success body.
type TokenResponse struct {
	Username string        `json:"username"`
	Token    string        `json:"token"`
	IDs      ids.Generated `json:"ids"`
}

// mqttAuth issues an MQTT credential for one session.
func (h *Handler) mqttAuth(version topics.Version) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		outcome := "error"
		defer func() {
			metrics.TokenRequests.WithLabelValues(string(version), outcome).Inc()
			metrics.TokenIssueDuration.WithLabelValues(string(version)).Observe(time.Since(start).Seconds())
		}()

		if err := r.ParseForm(); err != nil {
			outcome = "validation"
			WriteBadRequest(w, "Invalid form body.")
			return
		}

		identity, err := h.callerIdentity(r)
		if err != nil {
			if errors.Is(err, auth.ErrUnknownAccount) {
				outcome = "unauthorized"
				WriteUnauthorized(w, "Invalid parameters")
				return
			}
			outcome = "denied"
			WriteForbidden(w, "Identity verification failed.")
			return
		}

		username := identity.Username
		if !identity.Authenticated {
			anon, err := auth.Anonymous(r.PostFormValue("username"))
			if err != nil {
				outcome = "validation"
				WriteBadRequest(w, "Invalid form parameter: 'username'")
				return
			}
			identity = anon
			username = anon.Username
		}

		client := r.PostFormValue("client")
		if !auth.ClientRe.MatchString(client) {
			outcome = "validation"
			WriteBadRequest(w, "Invalid form parameter: 'client'")
			return
		}

		scene := r.PostFormValue("scene")
		if scene != "" && !perms.NamedRe.MatchString(scene) {
			outcome = "validation"
			WriteBadRequest(w, "Invalid form parameter: 'scene'")
			return
		}

		realm := r.PostFormValue("realm")
		if realm == "" {
			realm = h.cfg.Realm
		}

		idReq := ids.Request{
			Camera:       formBool(r, "camid"),
			HandLeft:     formBool(r, "handleftid"),
			HandRight:    formBool(r, "handrightid"),
			RenderFusion: formBool(r, "renderfusionid"),
			Environment:  formBool(r, "environmentid"),
		}
		generated, err := ids.New(version, username, client, idReq)
		if err != nil {
			slog.Error("Id generation failed", "error", err)
			WriteInternalError(w, "Internal error.")
			return
		}

		result, err := h.eval.Evaluate(r.Context(), evaluator.Request{
			Identity:        identity,
			Realm:           realm,
			Scene:           scene,
			Version:         version,
			IDs:             generated,
			AvatarRequested: idReq.Avatar(),
		})
		if err != nil {
			if errors.Is(err, evaluator.ErrAnonymousDenied) {
				outcome = "denied"
				WriteForbidden(w, "Authentication required for this scene.")
				return
			}
			slog.Error("Permission evaluation failed", "error", err, "scene", scene)
			WriteInternalError(w, "Internal error.")
			return
		}

		tokenReq := jwt.TokenRequest{
			Subject:   username,
			Duration:  jwt.SessionTokenTTL(identity.Authenticated),
			Subscribe: result.Subscribe,
			Publish:   result.Publish,
		}
		if result.Conference {
			tokenReq.ConferenceScene = scene
		}

		token, err := h.issuer.Issue(tokenReq)
		if err != nil {
			if errors.Is(err, jwt.ErrSigningKeyMissing) {
				slog.Error("Signing key unavailable, token issuance aborted")
				WriteInternalError(w, "Token signing unavailable.")
				return
			}
			slog.Error("Token signing failed", "error", err)
			WriteInternalError(w, "Internal error.")
			return
		}

		if result.Conference {
			metrics.ConferenceTokens.Inc()
		}

		outcome = "success"
		setTokenCookie(w, token)
		WriteJSON(w, http.StatusOK, TokenResponse{
			Username: username,
			Token:    token,
			IDs:      generated,
		})
	}
}

// deviceToken issues a long-lived credential scoped to one device subtree.
// Only staff, the namespace owner, or a namespace editor may obtain one.
func (h *Handler) deviceToken(version topics.Version) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			WriteBadRequest(w, "Invalid form body.")
			return
		}

		identity, err := h.callerIdentity(r)
		if err != nil || !identity.Authenticated {
			WriteForbidden(w, "Authentication required.")
			return
		}

		device := r.PostFormValue("device")
		if !perms.NamedRe.MatchString(device) {
			WriteBadRequest(w, "Invalid form parameter: 'device'")
			return
		}

		if !h.canAdministerNamespace(r.Context(), identity, namespaceOf(device)) {
			WriteForbidden(w, "No permission for this device.")
			return
		}

		// Device credentials are only minted for registered devices. A
		// store failure degrades open, same as the grant lookups.
		if _, err := h.store.LookupDevice(r.Context(), device); err != nil {
			if errors.Is(err, perms.ErrNotFound) {
				WriteBadRequest(w, "The device does not exist")
				return
			}
			slog.Warn("Device lookup failed", "device", device, "error", err)
		}

		duration := jwt.MaxDeviceTokenTTL
		if raw := r.PostFormValue("duration"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				WriteBadRequest(w, "Invalid form parameter: 'duration'")
				return
			}
			duration = jwt.DeviceTokenTTL(parsed)
		}

		realm := r.PostFormValue("realm")
		if realm == "" {
			realm = h.cfg.Realm
		}

		result, err := h.eval.Evaluate(r.Context(), evaluator.Request{
			Identity: identity,
			Realm:    realm,
			Device:   device,
			Version:  version,
		})
		if err != nil {
			slog.Error("Device permission evaluation failed", "error", err, "device", device)
			WriteInternalError(w, "Internal error.")
			return
		}

		token, err := h.issuer.Issue(jwt.TokenRequest{
			Subject:   identity.Username,
			Duration:  duration,
			Subscribe: result.Subscribe,
			Publish:   result.Publish,
		})
		if err != nil {
			if errors.Is(err, jwt.ErrSigningKeyMissing) {
				slog.Error("Signing key unavailable, token issuance aborted")
				WriteInternalError(w, "Token signing unavailable.")
				return
			}
			slog.Error("Token signing failed", "error", err)
			WriteInternalError(w, "Internal error.")
			return
		}

		WriteJSON(w, http.StatusOK, TokenResponse{
			Username: identity.Username,
			Token:    token,
		})
	}
}

// callerIdentity resolves the caller. With no id_token the caller is
// unauthenticated; a present token must verify.
func (h *Handler) callerIdentity(r *http.Request) (auth.Identity, error) {
	idToken := r.FormValue("id_token")
	if idToken == "" {
		return auth.Identity{}, nil
	}
	return h.resolver.FromIDToken(r.Context(), idToken)
}

func setTokenCookie(w http.ResponseWriter, token string) {
	if len(token) >= cookieLimit {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "mqtt_token",
		Value:    token,
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   true,
	})
}

func formBool(r *http.Request, field string) bool {
	switch r.PostFormValue(field) {
	case "", "false", "0":
		return false
	default:
		return true
	}
}
