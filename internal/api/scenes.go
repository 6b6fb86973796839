package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"go.scenegrid.dev/internal/common/metrics"
	"go.scenegrid.dev/internal/perms"
)

// scenePayload is the writable subset of a scene permission record.
// Pointer fields distinguish "absent" from "set to zero".
type scenePayload struct {
	Summary         *string  `json:"summary"`
	Editors         []string `json:"editors"`
	Viewers         []string `json:"viewers"`
	PublicRead      *bool    `json:"public_read"`
	PublicWrite     *bool    `json:"public_write"`
	AnonymousUsers  *bool    `json:"anonymous_users"`
	VideoConference *bool    `json:"video_conference"`
	Users           *bool    `json:"users"`
}

func (p *scenePayload) apply(s *perms.Scene) {
	if p.Summary != nil {
		s.Summary = *p.Summary
	}
	if p.Editors != nil {
		s.Editors = p.Editors
	}
	if p.Viewers != nil {
		s.Viewers = p.Viewers
	}
	if p.PublicRead != nil {
		s.Flags.PublicRead = *p.PublicRead
	}
	if p.PublicWrite != nil {
		s.Flags.PublicWrite = *p.PublicWrite
	}
	if p.AnonymousUsers != nil {
		s.Flags.AnonymousUsers = *p.AnonymousUsers
	}
	if p.VideoConference != nil {
		s.Flags.VideoConference = *p.VideoConference
	}
	if p.Users != nil {
		s.Flags.Users = *p.Users
	}
}

// sceneDetail is the scene permission record CRUD endpoint. Every method
// requires edit permission on the scene.
func (h *Handler) sceneDetail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "namespace") + "/" + chi.URLParam(r, "sceneid")
	if !perms.NamedRe.MatchString(name) {
		WriteBadRequest(w, "Invalid scene name.")
		return
	}

	identity, err := h.callerIdentity(r)
	if err != nil {
		WriteForbidden(w, "Identity verification failed.")
		return
	}
	if !identity.Authenticated {
		WriteForbidden(w, "Authentication required.")
		return
	}
	if !h.canEditScene(r.Context(), identity, name) {
		WriteBadRequest(w, fmt.Sprintf("User does not have edit permission for scene: %s.", name))
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.createScene(w, r, identity.Username, name)
	case http.MethodGet:
		h.getScene(w, r, name)
	case http.MethodPut:
		h.updateScene(w, r, name)
	case http.MethodDelete:
		h.deleteScene(w, r, name)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// createScene claims a scene name. Claiming an existing record is refused
// so a grant holder cannot silently take over someone's scene settings.
func (h *Handler) createScene(w http.ResponseWriter, r *http.Request, username, name string) {
	ctx := r.Context()

	if _, err := h.store.LookupScene(ctx, name); err == nil {
		WriteBadRequest(w, fmt.Sprintf("Unable to claim existing scene: %s, use PUT.", name))
		return
	} else if !errors.Is(err, perms.ErrNotFound) {
		metrics.SceneMutations.WithLabelValues("create", "failure").Inc()
		slog.Error("Scene lookup failed", "scene", name, "error", err)
		WriteInternalError(w, "Internal error.")
		return
	}

	scene := perms.NewScene(name)
	scene.Summary = fmt.Sprintf("User %s adding new scene %s to account database.", username, name)
	scene.CreationDate = time.Now().UTC()

	if payload := decodeScenePayload(r); payload != nil {
		payload.apply(&scene)
	}

	if err := h.store.CreateScene(ctx, &scene); err != nil {
		metrics.SceneMutations.WithLabelValues("create", "failure").Inc()
		slog.Error("Scene create failed", "scene", name, "error", err)
		WriteInternalError(w, "Internal error.")
		return
	}

	metrics.SceneMutations.WithLabelValues("create", "success").Inc()
	WriteJSON(w, http.StatusCreated, sceneDoc(scene))
}

func (h *Handler) getScene(w http.ResponseWriter, r *http.Request, name string) {
	scene, err := h.store.LookupScene(r.Context(), name)
	if err != nil {
		if errors.Is(err, perms.ErrNotFound) {
			WriteNotFound(w, "The scene does not exist")
			return
		}
		slog.Error("Scene lookup failed", "scene", name, "error", err)
		WriteInternalError(w, "Internal error.")
		return
	}
	WriteJSON(w, http.StatusOK, sceneDoc(*scene))
}

func (h *Handler) updateScene(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()

	scene, err := h.store.LookupScene(ctx, name)
	if err != nil {
		if errors.Is(err, perms.ErrNotFound) {
			WriteNotFound(w, "The scene does not exist")
			return
		}
		slog.Error("Scene lookup failed", "scene", name, "error", err)
		WriteInternalError(w, "Internal error.")
		return
	}

	payload := decodeScenePayload(r)
	if payload == nil {
		WriteBadRequest(w, "Invalid parameters")
		return
	}
	payload.apply(scene)

	if err := h.store.UpdateScene(ctx, scene); err != nil {
		metrics.SceneMutations.WithLabelValues("update", "failure").Inc()
		slog.Error("Scene update failed", "scene", name, "error", err)
		WriteInternalError(w, "Internal error.")
		return
	}

	metrics.SceneMutations.WithLabelValues("update", "success").Inc()
	WriteJSON(w, http.StatusOK, sceneDoc(*scene))
}

// deleteScene removes the permission record and the scene's persisted
// objects. A failed object purge is logged but does not resurrect the
// already-deleted record.
func (h *Handler) deleteScene(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()

	if err := h.store.DeleteScene(ctx, name); err != nil {
		if errors.Is(err, perms.ErrNotFound) {
			WriteNotFound(w, "The scene does not exist")
			return
		}
		metrics.SceneMutations.WithLabelValues("delete", "failure").Inc()
		slog.Error("Scene delete failed", "scene", name, "error", err)
		WriteInternalError(w, "Internal error.")
		return
	}

	if h.objects != nil {
		if err := h.objects.DeleteSceneObjects(ctx, name); err != nil {
			slog.Warn("Persisted object delete failed", "scene", name, "error", err)
		}
	}

	metrics.SceneMutations.WithLabelValues("delete", "success").Inc()
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Scene was deleted successfully!"})
}

func decodeScenePayload(r *http.Request) *scenePayload {
	if r.Body == nil {
		return nil
	}
	var payload scenePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil
	}
	return &payload
}
