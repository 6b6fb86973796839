package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.scenegrid.dev/internal/perms"
)

// UserStateResponse is the identity echo body.
type UserStateResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	Fullname      string `json:"fullname,omitempty"`
	Email         string `json:"email,omitempty"`
	Type          string `json:"type,omitempty"`
	IsStaff       bool   `json:"is_staff,omitempty"`
}

// NamespaceDoc is a namespace permission record as the profile endpoints
// render it. Account reports whether a local user of that name exists.
type NamespaceDoc struct {
	Name    string   `json:"name"`
	Editors []string `json:"editors"`
	Viewers []string `json:"viewers"`
	Account bool     `json:"account"`
}

// SceneDoc is a scene permission record with its flags flattened into the
// document, matching the shape clients already consume.
type SceneDoc struct {
	Name            string    `json:"name"`
	Summary         string    `json:"summary"`
	Editors         []string  `json:"editors"`
	Viewers         []string  `json:"viewers"`
	CreationDate    time.Time `json:"creation_date"`
	PublicRead      bool      `json:"public_read"`
	PublicWrite     bool      `json:"public_write"`
	AnonymousUsers  bool      `json:"anonymous_users"`
	VideoConference bool      `json:"video_conference"`
	Users           bool      `json:"users"`
	Persisted       bool      `json:"persisted,omitempty"`
}

func sceneDoc(s perms.Scene) SceneDoc {
	return SceneDoc{
		Name:            s.Name,
		Summary:         s.Summary,
		Editors:         s.Editors,
		Viewers:         s.Viewers,
		CreationDate:    s.CreationDate,
		PublicRead:      s.Flags.PublicRead,
		PublicWrite:     s.Flags.PublicWrite,
		AnonymousUsers:  s.Flags.AnonymousUsers,
		VideoConference: s.Flags.VideoConference,
		Users:           s.Flags.Users,
	}
}

// userState echoes the caller's resolved identity.
func (h *Handler) userState(w http.ResponseWriter, r *http.Request) {
	identity, err := h.callerIdentity(r)
	if err != nil {
		WriteForbidden(w, "Identity verification failed.")
		return
	}

	if !identity.Authenticated {
		WriteJSON(w, http.StatusOK, UserStateResponse{Authenticated: false})
		return
	}

	authType := "google"
	if strings.HasPrefix(identity.Username, "admin") {
		authType = "local"
	}
	WriteJSON(w, http.StatusOK, UserStateResponse{
		Authenticated: true,
		Username:      identity.Username,
		Fullname:      identity.FullName,
		Email:         identity.Email,
		Type:          authType,
		IsStaff:       identity.IsStaff,
	})
}

// myNamespaces lists the namespaces the caller can edit or view. Staff
// additionally see persisted namespaces that have objects but no local
// account or permission record yet.
func (h *Handler) myNamespaces(w http.ResponseWriter, r *http.Request) {
	identity, err := h.callerIdentity(r)
	if err != nil {
		WriteForbidden(w, "Identity verification failed.")
		return
	}

	ctx := r.Context()
	entries := make(map[string]NamespaceDoc)

	if identity.Authenticated {
		if identity.Privileged() {
			all, err := h.store.AllNamespaces(ctx)
			if err != nil {
				slog.Warn("Namespace listing failed", "error", err)
			}
			for _, ns := range all {
				entries[ns.Name] = NamespaceDoc{Name: ns.Name, Editors: ns.Editors, Viewers: ns.Viewers}
			}
		} else {
			for _, name := range h.grantedNamespaces(ctx, identity.Username) {
				entries[name] = h.namespaceEntry(ctx, name)
			}
		}

		// The caller's own namespace always appears, record or not.
		if _, ok := entries[identity.Username]; !ok {
			entries[identity.Username] = NamespaceDoc{Name: identity.Username}
		}

		if identity.Privileged() {
			for _, name := range h.persist.AllNamespaces(ctx) {
				if _, ok := entries[name]; !ok {
					entries[name] = NamespaceDoc{Name: name}
				}
			}
		}
	}

	docs := make([]NamespaceDoc, 0, len(entries))
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	accounts, err := h.store.AccountsExist(ctx, names)
	if err != nil {
		slog.Warn("Account existence lookup failed", "error", err)
		accounts = nil
	}
	for _, doc := range entries {
		doc.Account = accounts[doc.Name]
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	WriteJSON(w, http.StatusOK, docs)
}

// myScenes lists the scenes the caller can edit or view, unioned with
// scenes that only exist as persisted objects.
func (h *Handler) myScenes(w http.ResponseWriter, r *http.Request) {
	identity, err := h.callerIdentity(r)
	if err != nil {
		WriteForbidden(w, "Identity verification failed.")
		return
	}

	ctx := r.Context()
	entries := make(map[string]SceneDoc)
	var persisted []string

	if identity.Authenticated {
		if identity.Privileged() {
			all, err := h.store.AllScenes(ctx)
			if err != nil {
				slog.Warn("Scene listing failed", "error", err)
			}
			for _, sc := range all {
				entries[sc.Name] = sceneDoc(sc)
			}
			persisted = h.persist.AllScenes(ctx)
		} else {
			editorNS := h.grantList(ctx, h.store.NamespacesEditableBy, identity.Username)
			viewerNS := h.grantList(ctx, h.store.NamespacesViewableBy, identity.Username)

			owned := append([]string{identity.Username}, editorNS...)
			owned = append(owned, viewerNS...)
			scenes, err := h.store.ScenesInNamespaces(ctx, owned)
			if err != nil {
				slog.Warn("Scene listing failed", "error", err)
			}
			for _, sc := range scenes {
				entries[sc.Name] = sceneDoc(sc)
			}

			granted := h.grantList(ctx, h.store.ScenesEditableBy, identity.Username)
			granted = append(granted, h.grantList(ctx, h.store.ScenesViewableBy, identity.Username)...)
			for _, name := range granted {
				if _, ok := entries[name]; !ok {
					entries[name] = h.sceneEntry(ctx, name)
				}
			}

			persisted = h.persist.ScenesUnderNamespaces(ctx, owned)
		}

		persistedSet := make(map[string]bool, len(persisted))
		for _, name := range persisted {
			persistedSet[name] = true
			if _, ok := entries[name]; !ok {
				doc := sceneDoc(perms.NewScene(name))
				entries[name] = doc
			}
		}
		for name, doc := range entries {
			doc.Persisted = persistedSet[name]
			entries[name] = doc
		}
	}

	docs := make([]SceneDoc, 0, len(entries))
	for _, doc := range entries {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	WriteJSON(w, http.StatusOK, docs)
}

// grantedNamespaces merges the caller's own namespace with editor and
// viewer grants.
func (h *Handler) grantedNamespaces(ctx context.Context, username string) []string {
	names := []string{username}
	names = append(names, h.grantList(ctx, h.store.NamespacesEditableBy, username)...)
	names = append(names, h.grantList(ctx, h.store.NamespacesViewableBy, username)...)
	return names
}

func (h *Handler) grantList(ctx context.Context, fn func(context.Context, string) ([]string, error), username string) []string {
	list, err := fn(ctx, username)
	if err != nil {
		slog.Warn("Grant lookup failed", "error", err)
		return nil
	}
	return list
}

func (h *Handler) namespaceEntry(ctx context.Context, name string) NamespaceDoc {
	rec, err := h.store.LookupNamespace(ctx, name)
	if err != nil {
		if !errors.Is(err, perms.ErrNotFound) {
			slog.Warn("Namespace lookup failed", "namespace", name, "error", err)
		}
		return NamespaceDoc{Name: name}
	}
	return NamespaceDoc{Name: rec.Name, Editors: rec.Editors, Viewers: rec.Viewers}
}

func (h *Handler) sceneEntry(ctx context.Context, name string) SceneDoc {
	rec, err := h.store.LookupScene(ctx, name)
	if err != nil {
		if !errors.Is(err, perms.ErrNotFound) {
			slog.Warn("Scene lookup failed", "scene", name, "error", err)
		}
		return sceneDoc(perms.NewScene(name))
	}
	return sceneDoc(*rec)
}
