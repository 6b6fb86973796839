package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.scenegrid.dev/internal/auth"
	"go.scenegrid.dev/internal/perms"
)

// canAdministerNamespace reports whether the identity may manage resources
// in a namespace: staff, the implicit owner, or a granted editor.
func (h *Handler) canAdministerNamespace(ctx context.Context, id auth.Identity, ns string) bool {
	if !id.Authenticated {
		return false
	}
	if id.Privileged() || id.Username == ns {
		return true
	}

	rec, err := h.store.LookupNamespace(ctx, ns)
	if err != nil {
		if !errors.Is(err, perms.ErrNotFound) {
			slog.Warn("Namespace lookup failed", "namespace", ns, "error", err)
		}
		return false
	}
	return contains(rec.Editors, id.Username)
}

// canEditScene reports whether the identity may manage a scene's permission
// record: staff, the namespace owner, a scene editor, or a namespace editor.
func (h *Handler) canEditScene(ctx context.Context, id auth.Identity, scene string) bool {
	if !id.Authenticated {
		return false
	}
	if id.Privileged() || strings.HasPrefix(scene, id.Username+"/") {
		return true
	}

	rec, err := h.store.LookupScene(ctx, scene)
	if err == nil && contains(rec.Editors, id.Username) {
		return true
	}
	if err != nil && !errors.Is(err, perms.ErrNotFound) {
		slog.Warn("Scene lookup failed", "scene", scene, "error", err)
	}

	return h.canAdministerNamespace(ctx, id, namespaceOf(scene))
}

func namespaceOf(name string) string {
	if i := strings.Index(name, "/"); i >= 0 {
		return name[:i]
	}
	return name
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
