// Package evaluator turns an identity plus a request target into the
// publish/subscribe topic permission lists embedded in a credential token.
package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.scenegrid.dev/internal/auth"
	"go.scenegrid.dev/internal/common/metrics"
	"go.scenegrid.dev/internal/ids"
	"go.scenegrid.dev/internal/perms"
	"go.scenegrid.dev/internal/topics"
)

// ErrAnonymousDenied is the one hard-deny outcome: an unauthenticated
// caller targeting a scene whose effective anonymous_users flag is false.
// Every other lookup failure falls open to the documented defaults.
var ErrAnonymousDenied = errors.New("authentication required for this scene")

// DefaultLookupTimeout bounds each permission store call. A slow store
// degrades to defaults rather than blocking token issuance.
const DefaultLookupTimeout = 2 * time.Second

// Request is one evaluation: a resolved identity asking for a credential
// scoped to a scene, a device, or nothing (a monitoring viewpoint).
type Request struct {
	Identity auth.Identity
	Realm    string

	// Scene is the "namespace/id" target, empty when untargeted. Device
	// selects device-token mode instead; the two are mutually exclusive.
	Scene  string
	Device string

	Version topics.Version
	IDs     ids.Generated

	// AvatarRequested mirrors whether any avatar placeholder id was asked
	// for. It gates the conference extension, not the topic grants.
	AvatarRequested bool
}

// Result is the grant set for one credential.
type Result struct {
	Publish   []string
	Subscribe []string

	// Flags are the effective scene flags the decision was made under:
	// the stored record's, or the defaults when no record was usable.
	Flags perms.SceneFlags

	// Conference reports that the token should carry conferencing claims:
	// video_conference and users enabled plus a requested avatar.
	Conference bool
}

// Evaluator derives topic grants from permission records. It is stateless;
// one instance serves all requests.
type Evaluator struct {
	store   perms.Store
	timeout time.Duration
}

// New creates an evaluator over the given permission store.
func New(store perms.Store, timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Evaluator{store: store, timeout: timeout}
}

// Evaluate computes the topic grants for one request. The only error
// besides an unsupported version is ErrAnonymousDenied; store failures
// degrade to defaults and are logged.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	g, err := topics.ForVersion(req.Version)
	if err != nil {
		return nil, err
	}

	if req.Device != "" {
		return e.evaluateDevice(ctx, g, req)
	}
	return e.evaluateScene(ctx, g, req)
}

// evaluateDevice grants full access to one device subtree and nothing
// else. Device credentials need an authenticated caller with authority
// over the device's namespace.
func (e *Evaluator) evaluateDevice(ctx context.Context, g topics.Grammar, req Request) (*Result, error) {
	res := &Result{Flags: perms.DefaultSceneFlags()}

	if req.Identity.Authenticated && e.ownsNamespace(ctx, req.Identity, deviceNamespace(req.Device)) {
		pubs, subs := g.DeviceAccess(req.Realm, req.Device)
		res.Publish = append(res.Publish, pubs...)
		res.Subscribe = append(res.Subscribe, subs...)
	}

	pubs, subs := g.NetworkAccess(true)
	res.Publish = append(res.Publish, pubs...)
	res.Subscribe = append(res.Subscribe, subs...)

	res.normalize()
	return res, nil
}

func (e *Evaluator) evaluateScene(ctx context.Context, g topics.Grammar, req Request) (*Result, error) {
	flags := e.effectiveFlags(ctx, req.Scene)

	// The single fail-closed branch.
	if req.Scene != "" && !req.Identity.Authenticated && !flags.AnonymousUsers {
		return nil, ErrAnonymousDenied
	}

	res := &Result{Flags: flags}
	add := func(pubs, subs []string) {
		res.Publish = append(res.Publish, pubs...)
		res.Subscribe = append(res.Subscribe, subs...)
	}

	// Rule 1: everyone reads the public namespace.
	add(nil, g.PublicReadSubs(req.Realm))

	switch {
	case req.Identity.Privileged():
		// Rule 3: staff see and write everything.
		add(g.AllScenesAccess(req.Realm))
		add(g.AllDevicesAccess(req.Realm))
		if req.Scene != "" {
			add(g.TargetDiagnosticsPubs(req.Realm, req.Scene), nil)
		}

	case req.Identity.Authenticated:
		// Rule 4: own namespace plus granted namespaces and scenes.
		add(g.NamespaceAccess(req.Realm, req.Identity.Username))
		for _, ns := range e.grantList(ctx, "namespace_editors", e.store.NamespacesEditableBy, req.Identity.Username) {
			add(g.NamespaceAccess(req.Realm, ns))
		}
		for _, ns := range e.grantList(ctx, "namespace_viewers", e.store.NamespacesViewableBy, req.Identity.Username) {
			add(nil, g.NamespaceReadSubs(req.Realm, ns))
		}
		for _, scene := range e.grantList(ctx, "scene_editors", e.store.ScenesEditableBy, req.Identity.Username) {
			add(g.SceneAccess(req.Realm, scene))
		}
		for _, scene := range e.grantList(ctx, "scene_viewers", e.store.ScenesViewableBy, req.Identity.Username) {
			_, subs := g.SceneAccess(req.Realm, scene)
			add(nil, subs)
		}
	}

	if req.Scene != "" {
		// Rule 5: targeted scene under its effective flags.
		if flags.PublicRead {
			add(nil, g.SceneReadSubs(req.Realm, req.Scene, req.IDs.UserClient))
		}
		if flags.PublicWrite {
			add(g.SceneWritePubs(req.Realm, req.Scene, req.IDs.UserClient), nil)
		}
		if flags.Users {
			add(g.AvatarPubs(req.Realm, req.Scene, req.IDs.CamID, req.IDs.HandLeftID, req.IDs.HandRightID), nil)
			// Rule 6: presence and chat channels.
			add(g.PresenceAccess(req.Realm, req.Scene, req.IDs.UserID, req.IDs.UserClient))
		}

		// Rule 7: capability hosts get their channel on explicit request
		// alone, independent of the users flag.
		if req.IDs.RenderFusionID != "" {
			add(g.RenderFusionAccess(req.Realm, req.Scene, req.IDs.UserClient))
		}
		if req.IDs.EnvironmentID != "" {
			add(g.EnvironmentAccess(req.Realm, req.Scene, req.IDs.UserClient))
		}

		res.Conference = flags.VideoConference && flags.Users && req.AvatarRequested
	}

	// Rule 8: system topics.
	add(g.AprilTagAccess(req.Realm, req.Identity.Authenticated))
	add(g.RuntimeAccess(req.Realm, req.IDs.UserClient))
	add(g.NetworkAccess(req.Scene != ""))

	// Rule 9.
	res.normalize()
	return res, nil
}

// effectiveFlags resolves the flags the decision runs under: the stored
// scene record's, or the defaults when the record is absent or the store
// is unreachable.
func (e *Evaluator) effectiveFlags(ctx context.Context, scene string) perms.SceneFlags {
	if scene == "" {
		return perms.DefaultSceneFlags()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	record, err := e.store.LookupScene(ctx, scene)
	if err != nil {
		if errors.Is(err, perms.ErrNotFound) {
			metrics.PermLookups.WithLabelValues("scene", "miss").Inc()
		} else {
			metrics.PermLookups.WithLabelValues("scene", "error").Inc()
			slog.Warn("scene lookup failed, using default flags", "scene", scene, "error", err)
		}
		return perms.DefaultSceneFlags()
	}
	metrics.PermLookups.WithLabelValues("scene", "hit").Inc()
	return record.Flags
}

// grantList fetches one grant list, degrading to empty on store failure.
func (e *Evaluator) grantList(ctx context.Context, kind string, fetch func(context.Context, string) ([]string, error), username string) []string {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	names, err := fetch(ctx, username)
	if err != nil {
		metrics.PermLookups.WithLabelValues(kind, "error").Inc()
		slog.Warn("grant lookup failed, treating as empty", "kind", kind, "username", username, "error", err)
		return nil
	}
	metrics.PermLookups.WithLabelValues(kind, "hit").Inc()
	return names
}

// ownsNamespace reports whether the identity may issue device credentials
// in a namespace: staff, the namespace's implicit owner, or an editor.
func (e *Evaluator) ownsNamespace(ctx context.Context, id auth.Identity, ns string) bool {
	if id.Privileged() || id.Username == ns {
		return true
	}
	for _, granted := range e.grantList(ctx, "namespace_editors", e.store.NamespacesEditableBy, id.Username) {
		if granted == ns {
			return true
		}
	}
	return false
}

func (r *Result) normalize() {
	r.Publish = topics.Clean(r.Publish)
	r.Subscribe = topics.Clean(r.Subscribe)
}

func deviceNamespace(device string) string {
	if i := strings.Index(device, "/"); i >= 0 {
		return device[:i]
	}
	return device
}
