package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"go.scenegrid.dev/internal/auth"
	"go.scenegrid.dev/internal/common/metrics"
	"go.scenegrid.dev/internal/ids"
	"go.scenegrid.dev/internal/perms"
	"go.scenegrid.dev/internal/topics"
)

// fakeStore serves permission records from maps. A non-nil err makes every
// lookup fail, which exercises the degrade paths.
type fakeStore struct {
	scenes       map[string]*perms.Scene
	nsEditors    map[string][]string
	nsViewers    map[string][]string
	sceneEditors map[string][]string
	sceneViewers map[string][]string
	err          error
}

func (s *fakeStore) LookupScene(ctx context.Context, name string) (*perms.Scene, error) {
	if s.err != nil {
		return nil, s.err
	}
	if scene, ok := s.scenes[name]; ok {
		return scene, nil
	}
	return nil, perms.ErrNotFound
}

func (s *fakeStore) LookupNamespace(ctx context.Context, name string) (*perms.Namespace, error) {
	return nil, perms.ErrNotFound
}

func (s *fakeStore) LookupDevice(ctx context.Context, name string) (*perms.Device, error) {
	return nil, perms.ErrNotFound
}

func (s *fakeStore) NamespacesEditableBy(ctx context.Context, username string) ([]string, error) {
	return s.nsEditors[username], s.err
}

func (s *fakeStore) NamespacesViewableBy(ctx context.Context, username string) ([]string, error) {
	return s.nsViewers[username], s.err
}

func (s *fakeStore) ScenesEditableBy(ctx context.Context, username string) ([]string, error) {
	return s.sceneEditors[username], s.err
}

func (s *fakeStore) ScenesViewableBy(ctx context.Context, username string) ([]string, error) {
	return s.sceneViewers[username], s.err
}

func (s *fakeStore) AllNamespaces(ctx context.Context) ([]perms.Namespace, error) { return nil, nil }
func (s *fakeStore) AllScenes(ctx context.Context) ([]perms.Scene, error)         { return nil, nil }
func (s *fakeStore) ScenesInNamespaces(ctx context.Context, namespaces []string) ([]perms.Scene, error) {
	return nil, nil
}
func (s *fakeStore) AccountBySocialUID(ctx context.Context, uid string) (*perms.Account, error) {
	return nil, perms.ErrNotFound
}
func (s *fakeStore) AccountsExist(ctx context.Context, usernames []string) (map[string]bool, error) {
	return nil, nil
}
func (s *fakeStore) CreateScene(ctx context.Context, scene *perms.Scene) error { return nil }
func (s *fakeStore) UpdateScene(ctx context.Context, scene *perms.Scene) error { return nil }
func (s *fakeStore) DeleteScene(ctx context.Context, name string) error        { return nil }
func (s *fakeStore) Ping(ctx context.Context) error                            { return s.err }

func testIDs(username string) ids.Generated {
	userID := username + "_0000000001"
	return ids.Generated{
		UserID:     userID,
		UserClient: userID + "_web",
		CamID:      userID,
	}
}

func evaluate(t *testing.T, store perms.Store, req Request) *Result {
	t.Helper()
	res, err := New(store, time.Second).Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return res
}

func containsTopic(list []string, topic string) bool {
	for _, t := range list {
		if t == topic {
			return true
		}
	}
	return false
}

// covered reports that every granted pattern in sub is matched by some
// pattern in super.
func covered(super, sub []string) bool {
	for _, s := range sub {
		ok := false
		for _, p := range super {
			if p == s || topics.MatchesSubscription(p, s) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func TestStaffSuperiority(t *testing.T) {
	store := &fakeStore{}
	base := Request{
		Realm:           "realm",
		Scene:           "alice/gallery",
		Version:         topics.V2,
		IDs:             testIDs("alice"),
		AvatarRequested: true,
	}

	userReq := base
	userReq.Identity = auth.Identity{Authenticated: true, Username: "alice"}
	userRes := evaluate(t, store, userReq)

	staffReq := base
	staffReq.Identity = auth.Identity{Authenticated: true, Username: "root", IsStaff: true}
	staffRes := evaluate(t, store, staffReq)

	if !covered(staffRes.Publish, userRes.Publish) {
		t.Errorf("staff publish %v does not cover user publish %v", staffRes.Publish, userRes.Publish)
	}
	if !covered(staffRes.Subscribe, userRes.Subscribe) {
		t.Errorf("staff subscribe %v does not cover user subscribe %v", staffRes.Subscribe, userRes.Subscribe)
	}
	if !containsTopic(staffRes.Publish, "realm/s/#") {
		t.Errorf("staff publish %v missing global scene wildcard", staffRes.Publish)
	}
	if !containsTopic(staffRes.Subscribe, "realm/s/#") {
		t.Errorf("staff subscribe %v missing global scene wildcard", staffRes.Subscribe)
	}
}

func TestAnonymousGate(t *testing.T) {
	store := &fakeStore{scenes: map[string]*perms.Scene{
		"dave/private": {
			Name: "dave/private",
			Flags: perms.SceneFlags{
				PublicRead:     true,
				PublicWrite:    true,
				AnonymousUsers: false,
				Users:          true,
			},
		},
	}}

	req := Request{
		Identity: auth.Identity{Authenticated: false, Username: "anonymous-bob12"},
		Realm:    "realm",
		Scene:    "dave/private",
		Version:  topics.V2,
		IDs:      testIDs("anonymous-bob12"),
	}

	_, err := New(store, time.Second).Evaluate(context.Background(), req)
	if !errors.Is(err, ErrAnonymousDenied) {
		t.Fatalf("Evaluate() error = %v, want ErrAnonymousDenied", err)
	}

	// The same scene admits the same anonymous caller once the flag is on.
	store.scenes["dave/private"].Flags.AnonymousUsers = true
	if _, err := New(store, time.Second).Evaluate(context.Background(), req); err != nil {
		t.Fatalf("Evaluate() after enabling anonymous_users error = %v", err)
	}
}

func TestDefaultFallback(t *testing.T) {
	req := Request{
		Identity: auth.Identity{Authenticated: false, Username: "anonymous-carol"},
		Realm:    "realm",
		Scene:    "nobody/unregistered",
		Version:  topics.V2,
		IDs:      testIDs("anonymous-carol"),
	}

	missing := evaluate(t, &fakeStore{}, req)

	explicit := evaluate(t, &fakeStore{scenes: map[string]*perms.Scene{
		"nobody/unregistered": {Name: "nobody/unregistered", Flags: perms.DefaultSceneFlags()},
	}}, req)

	if len(missing.Publish) != len(explicit.Publish) || !covered(missing.Publish, explicit.Publish) {
		t.Errorf("missing-record publish %v != explicit-default publish %v", missing.Publish, explicit.Publish)
	}
	if len(missing.Subscribe) != len(explicit.Subscribe) || !covered(missing.Subscribe, explicit.Subscribe) {
		t.Errorf("missing-record subscribe %v != explicit-default subscribe %v", missing.Subscribe, explicit.Subscribe)
	}
	if missing.Flags != perms.DefaultSceneFlags() {
		t.Errorf("flags = %+v, want defaults", missing.Flags)
	}
}

func TestStoreFailureFallsOpen(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}

	res := evaluate(t, store, Request{
		Identity: auth.Identity{Authenticated: true, Username: "alice"},
		Realm:    "realm",
		Scene:    "bob/lobby",
		Version:  topics.V2,
		IDs:      testIDs("alice"),
	})

	// Defaults grant public read on the targeted scene.
	if !containsTopic(res.Subscribe, "realm/s/bob/lobby/+/+") {
		t.Errorf("subscribe %v missing default public read", res.Subscribe)
	}
	if res.Flags != perms.DefaultSceneFlags() {
		t.Errorf("flags = %+v, want defaults", res.Flags)
	}
}

func TestEditorGrantOnForeignScene(t *testing.T) {
	store := &fakeStore{
		sceneEditors: map[string][]string{"carol": {"dave/stage"}},
	}

	res := evaluate(t, store, Request{
		Identity: auth.Identity{Authenticated: true, Username: "carol"},
		Realm:    "realm",
		Scene:    "dave/stage",
		Version:  topics.V2,
		IDs:      testIDs("carol"),
	})

	if !containsTopic(res.Publish, "realm/s/dave/stage/#") {
		t.Errorf("publish %v missing editor grant on dave/stage", res.Publish)
	}
	if !containsTopic(res.Subscribe, "realm/s/dave/stage/#") {
		t.Errorf("subscribe %v missing editor grant on dave/stage", res.Subscribe)
	}
}

func TestViewerGrantIsReadOnly(t *testing.T) {
	store := &fakeStore{
		sceneViewers: map[string][]string{"carol": {"dave/stage"}},
	}

	res := evaluate(t, store, Request{
		Identity: auth.Identity{Authenticated: true, Username: "carol"},
		Realm:    "realm",
		Version:  topics.V2,
		IDs:      testIDs("carol"),
	})

	if !containsTopic(res.Subscribe, "realm/s/dave/stage/#") {
		t.Errorf("subscribe %v missing viewer grant", res.Subscribe)
	}
	if containsTopic(res.Publish, "realm/s/dave/stage/#") {
		t.Errorf("publish %v carries write access from a viewer grant", res.Publish)
	}
}

func TestNamespaceViewerGrant(t *testing.T) {
	store := &fakeStore{
		nsViewers: map[string][]string{"carol": {"dave"}},
	}

	res := evaluate(t, store, Request{
		Identity: auth.Identity{Authenticated: true, Username: "carol"},
		Realm:    "realm",
		Version:  topics.V2,
		IDs:      testIDs("carol"),
	})

	if !containsTopic(res.Subscribe, "realm/s/dave/#") {
		t.Errorf("subscribe %v missing namespace viewer grant", res.Subscribe)
	}
	if containsTopic(res.Publish, "realm/s/dave/#") {
		t.Errorf("publish %v carries write access from a namespace viewer grant", res.Publish)
	}
}

func TestDeviceMode(t *testing.T) {
	store := &fakeStore{}

	res := evaluate(t, store, Request{
		Identity: auth.Identity{Authenticated: true, Username: "alice"},
		Realm:    "realm",
		Device:   "alice/sensor1",
		Version:  topics.V2,
		IDs:      testIDs("alice"),
	})

	if !containsTopic(res.Publish, "realm/d/alice/sensor1/#") {
		t.Errorf("publish %v missing device subtree", res.Publish)
	}
	if !containsTopic(res.Subscribe, "realm/d/alice/sensor1/#") {
		t.Errorf("subscribe %v missing device subtree", res.Subscribe)
	}
	for _, topic := range res.Publish {
		if topic != "$NETWORK/latency" && len(topic) > 7 && topic[:7] == "realm/s" {
			t.Errorf("device credential carries scene topic %q", topic)
		}
	}
}

func TestDeviceModeForeignNamespaceDenied(t *testing.T) {
	store := &fakeStore{}

	res := evaluate(t, store, Request{
		Identity: auth.Identity{Authenticated: true, Username: "mallory"},
		Realm:    "realm",
		Device:   "alice/sensor1",
		Version:  topics.V2,
		IDs:      testIDs("mallory"),
	})

	if containsTopic(res.Publish, "realm/d/alice/sensor1/#") {
		t.Errorf("publish %v grants a foreign device subtree", res.Publish)
	}
}

func TestDeviceModeNamespaceEditor(t *testing.T) {
	store := &fakeStore{
		nsEditors: map[string][]string{"carol": {"alice"}},
	}

	res := evaluate(t, store, Request{
		Identity: auth.Identity{Authenticated: true, Username: "carol"},
		Realm:    "realm",
		Device:   "alice/sensor1",
		Version:  topics.V2,
		IDs:      testIDs("carol"),
	})

	if !containsTopic(res.Publish, "realm/d/alice/sensor1/#") {
		t.Errorf("publish %v missing device subtree for namespace editor", res.Publish)
	}
}

func TestNetworkMetricsOnlyUntargeted(t *testing.T) {
	store := &fakeStore{}
	identity := auth.Identity{Authenticated: true, Username: "alice"}

	untargeted := evaluate(t, store, Request{
		Identity: identity, Realm: "realm", Version: topics.V2, IDs: testIDs("alice"),
	})
	if !containsTopic(untargeted.Subscribe, "$NETWORK") {
		t.Errorf("untargeted subscribe %v missing $NETWORK", untargeted.Subscribe)
	}

	targeted := evaluate(t, store, Request{
		Identity: identity, Realm: "realm", Scene: "alice/home", Version: topics.V2, IDs: testIDs("alice"),
	})
	if containsTopic(targeted.Subscribe, "$NETWORK") {
		t.Errorf("targeted subscribe %v carries $NETWORK", targeted.Subscribe)
	}
	if !containsTopic(targeted.Publish, "$NETWORK/latency") {
		t.Errorf("publish %v missing latency topic", targeted.Publish)
	}
}

func TestCapabilityTopicsRequireRequest(t *testing.T) {
	store := &fakeStore{}
	req := Request{
		Identity: auth.Identity{Authenticated: true, Username: "host"},
		Realm:    "realm",
		Scene:    "alice/gallery",
		Version:  topics.V2,
		IDs:      testIDs("host"),
	}

	plain := evaluate(t, store, req)
	for _, topic := range plain.Publish {
		if containsMsgType(topic, "r") || containsMsgType(topic, "e") {
			t.Errorf("unrequested capability topic %q granted", topic)
		}
	}

	req.IDs.RenderFusionID = "-"
	withRF := evaluate(t, store, req)
	want := "realm/s/alice/gallery/r/" + req.IDs.UserClient
	if !containsTopic(withRF.Publish, want) {
		t.Errorf("publish %v missing render-fusion topic %q", withRF.Publish, want)
	}
}

// containsMsgType reports whether a v2 scene topic's msgtype level equals mt.
func containsMsgType(topic, mt string) bool {
	segs := splitTopic(topic)
	return len(segs) >= 5 && segs[1] == "s" && segs[4] == mt
}

func splitTopic(topic string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(topic); i++ {
		if i == len(topic) || topic[i] == '/' {
			segs = append(segs, topic[start:i])
			start = i + 1
		}
	}
	return segs
}

func TestConferenceFlag(t *testing.T) {
	store := &fakeStore{scenes: map[string]*perms.Scene{
		"alice/quiet": {
			Name: "alice/quiet",
			Flags: perms.SceneFlags{
				PublicRead:     true,
				AnonymousUsers: true,
				Users:          true,
			},
		},
	}}

	base := Request{
		Identity:        auth.Identity{Authenticated: true, Username: "alice"},
		Realm:           "realm",
		Version:         topics.V2,
		IDs:             testIDs("alice"),
		AvatarRequested: true,
	}

	// Defaults have video_conference and users on.
	withDefaults := base
	withDefaults.Scene = "alice/gallery"
	if res := evaluate(t, store, withDefaults); !res.Conference {
		t.Error("conference not flagged under default flags with avatar")
	}

	noVideo := base
	noVideo.Scene = "alice/quiet"
	if res := evaluate(t, store, noVideo); res.Conference {
		t.Error("conference flagged on scene with video_conference disabled")
	}

	noAvatar := base
	noAvatar.Scene = "alice/gallery"
	noAvatar.AvatarRequested = false
	if res := evaluate(t, store, noAvatar); res.Conference {
		t.Error("conference flagged without a requested avatar")
	}
}

func TestUnsupportedVersion(t *testing.T) {
	_, err := New(&fakeStore{}, time.Second).Evaluate(context.Background(), Request{
		Identity: auth.Identity{Authenticated: true, Username: "alice"},
		Realm:    "realm",
		Version:  topics.Version("v3"),
	})
	if !errors.Is(err, topics.ErrUnsupportedVersion) {
		t.Errorf("Evaluate() error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestPermLookupsCounted(t *testing.T) {
	store := &fakeStore{
		scenes: map[string]*perms.Scene{
			"alice/gallery": {Name: "alice/gallery", Flags: perms.DefaultSceneFlags()},
		},
	}

	hits := metrics.PermLookups.WithLabelValues("scene", "hit")
	misses := metrics.PermLookups.WithLabelValues("scene", "miss")
	hitsBefore := testutil.ToFloat64(hits)
	missesBefore := testutil.ToFloat64(misses)

	evaluate(t, store, Request{
		Identity: auth.Identity{Username: "anonymous-eve"},
		Realm:    "realm",
		Scene:    "alice/gallery",
		Version:  topics.V2,
	})
	evaluate(t, store, Request{
		Identity: auth.Identity{Username: "anonymous-eve"},
		Realm:    "realm",
		Scene:    "alice/unrecorded",
		Version:  topics.V2,
	})

	if got := testutil.ToFloat64(hits) - hitsBefore; got != 1 {
		t.Errorf("scene hit delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(misses) - missesBefore; got != 1 {
		t.Errorf("scene miss delta = %v, want 1", got)
	}
}

func TestAnonymousWriteGrantsCollapse(t *testing.T) {
	// A writable scene grants both the client-tag object topic and its
	// subtree; only the subtree wildcard may survive in the token.
	store := &fakeStore{
		scenes: map[string]*perms.Scene{
			"dave/open": {Name: "dave/open", Flags: perms.SceneFlags{
				PublicRead:     true,
				PublicWrite:    true,
				AnonymousUsers: true,
				Users:          true,
			}},
		},
	}

	uid := "anonymous-eve_0000000001"
	res := evaluate(t, store, Request{
		Identity: auth.Identity{Username: "anonymous-eve"},
		Realm:    "realm",
		Scene:    "dave/open",
		Version:  topics.V2,
		IDs:      ids.Generated{UserID: uid, UserClient: uid + "_web"},
	})

	if containsTopic(res.Publish, "realm/s/dave/open/o/"+uid+"_web") {
		t.Errorf("publish %v retains the parent of a granted subtree", res.Publish)
	}
	if !containsTopic(res.Publish, "realm/s/dave/open/o/"+uid+"_web/#") {
		t.Errorf("publish %v lacks the object subtree grant", res.Publish)
	}
	for _, list := range [][]string{res.Publish, res.Subscribe} {
		for i, a := range list {
			for j, b := range list {
				if i != j && topics.MatchesSubscription(a, b) {
					t.Errorf("retained %q is covered by %q", b, a)
				}
			}
		}
	}
}

func TestResultIsNormalized(t *testing.T) {
	store := &fakeStore{
		sceneEditors: map[string][]string{"alice": {"alice/gallery"}},
	}

	res := evaluate(t, store, Request{
		Identity: auth.Identity{Authenticated: true, Username: "alice"},
		Realm:    "realm",
		Scene:    "alice/gallery",
		Version:  topics.V2,
		IDs:      testIDs("alice"),
	})

	// The per-scene editor grant is covered by the own-namespace wildcard.
	if containsTopic(res.Publish, "realm/s/alice/gallery/#") {
		t.Errorf("publish %v retains a covered scene grant", res.Publish)
	}
	for _, list := range [][]string{res.Publish, res.Subscribe} {
		for i, a := range list {
			for j, b := range list {
				if i != j && topics.MatchesSubscription(a, b) {
					t.Errorf("retained %q is covered by %q", b, a)
				}
			}
		}
	}
}
