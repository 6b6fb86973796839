package topics

import "errors"

// Version selects which topic layout a request uses.
type Version string

const (
	// V1 is the original flat layout: per-kind prefixes (s, env, d, c)
	// with whole-scene wildcards.
	V1 Version = "v1"
	// V2 is the scene-spine layout:
	// {realm}/s/{ns}/{scene}/{msgtype}/{clientTag}[/{toUid}][/#].
	V2 Version = "v2"
)

// SupportedVersions lists the versions a request may negotiate, preferred
// version first.
var SupportedVersions = []Version{V2, V1}

// ErrUnsupportedVersion is returned for a declared version with no grammar.
var ErrUnsupportedVersion = errors.New("unsupported topic structure version")

// PublicNamespace is the namespace whose scenes every credential may read.
const PublicNamespace = "public"

// Grammar renders topic patterns for one protocol version. The evaluator
// holds the access rules; a Grammar only knows how to spell them. Scene and
// device arguments are full "namespace/id" names.
type Grammar interface {
	Version() Version

	// PublicReadSubs grants every scene credential read access to the
	// public namespace.
	PublicReadSubs(realm string) []string

	// DeviceAccess grants full read/write on one device's subtree.
	DeviceAccess(realm, device string) (pubs, subs []string)

	// AllScenesAccess and AllDevicesAccess are the staff wildcards.
	AllScenesAccess(realm string) (pubs, subs []string)
	AllDevicesAccess(realm string) (pubs, subs []string)

	// TargetDiagnosticsPubs are extra staff publish topics scoped to the
	// requested scene. Empty on versions without them.
	TargetDiagnosticsPubs(realm, scene string) []string

	// NamespaceAccess grants read/write over a whole namespace (scenes,
	// environment, devices). NamespaceReadSubs is the viewer half; empty
	// on versions without namespace viewer grants.
	NamespaceAccess(realm, ns string) (pubs, subs []string)
	NamespaceReadSubs(realm, ns string) []string

	// SceneAccess grants read/write on a single scene (editor grants).
	SceneAccess(realm, scene string) (pubs, subs []string)

	// SceneReadSubs and SceneWritePubs are the public_read/public_write
	// grants on a targeted scene, scoped to the caller's client tag where
	// the layout supports it.
	SceneReadSubs(realm, scene, userClient string) []string
	SceneWritePubs(realm, scene, userClient string) []string

	// AvatarPubs are the publish topics for the caller's requested avatar
	// placeholder objects. Empty id strings are skipped.
	AvatarPubs(realm, scene, camID, handLeftID, handRightID string) []string

	// PresenceAccess is the user presence/chat channel pair: a private
	// inbound channel keyed by the caller's id and an open broadcast
	// channel.
	PresenceAccess(realm, scene, userID, userClient string) (pubs, subs []string)

	// RenderFusionAccess and EnvironmentAccess are capability extensions:
	// write-mostly to-many publish topics with a narrow private read-back.
	RenderFusionAccess(realm, scene, userClient string) (pubs, subs []string)
	EnvironmentAccess(realm, scene, userClient string) (pubs, subs []string)

	// AprilTagAccess is the global tag registry: readable by everyone,
	// writable by authenticated users. Empty on versions without it.
	AprilTagAccess(realm string, authenticated bool) (pubs, subs []string)

	// RuntimeAccess is the runtime-manager control channel.
	RuntimeAccess(realm, userClient string) (pubs, subs []string)

	// NetworkAccess is the global latency publish, plus the network
	// metrics subscribe for untargeted (monitoring) requests.
	NetworkAccess(targeted bool) (pubs, subs []string)

	// ServiceReadAllSubs is the broad subscribe embedded in internal
	// service tokens.
	ServiceReadAllSubs(realm string) []string
}

// ForVersion returns the grammar for a declared version.
func ForVersion(v Version) (Grammar, error) {
	switch v {
	case V1:
		return v1Grammar{}, nil
	case V2:
		return v2Grammar{}, nil
	default:
		return nil, ErrUnsupportedVersion
	}
}

// Supported reports whether a declared version has a grammar.
func Supported(v Version) bool {
	_, err := ForVersion(v)
	return err == nil
}
