// Package perms holds the ownership/sharing permission records for
// namespaces, scenes and devices, and their relational store adapter.
package perms

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned when a permission record does not exist. Most
// callers treat it as "fall back to defaults", not as a failure.
var ErrNotFound = errors.New("record not found")

// Name grammars. A namespace is a single path segment; scenes and devices
// are "namespace/id".
var (
	NamespaceRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	NamedRe     = regexp.MustCompile(`^[a-zA-Z0-9_-]+/[a-zA-Z0-9_-]+$`)
)

// Scene permission defaults. These apply whenever a scene has no stored
// record: an unregistered scene is usable under public defaults.
// Tests pin this behavior; anonymous_users is the only flag that denies.
const (
	DefaultPublicRead      = true
	DefaultPublicWrite     = false
	DefaultAnonymousUsers  = true
	DefaultVideoConference = true
	DefaultUsers           = true
)

// SceneFlags is the per-scene policy. Fixed shape, never an open map.
type SceneFlags struct {
	PublicRead      bool `json:"public_read"`
	PublicWrite     bool `json:"public_write"`
	AnonymousUsers  bool `json:"anonymous_users"`
	VideoConference bool `json:"video_conference"`
	Users           bool `json:"users"`
}

// DefaultSceneFlags returns the documented public-access defaults.
func DefaultSceneFlags() SceneFlags {
	return SceneFlags{
		PublicRead:      DefaultPublicRead,
		PublicWrite:     DefaultPublicWrite,
		AnonymousUsers:  DefaultAnonymousUsers,
		VideoConference: DefaultVideoConference,
		Users:           DefaultUsers,
	}
}

// IsDefault reports whether the flags equal the defaults: a stored record
// carrying default flags and no grants is redundant and may be pruned.
func (f SceneFlags) IsDefault() bool {
	return f == DefaultSceneFlags()
}

// Namespace is a top-level ownership partition. The user whose username
// equals the namespace name is its implicit owner.
type Namespace struct {
	Name    string   `json:"name"`
	Editors []string `json:"editors"`
	Viewers []string `json:"viewers"`
}

// IsDefault reports whether the namespace record carries no grants.
func (n Namespace) IsDefault() bool {
	return len(n.Editors) == 0 && len(n.Viewers) == 0
}

// Scene is a collaborative space "namespace/id" with its own policy flags.
type Scene struct {
	Name         string     `json:"name"`
	Summary      string     `json:"summary"`
	Editors      []string   `json:"editors"`
	Viewers      []string   `json:"viewers"`
	CreationDate time.Time  `json:"creation_date"`
	Flags        SceneFlags `json:"-"`
}

// IsDefault reports whether the record is redundant: default flags and no
// editor/viewer grants.
func (s Scene) IsDefault() bool {
	return s.Flags.IsDefault() && len(s.Editors) == 0 && len(s.Viewers) == 0
}

// Namespace returns the namespace portion of the scene name.
func (s Scene) Namespace() string { return namespaceOf(s.Name) }

// SceneID returns the id portion of the scene name.
func (s Scene) SceneID() string { return idOf(s.Name) }

// NewScene returns a scene record with default flags.
func NewScene(name string) Scene {
	return Scene{Name: name, Flags: DefaultSceneFlags()}
}

// Device is a physical endpoint "namespace/id". Ownership is purely
// namespace-prefix based; there are no per-device flags.
type Device struct {
	Name         string    `json:"name"`
	Summary      string    `json:"summary"`
	CreationDate time.Time `json:"creation_date"`
}

// Namespace returns the namespace portion of the device name.
func (d Device) Namespace() string { return namespaceOf(d.Name) }

// Account is a local user record.
type Account struct {
	Username    string
	FullName    string
	Email       string
	IsStaff     bool
	IsSuperuser bool
}

func namespaceOf(name string) string {
	if i := strings.Index(name, "/"); i >= 0 {
		return name[:i]
	}
	return name
}

func idOf(name string) string {
	if i := strings.Index(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return ""
}
