package perms

import "context"

// Store is the permission-lookup contract. Lookups return ErrNotFound for
// absent records and empty sets for empty grant lists; they never treat
// "not found" as a transport error.
type Store interface {
	LookupNamespace(ctx context.Context, name string) (*Namespace, error)
	LookupScene(ctx context.Context, name string) (*Scene, error)
	LookupDevice(ctx context.Context, name string) (*Device, error)

	NamespacesEditableBy(ctx context.Context, username string) ([]string, error)
	NamespacesViewableBy(ctx context.Context, username string) ([]string, error)
	ScenesEditableBy(ctx context.Context, username string) ([]string, error)
	ScenesViewableBy(ctx context.Context, username string) ([]string, error)

	// Listing views for the profile endpoints.
	AllNamespaces(ctx context.Context) ([]Namespace, error)
	AllScenes(ctx context.Context) ([]Scene, error)
	ScenesInNamespaces(ctx context.Context, namespaces []string) ([]Scene, error)

	// Accounts.
	AccountBySocialUID(ctx context.Context, uid string) (*Account, error)
	AccountsExist(ctx context.Context, usernames []string) (map[string]bool, error)

	// Scene permission record maintenance (profile API).
	CreateScene(ctx context.Context, scene *Scene) error
	UpdateScene(ctx context.Context, scene *Scene) error
	DeleteScene(ctx context.Context, name string) error

	// Ping reports store reachability for health checks.
	Ping(ctx context.Context) error
}
