package perms

import (
	"context"
	"database/sql"
	"fmt"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql. Register
// the pgx stdlib driver in the caller (lifecycle does this).
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a Postgres-backed permission store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const sceneColumns = `name, summary, creation_date,
	public_read, public_write, anonymous_users, video_conference, users_enabled`

func (s *PGStore) LookupNamespace(ctx context.Context, name string) (*Namespace, error) {
	row := s.db.QueryRowContext(ctx,
		`select name from namespaces where name=$1`, name)
	var ns Namespace
	if err := row.Scan(&ns.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var err error
	ns.Editors, err = s.grantList(ctx,
		`select username from namespace_editors where namespace=$1 order by username`, name)
	if err != nil {
		return nil, err
	}
	ns.Viewers, err = s.grantList(ctx,
		`select username from namespace_viewers where namespace=$1 order by username`, name)
	if err != nil {
		return nil, err
	}
	return &ns, nil
}

func (s *PGStore) LookupScene(ctx context.Context, name string) (*Scene, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sceneColumns+` from scenes where name=$1`, name)
	sc, err := scanScene(row)
	if err != nil {
		return nil, err
	}

	sc.Editors, err = s.grantList(ctx,
		`select username from scene_editors where scene=$1 order by username`, name)
	if err != nil {
		return nil, err
	}
	sc.Viewers, err = s.grantList(ctx,
		`select username from scene_viewers where scene=$1 order by username`, name)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *PGStore) LookupDevice(ctx context.Context, name string) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		`select name, summary, creation_date from devices where name=$1`, name)
	var d Device
	if err := row.Scan(&d.Name, &d.Summary, &d.CreationDate); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *PGStore) NamespacesEditableBy(ctx context.Context, username string) ([]string, error) {
	return s.grantList(ctx,
		`select namespace from namespace_editors where username=$1 order by namespace`, username)
}

func (s *PGStore) NamespacesViewableBy(ctx context.Context, username string) ([]string, error) {
	return s.grantList(ctx,
		`select namespace from namespace_viewers where username=$1 order by namespace`, username)
}

func (s *PGStore) ScenesEditableBy(ctx context.Context, username string) ([]string, error) {
	return s.grantList(ctx,
		`select scene from scene_editors where username=$1 order by scene`, username)
}

func (s *PGStore) ScenesViewableBy(ctx context.Context, username string) ([]string, error) {
	return s.grantList(ctx,
		`select scene from scene_viewers where username=$1 order by scene`, username)
}

func (s *PGStore) AllNamespaces(ctx context.Context) ([]Namespace, error) {
	names, err := s.grantList(ctx, `select name from namespaces order by name`)
	if err != nil {
		return nil, err
	}
	out := make([]Namespace, 0, len(names))
	for _, n := range names {
		out = append(out, Namespace{Name: n})
	}
	return out, nil
}

func (s *PGStore) AllScenes(ctx context.Context) ([]Scene, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+sceneColumns+` from scenes order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScenes(rows)
}

func (s *PGStore) ScenesInNamespaces(ctx context.Context, namespaces []string) ([]Scene, error) {
	if len(namespaces) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+sceneColumns+` from scenes where split_part(name, '/', 1) = any($1) order by name`,
		pqStringArray(namespaces))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScenes(rows)
}

func (s *PGStore) AccountBySocialUID(ctx context.Context, uid string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select a.username, a.full_name, a.email, a.is_staff, a.is_superuser
		 from accounts a join social_accounts sa on sa.username = a.username
		 where sa.uid=$1`, uid)
	return scanAccount(row)
}

func (s *PGStore) AccountsExist(ctx context.Context, usernames []string) (map[string]bool, error) {
	out := make(map[string]bool, len(usernames))
	if len(usernames) == 0 {
		return out, nil
	}
	for _, u := range usernames {
		out[u] = false
	}
	rows, err := s.db.QueryContext(ctx,
		`select username from accounts where username = any($1)`,
		pqStringArray(usernames))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out[u] = true
	}
	return out, rows.Err()
}

func (s *PGStore) CreateScene(ctx context.Context, scene *Scene) error {
	_, err := s.db.ExecContext(ctx,
		`insert into scenes(name, summary, public_read, public_write,
			anonymous_users, video_conference, users_enabled)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		scene.Name, scene.Summary,
		scene.Flags.PublicRead, scene.Flags.PublicWrite,
		scene.Flags.AnonymousUsers, scene.Flags.VideoConference, scene.Flags.Users,
	)
	if err != nil {
		return err
	}
	return s.replaceGrants(ctx, scene.Name, scene.Editors, scene.Viewers)
}

func (s *PGStore) UpdateScene(ctx context.Context, scene *Scene) error {
	res, err := s.db.ExecContext(ctx,
		`update scenes set summary=$2, public_read=$3, public_write=$4,
			anonymous_users=$5, video_conference=$6, users_enabled=$7
		 where name=$1`,
		scene.Name, scene.Summary,
		scene.Flags.PublicRead, scene.Flags.PublicWrite,
		scene.Flags.AnonymousUsers, scene.Flags.VideoConference, scene.Flags.Users,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return s.replaceGrants(ctx, scene.Name, scene.Editors, scene.Viewers)
}

func (s *PGStore) DeleteScene(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from scenes where name=$1`, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PGStore) replaceGrants(ctx context.Context, scene string, editors, viewers []string) error {
	if _, err := s.db.ExecContext(ctx,
		`delete from scene_editors where scene=$1`, scene); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`delete from scene_viewers where scene=$1`, scene); err != nil {
		return err
	}
	for _, u := range editors {
		if _, err := s.db.ExecContext(ctx,
			`insert into scene_editors(scene, username) values($1,$2)`, scene, u); err != nil {
			return err
		}
	}
	for _, u := range viewers {
		if _, err := s.db.ExecContext(ctx,
			`insert into scene_viewers(scene, username) values($1,$2)`, scene, u); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) grantList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(row rowScanner) (*Scene, error) {
	var sc Scene
	err := row.Scan(&sc.Name, &sc.Summary, &sc.CreationDate,
		&sc.Flags.PublicRead, &sc.Flags.PublicWrite, &sc.Flags.AnonymousUsers,
		&sc.Flags.VideoConference, &sc.Flags.Users)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sc, nil
}

func collectScenes(rows *sql.Rows) ([]Scene, error) {
	var out []Scene
	for rows.Next() {
		sc, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	err := row.Scan(&a.Username, &a.FullName, &a.Email, &a.IsStaff, &a.IsSuperuser)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// pqStringArray renders a []string as a Postgres text array literal, for use
// with ANY($n). The pgx stdlib driver passes it through as text.
func pqStringArray(values []string) string {
	out := "{"
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", v)
	}
	return out + "}"
}
