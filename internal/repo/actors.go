package repo

import (
	"context"
	"database/sql"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
)

// EnsureActor inserts an actor if missing. Existing rows keep their primary
// role; use SetActorActive to reinstate deactivated actors.
func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, id string, primaryRole domain.Role, now string) error {
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT OR IGNORE INTO actors(id, primary_role, active, created_at) VALUES (?,?,1,?)`,
		id, string(primaryRole), now)
	return err
}

// GetActor returns the actor with all held roles. Inactive actors are
// returned as-is; callers decide whether inactivity is fatal.
func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	var primary string
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT id, primary_role, active, created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &primary, &active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.PrimaryRole, err = domain.ParseRole(primary)
	if err != nil {
		return a, err
	}
	a.Active = active != 0
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM actor_roles WHERE actor_id=? ORDER BY role`, id)
	if err != nil {
		return a, err
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return a, err
		}
		parsed, err := domain.ParseRole(role)
		if err != nil {
			return a, err
		}
		a.Roles = append(a.Roles, parsed)
	}
	return a, rows.Err()
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role) error {
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role) VALUES (?,?)`, actorID, string(role))
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role) error {
	exec := r.execer(tx)
	_, err := exec(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role=?`, actorID, string(role))
	return err
}

// SetActorActive toggles the soft-deactivation flag. Actors are never deleted.
func (r Repo) SetActorActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE actors SET active=? WHERE id=?`, boolToInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM actors ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var actors []domain.Actor
	for _, id := range ids {
		a, err := r.GetActor(ctx, id)
		if err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	return actors, nil
}

func (r Repo) execer(tx *sql.Tx) func(context.Context, string, ...any) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext
	}
	return r.DB.ExecContext
}
