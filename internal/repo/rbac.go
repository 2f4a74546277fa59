package repo

import (
	"context"
	"database/sql"

	"waispath/internal/domain"
)

func (r Repo) EnsureAdmin(ctx context.Context, tx *sql.Tx, adminID, email, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO admins(id, email, created_at) VALUES (?,?,?)`, adminID, nullable(email), now)
	return err
}

func (r Repo) GetAdmin(ctx context.Context, id string) (domain.Admin, error) {
	var a domain.Admin
	err := r.DB.QueryRowContext(ctx, `SELECT id, COALESCE(email,''), created_at FROM admins WHERE id=?`, id).
		Scan(&a.ID, &a.Email, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, COALESCE(email,''), created_at FROM admins ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Admin
	for rows.Next() {
		var a domain.Admin
		if err := rows.Scan(&a.ID, &a.Email, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, description) VALUES (?,?)`, id, desc)
	return err
}

func (r Repo) InsertPermission(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO permissions(id, description) VALUES (?,?)`, id, desc)
	return err
}

func (r Repo) AddRolePermission(ctx context.Context, tx *sql.Tx, roleID, permID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(role_id, permission_id) VALUES (?,?)`, roleID, permID)
	return err
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, adminID, roleID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO admin_roles(admin_id, role_id) VALUES (?,?)`, adminID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, adminID, roleID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM admin_roles WHERE admin_id=? AND role_id=?`, adminID, roleID)
	return err
}

// SeedRBAC loads the role/permission catalog from config into the tables.
func (r Repo) SeedRBAC(ctx context.Context, tx *sql.Tx, roles map[string]RBACRoleSeed) error {
	for roleID, role := range roles {
		if err := r.InsertRole(ctx, tx, roleID, role.Description); err != nil {
			return err
		}
		for _, perm := range role.Permissions {
			if err := r.InsertPermission(ctx, tx, perm, ""); err != nil {
				return err
			}
			if err := r.AddRolePermission(ctx, tx, roleID, perm); err != nil {
				return err
			}
		}
	}
	return nil
}

type RBACRoleSeed struct {
	Description string
	Permissions []string
}
