package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service provides RBAC helpers backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) AdminHasPermission(ctx context.Context, adminID, perm string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT 1 FROM admin_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.admin_id=? AND rp.permission_id=? LIMIT 1`,
		adminID, perm)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s Service) AdminRoles(ctx context.Context, adminID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT role_id FROM admin_roles WHERE admin_id=?`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s Service) AdminPermissions(ctx context.Context, adminID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT DISTINCT rp.permission_id
FROM admin_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.admin_id=?`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
