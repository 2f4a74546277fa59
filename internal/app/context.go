package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"waispath/internal/config"
	"waispath/internal/repo"
)

// DefaultPortalID is used when a workspace has never been configured.
const DefaultPortalID = "waispath"

// ResolvePortalAndConfig picks the active portal and ensures its config exists
// in the DB, seeding defaults if missing. It prefers the override, then the
// single portal present in the DB, then the default portal id.
func ResolvePortalAndConfig(ctx context.Context, workspace, portalOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	portalID := portalOverride
	if portalID == "" {
		if id, err := r.SinglePortalID(ctx); err == nil {
			portalID = id
		} else if errors.Is(err, repo.ErrNotFound) {
			portalID = DefaultPortalID
		} else {
			return "", nil, err
		}
	}
	// A file config in the workspace overrides the stored one when present.
	if fileCfg, err := config.LoadOptional(workspace); err != nil {
		return "", nil, err
	} else if fileCfg != nil {
		if portalOverride == "" {
			portalID = fileCfg.Portal.ID
		}
		if err := r.UpsertPortalConfig(ctx, portalID, fileCfg); err != nil {
			return "", nil, fmt.Errorf("store portal config: %w", err)
		}
	}
	cfg, err := r.GetPortalConfig(ctx, portalID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(portalID)
		if err := r.UpsertPortalConfig(ctx, portalID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed portal config: %w", err)
		}
	}
	cfg.Portal.ID = portalID
	if err := seedRBAC(ctx, r, cfg, actorID); err != nil {
		return "", nil, err
	}
	return portalID, cfg, nil
}

// seedRBAC loads the config role catalog into the tables and grants the
// bootstrap actor the owner role so a fresh workspace is usable immediately.
func seedRBAC(ctx context.Context, r repo.Repo, cfg *config.Config, actorID string) error {
	if len(cfg.RBAC.Roles) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	seeds := make(map[string]repo.RBACRoleSeed, len(cfg.RBAC.Roles))
	for id, role := range cfg.RBAC.Roles {
		seeds[id] = repo.RBACRoleSeed{Description: role.Description, Permissions: role.Permissions}
	}
	if err := r.SeedRBAC(ctx, tx, seeds); err != nil {
		return fmt.Errorf("seed rbac catalog: %w", err)
	}
	if actorID != "" {
		hasAdmins, err := anyAdminRole(ctx, r)
		if err != nil {
			return err
		}
		if !hasAdmins {
			if err := r.EnsureAdmin(ctx, tx, actorID, "", now); err != nil {
				return fmt.Errorf("ensure admin: %w", err)
			}
			if err := r.AssignRole(ctx, tx, actorID, "owner"); err != nil {
				return fmt.Errorf("assign owner role: %w", err)
			}
		}
	}
	return tx.Commit()
}

func anyAdminRole(ctx context.Context, r repo.Repo) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_roles`).Scan(&n)
	return n > 0, err
}
