package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warroom/internal/config"
	"warroom/internal/repo"
)

// ResolveArenaAndConfig picks the active arena and ensures an arena +
// config exist in DB, seeding defaults if missing. It prefers
// overrides, then single-arena DB. If the arena does not exist, it is
// created on the fly.
func ResolveArenaAndConfig(ctx context.Context, workspace, arenaOverride, playerID string, r repo.Repo) (string, *config.Config, error) {
	arenaID := arenaOverride
	if arenaID == "" {
		if a, err := r.SingleArena(ctx); err == nil {
			arenaID = a.ID
		} else {
			return "", nil, fmt.Errorf("arena not specified; use --arena")
		}
	}
	seedCfg := config.Default(arenaID)

	if _, err := r.GetArena(ctx, arenaID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createArena(ctx, r, arenaID, seedCfg, playerID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetArenaConfig(ctx, arenaID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertArenaConfig(ctx, arenaID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed arena config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Arena.ID = arenaID
	return arenaID, cfg, nil
}

// createArena inserts a minimal arena footprint using the seed config.
func createArena(ctx context.Context, r repo.Repo, arenaID string, seedCfg *config.Config, playerID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(arenaID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO arenas(id,status,description,created_at) VALUES (?,?,?,?)`,
		arenaID, "active", "", now); err != nil {
		return fmt.Errorf("insert arena: %w", err)
	}
	if err := r.UpsertArenaConfigTx(ctx, tx, arenaID, seedCfg); err != nil {
		return fmt.Errorf("insert arena config: %w", err)
	}
	if playerID == "" {
		playerID = "local-player"
	}
	if err := r.EnsurePlayerTx(ctx, tx, playerID, "", now); err != nil {
		return fmt.Errorf("ensure player: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
