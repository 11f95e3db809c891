// ABOUTME: Schema migrations owned by the friends module
// ABOUTME: Tables friend_profiles, friend_invites and friendships

package friends

import "github.com/2389/homebase/internal/migrate"

// Migrations returns the module's schema history, oldest first
func Migrations() []migrate.Migration {
	return []migrate.Migration{
		{
			Version:     1,
			Description: "create friend profiles, invites and friendships",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS friend_profiles (
					user_id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					handle TEXT,
					avatar_url TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS friend_invites (
					id TEXT PRIMARY KEY,
					from_user_id TEXT NOT NULL,
					to_user_id TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending'
						CHECK (status IN ('pending', 'accepted', 'declined', 'revoked')),
					message TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL,
					responded_at TEXT,
					CHECK (from_user_id <> to_user_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_friend_invites_to ON friend_invites(to_user_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_friend_invites_from ON friend_invites(from_user_id, status)`,
				`CREATE TABLE IF NOT EXISTS friendships (
					user_id TEXT NOT NULL,
					friend_user_id TEXT NOT NULL,
					status TEXT NOT NULL,
					source_invite_id TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL,
					PRIMARY KEY (user_id, friend_user_id),
					CHECK (user_id <> friend_user_id)
				)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS friendships`,
				`DROP TABLE IF EXISTS friend_invites`,
				`DROP TABLE IF EXISTS friend_profiles`,
			},
		},
		{
			Version:     2,
			Description: "unique profile handles",
			Up: []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_profiles_handle
					ON friend_profiles(handle) WHERE handle IS NOT NULL`,
			},
			Down: []string{
				`DROP INDEX IF EXISTS idx_friend_profiles_handle`,
			},
		},
	}
}

// Module returns the friends module for registration with the hub
func Module() migrate.Module {
	return migrate.Module{ID: ModuleID, Migrations: Migrations()}
}
