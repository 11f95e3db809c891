// ABOUTME: Schema migrations owned by the messaging module
// ABOUTME: Tables friend_messages (cache) and friend_outbox (delivery queue)

package messaging

import "github.com/2389/homebase/internal/migrate"

// Migrations returns the module's schema history, oldest first
func Migrations() []migrate.Migration {
	return []migrate.Migration{
		{
			Version:     1,
			Description: "create friend message cache",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS friend_messages (
					id TEXT PRIMARY KEY,
					client_message_id TEXT NOT NULL UNIQUE,
					sender_user_id TEXT NOT NULL,
					recipient_user_id TEXT NOT NULL,
					content_type TEXT NOT NULL,
					content TEXT NOT NULL,
					source TEXT NOT NULL CHECK (source IN ('local', 'remote')),
					sync_state TEXT NOT NULL CHECK (sync_state IN ('pending', 'synced', 'failed')),
					server_message_id TEXT,
					created_at TEXT NOT NULL,
					read_at TEXT,
					last_error TEXT,
					updated_at TEXT NOT NULL,
					CHECK (sender_user_id <> recipient_user_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_friend_messages_pair
					ON friend_messages(sender_user_id, recipient_user_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_friend_messages_unread
					ON friend_messages(recipient_user_id, read_at)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS friend_messages`,
			},
		},
		{
			Version:     2,
			Description: "create friend outbox",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS friend_outbox (
					client_message_id TEXT PRIMARY KEY,
					from_user_id TEXT NOT NULL,
					to_user_id TEXT NOT NULL,
					content_type TEXT NOT NULL,
					content TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('pending', 'retry', 'failed', 'sent')),
					attempts INTEGER NOT NULL DEFAULT 0,
					next_attempt_at TEXT NOT NULL,
					last_error TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_friend_outbox_due
					ON friend_outbox(status, next_attempt_at)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS friend_outbox`,
			},
		},
	}
}

// Module returns the messaging module for registration with the hub
func Module() migrate.Module {
	return migrate.Module{ID: ModuleID, Migrations: Migrations()}
}
