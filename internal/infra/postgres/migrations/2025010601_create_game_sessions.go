package migrations

import _ "embed"

//go:embed 0002_create_game_sessions.sql
var createGameSessionsSQL string

func init() {
	Migrations.Add(sqlMigration("2025010601", "create_game_sessions", createGameSessionsSQL, `DROP TABLE IF EXISTS game_sessions`))
}
