package migrations

import _ "embed"

//go:embed 0001_create_quizzes.sql
var createQuizzesSQL string

func init() {
	Migrations.Add(sqlMigration("2024112201", "create_quizzes", createQuizzesSQL, `DROP TABLE IF EXISTS quizzes`))
}
