package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/wordgrove/groveapi/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260110000000, down_20260110000000)
}

// up_20260110000000 creates the identity tables: users plus the role-specific
// profile tables, parent/student links, and the session cache. The unique
// indexes are load-bearing: reconciliation relies on them to decide races.
func up_20260110000000(ctx context.Context, db *bun.DB) error {
	// 1. Create users table
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`)
	if err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}
	fmt.Println(" OK")

	// 2. Create profile tables; exactly one row per user and role
	for _, table := range []struct {
		name  string
		model any
	}{
		{"students", (*models.Student)(nil)},
		{"teachers", (*models.Teacher)(nil)},
		{"parents", (*models.Parent)(nil)},
	} {
		fmt.Printf(" [up] creating %s table...", table.name)
		_, err = db.NewCreateTable().
			Model(table.model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}

		_, err = db.Exec(fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_user_id ON %s(user_id)`,
			table.name, table.name,
		))
		if err != nil {
			return fmt.Errorf("failed to create %s user_id index: %w", table.name, err)
		}
		fmt.Println(" OK")
	}

	// 3. Create parent_students link table
	fmt.Print(" [up] creating parent_students table...")
	_, err = db.NewCreateTable().
		Model((*models.ParentStudent)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create parent_students table: %w", err)
	}

	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_parent_students_pair
		ON parent_students(parent_id, student_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create parent_students pair index: %w", err)
	}
	fmt.Println(" OK")

	// 4. Create sessions table
	fmt.Print(" [up] creating sessions table...")
	_, err = db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(token_hash)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions token_hash index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions user_id index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260110000000 drops the identity tables
func down_20260110000000(ctx context.Context, db *bun.DB) error {
	for _, table := range []string{"sessions", "parent_students", "parents", "teachers", "students", "users"} {
		fmt.Printf(" [down] dropping %s table...", table)
		if _, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}
	return nil
}
