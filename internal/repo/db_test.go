package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/greenverse/ecombot-backend/internal/domain"
)

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "no-such-dir", "app.db")); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestOpenSQLite_And_AutoMigrate(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	// Every table from the schema is usable after migration. GORM rebuilds
	// tables while migrating constraints, so inserts here catch a botched
	// rebuild under SQLite foreign key bookkeeping.
	ctx := context.Background()
	sess, err := CreateSession(ctx, db, "u1", "sess", "pendahuluan")
	if err != nil {
		t.Fatalf("session insert after migrate: %v", err)
	}
	if _, err := AppendMessage(ctx, db, sess.ID, "user", "", "halo", "pendahuluan", ""); err != nil {
		t.Fatalf("message insert after migrate: %v", err)
	}
	if _, err := CreateFeedback(ctx, db, "", "", "ok"); err != nil {
		t.Fatalf("feedback insert after migrate: %v", err)
	}
	var total int64
	if err := db.Model(&domain.KnowledgeVector{}).Count(&total).Error; err != nil {
		t.Fatalf("knowledge_vectors table missing: %v", err)
	}
}
