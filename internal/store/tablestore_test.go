package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/shortontech/featurefp/internal/compat"
	"github.com/shortontech/featurefp/pkg/logger"
)

func testTable(t *testing.T) *compat.Table {
	t.Helper()
	var table compat.Table
	raw := `[["chrome70",["Promise","fetch"]],["chrome71",[]],["firefox60",["fetch"]]]`
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		t.Fatal(err)
	}
	return &table
}

func newMockStore(t *testing.T) (*TableStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	s, err := New(db, "feature_map", logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return s, mock
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name      string
		tableName string
		wantError bool
	}{
		{"valid simple name", "feature_map", false},
		{"valid with numbers", "feature_map_2023", false},
		{"valid starting with underscore", "_maps", false},
		{"empty string", "", true},
		{"semicolon", "maps; DROP TABLE users;--", true},
		{"quotes", "maps' OR '1'='1", true},
		{"dash", "feature-map", true},
		{"starts with number", "2023_map", true},
		{"too long", "this_is_a_very_long_table_name_that_exceeds_the_postgresql_limit_of_63_characters", true},
		{"exactly 63 chars", "abcdefghijklmnopqrstuvwxyz_abcdefghijklmnopqrstuvwxyz_1234567", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTableName(tt.tableName)
			if (err != nil) != tt.wantError {
				t.Errorf("validateTableName(%q) error = %v, wantError = %v", tt.tableName, err, tt.wantError)
			}
		})
	}
}

func TestNewRejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := New(db, "bad name", logger.Nop()); err == nil {
		t.Error("expected error for invalid table name")
	}
}

func TestEnsureSchema(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "feature_map"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS "idx_feature_map_family"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		if err := s.EnsureSchema(context.Background()); err != nil {
			t.Errorf("EnsureSchema failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("index error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE INDEX").WillReturnError(errors.New("index error"))

		err := s.EnsureSchema(context.Background())
		if err == nil || !regexp.MustCompile("failed to create index").MatchString(err.Error()) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestPublish(t *testing.T) {
	t.Run("copies every key in order", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "feature_map" WHERE catalog_tag = $1`)).
			WithArgs("2023-05-11_feature").
			WillReturnResult(sqlmock.NewResult(0, 12))
		prep := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "feature_map" ("catalog_tag", "position", "browser_key", "family", "version", "features") FROM STDIN`))
		prep.ExpectExec().WithArgs("2023-05-11_feature", 0, "chrome70", "chrome", 70, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WithArgs("2023-05-11_feature", 1, "chrome71", "chrome", 71, "{}").
			WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WithArgs("2023-05-11_feature", 2, "firefox60", "firefox", 60, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		n, err := s.Publish(context.Background(), "2023-05-11_feature", testTable(t))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if n != 3 {
			t.Errorf("n = %d, want 3", n)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("rolls back on copy failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))
		prep := mock.ExpectPrepare("COPY")
		prep.ExpectExec().WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		if _, err := s.Publish(context.Background(), "tag", testTable(t)); err == nil {
			t.Fatal("expected error")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestLoad(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"browser_key", "features"}).
		AddRow("chrome70", "{Promise,fetch}").
		AddRow("chrome71", "{}")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT browser_key, features FROM "feature_map"`)).
		WithArgs("tag").
		WillReturnRows(rows)

	table, err := s.Load(context.Background(), "tag")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := table.Keys(); len(got) != 2 || got[0] != "chrome70" || got[1] != "chrome71" {
		t.Errorf("keys = %v", got)
	}
	if !table.Has("chrome70", "Promise") || table.Has("chrome71", "fetch") {
		t.Error("unexpected membership")
	}

	mock.ExpectQuery("SELECT").WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"browser_key", "features"}))
	if _, err := s.Load(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown tag")
	}
}
