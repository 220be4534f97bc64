package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

func TestMigrateAppliesAllStatements(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	for range schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	if err := Migrate(context.Background(), mock); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrateStopsOnError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`CREATE`).WillReturnError(errors.New("boom"))

	if err := Migrate(context.Background(), mock); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSchemaValidatesTriggerHour(t *testing.T) {
	var trekDDL string
	for _, stmt := range schema {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS treks") {
			trekDDL = stmt
		}
	}
	if !strings.Contains(trekDDL, "BETWEEN 0 AND 23") {
		t.Fatalf("treks DDL must bound progress_at_hour")
	}
}
