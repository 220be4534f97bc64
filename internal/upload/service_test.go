package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

var errSave = errors.New("save error")

func TestUploadReturnsURL(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	data := []byte{0xff, 0xd8}
	mock.ExpectExec(`INSERT INTO storage_objects`).
		WithArgs(pgxmock.AnyArg(), "trek-1", "leg-1",
			"trek-1/leg-1/map-2026-08-27.jpg",
			"https://api.example/storage/trek-1/leg-1/map-2026-08-27.jpg",
			"map", data).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService(mock, "https://api.example")
	url, err := svc.Upload(context.Background(), data, "trek-1", "leg-1",
		time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), "map")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://api.example/storage/trek-1/leg-1/map-2026-08-27.jpg" {
		t.Fatalf("unexpected url %q", url)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUploadError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO storage_objects`).
		WillReturnError(errSave)

	svc := NewService(mock, "https://api.example")
	_, err = svc.Upload(context.Background(), []byte("x"), "trek-1", "leg-1", time.Now(), "map")
	if err == nil {
		t.Fatalf("expected error")
	}
}
