package upload

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func TestServeObject(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT data FROM storage_objects`).
		WithArgs("trek-1/leg-1/map-2026-08-27.jpg").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte("jpegdata")))

	app := fiber.New()
	RegisterRoutes(app.Group("/storage"), NewService(mock, "https://api.example"))

	req := httptest.NewRequest(http.MethodGet, "/storage/trek-1/leg-1/map-2026-08-27.jpg", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("serve status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "jpegdata" {
		t.Fatalf("unexpected body %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestServeObjectNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT data FROM storage_objects`).
		WithArgs("trek-1/leg-1/missing.jpg").
		WillReturnError(pgx.ErrNoRows)

	app := fiber.New()
	RegisterRoutes(app.Group("/storage"), NewService(mock, "https://api.example"))

	req := httptest.NewRequest(http.MethodGet, "/storage/trek-1/leg-1/missing.jpg", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404")
	}
}
