package user

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/eirki/trek-api/internal/tracker"
)

func fakeAuth(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func TestAuthorizeRedirects(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := newService(t, mock, &fakeTracker{name: "fitbit"})
	app := fiber.New()
	RegisterRoutes(app.Group("/users"), svc, "https://trek.example", fakeAuth("user-1"))

	req := httptest.NewRequest(http.MethodGet, "/users/trackers/fitbit/authorize", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusFound {
		t.Fatalf("authorize status: %v %d", err, resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "https://provider.example/authorize?state=") {
		t.Fatalf("unexpected redirect %q", location)
	}
}

func TestAuthorizeUnknownTracker(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := newService(t, mock)
	app := fiber.New()
	RegisterRoutes(app.Group("/users"), svc, "https://trek.example", fakeAuth("user-1"))

	req := httptest.NewRequest(http.MethodGet, "/users/trackers/nope/authorize", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found")
	}
}

func TestCallbackRoundTrip(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	trk := &fakeTracker{
		name:      "fitbit",
		exchanged: tracker.Token{AccessToken: "at", TrackerUserID: "fb-1"},
	}
	svc := newService(t, mock, trk)
	app := fiber.New()
	RegisterRoutes(app.Group("/users"), svc, "https://trek.example", fakeAuth("user-1"))

	req := httptest.NewRequest(http.MethodGet, "/users/trackers/fitbit/authorize", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	state := strings.TrimPrefix(resp.Header.Get("Location"), "https://provider.example/authorize?state=")

	mock.ExpectExec(`INSERT INTO user_tokens`).
		WithArgs("user-1", "fitbit", "fb-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE users SET active_tracker`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT full_name FROM users`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"full_name"}).AddRow("Set"))

	req = httptest.NewRequest(http.MethodGet, "/users/trackers/redirect/fitbit?code=abc&state="+state, nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusFound {
		t.Fatalf("callback status: %v", err)
	}
	if resp.Header.Get("Location") != "https://trek.example" {
		t.Fatalf("unexpected redirect %q", resp.Header.Get("Location"))
	}
}

func TestCallbackMissingParams(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := newService(t, mock, &fakeTracker{name: "fitbit"})
	app := fiber.New()
	RegisterRoutes(app.Group("/users"), svc, "https://trek.example", fakeAuth("user-1"))

	req := httptest.NewRequest(http.MethodGet, "/users/trackers/redirect/fitbit", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}
}

func TestListTrackers(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := newService(t, mock, &fakeTracker{name: "fitbit"}, &fakeTracker{name: "polar"})
	app := fiber.New()
	RegisterRoutes(app.Group("/users"), svc, "https://trek.example", fakeAuth("user-1"))

	req := httptest.NewRequest(http.MethodGet, "/users/trackers", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("trackers status: %v", err)
	}
}

func TestSetTrackerBadRequest(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := newService(t, mock)
	app := fiber.New()
	RegisterRoutes(app.Group("/users"), svc, "https://trek.example", fakeAuth("user-1"))

	req := httptest.NewRequest(http.MethodPut, "/users/me/tracker", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}
}
