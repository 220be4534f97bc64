package tracker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/eirki/trek-api/internal/config"
)

// Withings wraps every response, tokens included, in a {status, body}
// envelope, so its token flow is hand rolled rather than going through the
// oauth2 package.
type Withings struct {
	clientID     string
	clientSecret string
	redirectURL  string
	authBase     string
	apiBase      string
}

func NewWithings(cfg config.Config) *Withings {
	return &Withings{
		clientID:     cfg.WithingsClientID,
		clientSecret: cfg.WithingsClientSecret,
		redirectURL:  cfg.TrackerRedirectURL,
		authBase:     "https://account.withings.com",
		apiBase:      "https://wbsapi.withings.net",
	}
}

func (w *Withings) Name() string { return "withings" }

func (w *Withings) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", w.clientID)
	q.Set("redirect_uri", w.redirectURL)
	q.Set("scope", "user.activity")
	q.Set("state", state)
	return w.authBase + "/oauth2_user/authorize2?" + q.Encode()
}

type withingsTokenBody struct {
	UserID       int64  `json:"userid"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (w *Withings) Exchange(ctx context.Context, code string) (Token, error) {
	form := url.Values{}
	form.Set("action", "requesttoken")
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", w.clientID)
	form.Set("client_secret", w.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", w.redirectURL)
	return w.tokenCall(ctx, form, "")
}

func (w *Withings) refresh(ctx context.Context, token Token) (Token, error) {
	if token.Expiry.After(time.Now().Add(time.Minute)) {
		return token, nil
	}
	form := url.Values{}
	form.Set("action", "requesttoken")
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", w.clientID)
	form.Set("client_secret", w.clientSecret)
	form.Set("refresh_token", token.RefreshToken)
	return w.tokenCall(ctx, form, token.TrackerUserID)
}

func (w *Withings) tokenCall(ctx context.Context, form url.Values, knownUserID string) (Token, error) {
	var payload struct {
		Status int               `json:"status"`
		Body   withingsTokenBody `json:"body"`
	}
	header := formHeader()
	if err := doJSON(ctx, nil, "POST", w.apiBase+"/v2/oauth2", header, []byte(form.Encode()), &payload); err != nil {
		return Token{}, err
	}
	if payload.Status != 0 {
		return Token{}, fmt.Errorf("withings token call: status %d", payload.Status)
	}
	userID := knownUserID
	if payload.Body.UserID != 0 {
		userID = strconv.FormatInt(payload.Body.UserID, 10)
	}
	return Token{
		AccessToken:   payload.Body.AccessToken,
		RefreshToken:  payload.Body.RefreshToken,
		Expiry:        time.Now().Add(time.Duration(payload.Body.ExpiresIn) * time.Second),
		TrackerUserID: userID,
	}, nil
}

func (w *Withings) Steps(ctx context.Context, token Token, date time.Time) (int, Token, error) {
	token, err := w.refresh(ctx, token)
	if err != nil {
		return 0, token, err
	}
	day := date.Format("2006-01-02")
	q := url.Values{}
	q.Set("action", "getactivity")
	q.Set("startdateymd", day)
	q.Set("enddateymd", date.AddDate(0, 0, 1).Format("2006-01-02"))
	q.Set("data_fields", "steps,totalcalories")

	var payload struct {
		Status int `json:"status"`
		Body   struct {
			Activities []struct {
				Date  string `json:"date"`
				Steps int    `json:"steps"`
			} `json:"activities"`
		} `json:"body"`
	}
	endpoint := w.apiBase + "/v2/measure?" + q.Encode()
	if err := doJSON(ctx, nil, "GET", endpoint, bearerHeader(token), nil, &payload); err != nil {
		return 0, token, err
	}
	if payload.Status != 0 {
		return 0, token, fmt.Errorf("withings getactivity: status %d", payload.Status)
	}
	for _, act := range payload.Body.Activities {
		if act.Date == day {
			return act.Steps, token, nil
		}
	}
	return 0, token, nil
}

// Withings exposes no display name through its API.
func (w *Withings) DisplayName(ctx context.Context, token Token) (string, Token, error) {
	return "", token, nil
}
