package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/eirki/trek-api/internal/config"
)

// Polar hands out daily activity data through one-shot transactions, so step
// totals fetched from a transaction are cached in redis and later reads for
// the same day are served from the cache.
type Polar struct {
	conf    *oauth2.Config
	apiBase string
	rdb     *redis.Client
}

func NewPolar(cfg config.Config, rdb *redis.Client) *Polar {
	return &Polar{
		conf: &oauth2.Config{
			ClientID:     cfg.PolarClientID,
			ClientSecret: cfg.PolarClientSecret,
			RedirectURL:  cfg.TrackerRedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://flow.polar.com/oauth2/authorization",
				TokenURL:  "https://polarremote.com/v2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiBase: "https://www.polaraccesslink.com",
		rdb:     rdb,
	}
}

func (p *Polar) Name() string { return "polar" }

func (p *Polar) AuthorizationURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *Polar) Exchange(ctx context.Context, code string) (Token, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return Token{}, err
	}
	userID := ""
	switch v := tok.Extra("x_user_id").(type) {
	case float64:
		userID = strconv.FormatInt(int64(v), 10)
	case string:
		userID = v
	}
	token := Token{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		Expiry:        tok.Expiry,
		TrackerUserID: userID,
	}
	if err := p.register(ctx, token); err != nil {
		return Token{}, err
	}
	return token, nil
}

// register announces the user to the accesslink API. 409 means the user was
// registered on an earlier attempt.
func (p *Polar) register(ctx context.Context, token Token) error {
	body := fmt.Sprintf(`{"member-id":%q}`, token.TrackerUserID)
	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/v3/users", strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = bearerHeader(token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("polar register: status %d", resp.StatusCode)
	}
	return nil
}

func (p *Polar) Steps(ctx context.Context, token Token, date time.Time) (int, Token, error) {
	token, err := freshToken(ctx, p.conf, token)
	if err != nil {
		return 0, token, err
	}
	totals, err := p.drainTransaction(ctx, token)
	if err != nil {
		return 0, token, err
	}

	day := date.Format("2006-01-02")
	if p.rdb == nil {
		return totals[day], token, nil
	}
	for d, steps := range totals {
		if d < day {
			continue
		}
		if err := p.rdb.Set(ctx, p.cacheKey(token, d), steps, 7*24*time.Hour).Err(); err != nil {
			return 0, token, err
		}
	}
	cached, err := p.rdb.Get(ctx, p.cacheKey(token, day)).Int()
	if err == redis.Nil {
		return 0, token, nil
	}
	if err != nil {
		return 0, token, err
	}
	return cached, token, nil
}

func (p *Polar) cacheKey(token Token, day string) string {
	return fmt.Sprintf("polar:steps:%s:%s", token.TrackerUserID, day)
}

// drainTransaction pulls and commits any pending activity transaction,
// returning the newest step total per date.
func (p *Polar) drainTransaction(ctx context.Context, token Token) (map[string]int, error) {
	transURL := fmt.Sprintf("%s/v3/users/%s/activity-transactions", p.apiBase, url.PathEscape(token.TrackerUserID))
	req, err := http.NewRequestWithContext(ctx, "POST", transURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = bearerHeader(token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("polar create transaction: status %d", resp.StatusCode)
	}
	transactionURL := resp.Header.Get("Location")
	if transactionURL == "" {
		return nil, fmt.Errorf("polar create transaction: missing location header")
	}

	var log struct {
		ActivityLog []string `json:"activity-log"`
	}
	if err := doJSON(ctx, nil, "GET", transactionURL, bearerHeader(token), nil, &log); err != nil {
		return nil, err
	}

	type daily struct {
		created string
		steps   int
	}
	newest := map[string]daily{}
	for _, activityURL := range log.ActivityLog {
		var summary struct {
			Date        string `json:"date"`
			Created     string `json:"created"`
			ActiveSteps int    `json:"active-steps"`
		}
		if err := doJSON(ctx, nil, "GET", activityURL, bearerHeader(token), nil, &summary); err != nil {
			return nil, err
		}
		if prev, ok := newest[summary.Date]; !ok || summary.Created > prev.created {
			newest[summary.Date] = daily{created: summary.Created, steps: summary.ActiveSteps}
		}
	}

	if err := doJSON(ctx, nil, "PUT", transactionURL, bearerHeader(token), nil, nil); err != nil {
		return nil, err
	}

	totals := make(map[string]int, len(newest))
	for day, entry := range newest {
		totals[day] = entry.steps
	}
	return totals, nil
}

func (p *Polar) DisplayName(ctx context.Context, token Token) (string, Token, error) {
	token, err := freshToken(ctx, p.conf, token)
	if err != nil {
		return "", token, err
	}
	var payload struct {
		FirstName string `json:"first-name"`
	}
	endpoint := fmt.Sprintf("%s/v3/users/%s", p.apiBase, url.PathEscape(token.TrackerUserID))
	if err := doJSON(ctx, nil, "GET", endpoint, bearerHeader(token), nil, &payload); err != nil {
		return "", token, err
	}
	return payload.FirstName, token, nil
}
