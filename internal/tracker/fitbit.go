package tracker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/eirki/trek-api/internal/config"
)

type Fitbit struct {
	conf    *oauth2.Config
	apiBase string
}

func NewFitbit(cfg config.Config) *Fitbit {
	return &Fitbit{
		conf: &oauth2.Config{
			ClientID:     cfg.FitbitClientID,
			ClientSecret: cfg.FitbitClientSecret,
			RedirectURL:  cfg.TrackerRedirectURL,
			Scopes:       []string{"activity", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://www.fitbit.com/oauth2/authorize",
				TokenURL:  "https://api.fitbit.com/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiBase: "https://api.fitbit.com",
	}
}

func (f *Fitbit) Name() string { return "fitbit" }

func (f *Fitbit) AuthorizationURL(state string) string {
	return f.conf.AuthCodeURL(state)
}

func (f *Fitbit) Exchange(ctx context.Context, code string) (Token, error) {
	tok, err := f.conf.Exchange(ctx, code)
	if err != nil {
		return Token{}, err
	}
	userID, _ := tok.Extra("user_id").(string)
	return Token{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		Expiry:        tok.Expiry,
		TrackerUserID: userID,
	}, nil
}

func (f *Fitbit) Steps(ctx context.Context, token Token, date time.Time) (int, Token, error) {
	token, err := freshToken(ctx, f.conf, token)
	if err != nil {
		return 0, token, err
	}
	var payload struct {
		ActivitiesSteps []struct {
			DateTime string `json:"dateTime"`
			Value    string `json:"value"`
		} `json:"activities-steps"`
	}
	url := fmt.Sprintf("%s/1/user/-/activities/steps/date/%s/1d.json", f.apiBase, date.Format("2006-01-02"))
	if err := doJSON(ctx, nil, "GET", url, bearerHeader(token), nil, &payload); err != nil {
		return 0, token, err
	}
	if len(payload.ActivitiesSteps) == 0 {
		return 0, token, nil
	}
	var steps int
	fmt.Sscanf(payload.ActivitiesSteps[0].Value, "%d", &steps)
	return steps, token, nil
}

func (f *Fitbit) DisplayName(ctx context.Context, token Token) (string, Token, error) {
	token, err := freshToken(ctx, f.conf, token)
	if err != nil {
		return "", token, err
	}
	var payload struct {
		User struct {
			FirstName string `json:"firstName"`
		} `json:"user"`
	}
	url := f.apiBase + "/1/user/-/profile.json"
	if err := doJSON(ctx, nil, "GET", url, bearerHeader(token), nil, &payload); err != nil {
		return "", token, err
	}
	return payload.User.FirstName, token, nil
}
