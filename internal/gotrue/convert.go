// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gotrue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gotrue "github.com/supabase-community/gotrue-go"

	"github.com/erikg84/supabase-sdk/auth"
	"github.com/erikg84/supabase-sdk/errors"
)

// zeroTime is how an unset non-pointer timestamp comes back from encoding.
const zeroTime = "0001-01-01T00:00:00Z"

func fetchUser(client gotrue.Client) (*auth.BackendUser, error) {
	resp, err := client.GetUser()
	if err != nil {
		return nil, fail("get user", err)
	}
	user, err := toBackendUser(resp)
	if err != nil {
		return nil, errors.NewAuthenticationError("auth server returned an unreadable user", errors.CodeDecodeFailed, err)
	}
	return user, nil
}

// toBackendUser re-reads any GoTrue user value through its wire form, so
// timestamps end up as the server formats them.
func toBackendUser(v interface{}) (*auth.BackendUser, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var u auth.BackendUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("user has no id")
	}
	for _, ts := range []*string{&u.EmailConfirmedAt, &u.PhoneConfirmedAt, &u.CreatedAt, &u.LastSignInAt} {
		if *ts == zeroTime {
			*ts = ""
		}
	}
	return &u, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server has already accepted the token. Zero means unknown.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// apiError is the JSON body GoTrue sends with a failed request. Older
// servers use error/error_description, newer ones error_code/msg.
type apiError struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (a apiError) code() string {
	if a.ErrorCode != "" {
		return a.ErrorCode
	}
	return a.Err
}

func (a apiError) message() string {
	for _, m := range []string{a.Msg, a.Message, a.ErrorDescription} {
		if m != "" {
			return m
		}
	}
	return ""
}

// fail converts a client error into an *errors.Error. Transport failures
// stay Network errors; server rejections become Authentication errors
// carrying GoTrue's code and message.
func fail(action string, err error) error {
	classified := errors.Classify(err, errors.KindAuthentication)
	if classified.Kind != errors.KindAuthentication {
		return &errors.Error{Kind: classified.Kind, Message: action + " failed", Code: classified.Code, Cause: err}
	}

	message := action + " failed"
	code := classified.Code
	if body := err.Error(); strings.Contains(body, "{") {
		var a apiError
		if json.Unmarshal([]byte(body[strings.Index(body, "{"):]), &a) == nil {
			if m := a.message(); m != "" {
				message = action + " failed: " + m
			}
			if c := a.code(); c != "" {
				code = c
			}
		}
	}
	return errors.NewAuthenticationError(message, code, err)
}
