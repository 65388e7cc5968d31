// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package auth

import (
	"encoding/json"
	"fmt"
)

// User is the normalised view of a backend user. It is only built by
// translating a BackendUser.
type User struct {
	ID             string            `json:"id"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	DisplayName    string            `json:"displayName,omitempty"`
	AvatarURL      string            `json:"avatarUrl,omitempty"`
	EmailConfirmed bool              `json:"emailConfirmed"`
	PhoneConfirmed bool              `json:"phoneConfirmed"`
	CreatedAt      string            `json:"createdAt,omitempty"`
	LastSignInAt   string            `json:"lastSignInAt,omitempty"`
	Provider       string            `json:"provider,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

var (
	displayNameKeys = []string{"display_name", "full_name", "name"}
	avatarKeys      = []string{"avatar_url", "picture"}
)

// NewUser translates a backend user. It returns nil for nil.
func NewUser(u *BackendUser) *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:             u.ID,
		Email:          u.Email,
		Phone:          u.Phone,
		DisplayName:    firstString(u.UserMetadata, displayNameKeys),
		AvatarURL:      firstString(u.UserMetadata, avatarKeys),
		EmailConfirmed: u.EmailConfirmedAt != "",
		PhoneConfirmed: u.PhoneConfirmedAt != "",
		CreatedAt:      u.CreatedAt,
		LastSignInAt:   u.LastSignInAt,
		Provider:       firstString(u.AppMetadata, []string{"provider"}),
		Metadata:       flatten(u.UserMetadata),
	}
}

func firstString(m map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// flatten keeps strings as they are, drops nulls and JSON-encodes the rest.
func flatten(m map[string]interface{}) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
