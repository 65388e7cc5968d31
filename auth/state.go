// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package auth wraps a remote auth backend behind a single observable
// authentication state and Result-returning operations.
package auth

import "fmt"

// StateKind tags a State.
type StateKind int

const (
	StateUnknown StateKind = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot. User is set only for StateAuthenticated;
// Message and Cause only for StateError.
type State struct {
	Kind    StateKind
	User    *User
	Message string
	Cause   error
}

func Unknown() State {
	return State{Kind: StateUnknown}
}

func Loading() State {
	return State{Kind: StateLoading}
}

func Unauthenticated() State {
	return State{Kind: StateUnauthenticated}
}

func Authenticated(user *User) State {
	return State{Kind: StateAuthenticated, User: user}
}

// Failed is the error state. It is not terminal.
func Failed(message string, cause error) State {
	return State{Kind: StateError, Message: message, Cause: cause}
}

func (s State) IsAuthenticated() bool {
	return s.Kind == StateAuthenticated && s.User != nil
}

func (s State) String() string {
	switch s.Kind {
	case StateAuthenticated:
		if s.User != nil {
			return fmt.Sprintf("authenticated(%s)", s.User.ID)
		}
	case StateError:
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return s.Kind.String()
}
