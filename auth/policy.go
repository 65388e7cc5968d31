// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package auth

import (
	"fmt"

	"github.com/erikg84/supabase-sdk/errors"
	gopass "github.com/nbutton23/zxcvbn-go"
)

// checkPassword rejects passwords scoring below minScore (0-4). A minScore of
// zero disables the check.
func checkPassword(password string, minScore int, userInputs ...string) *errors.Error {
	if minScore <= 0 {
		return nil
	}
	passStrength := gopass.PasswordStrength(password, userInputs)
	if passStrength.Score < minScore {
		return errors.NewAuthenticationError(
			fmt.Sprintf("password is too weak: score %d, need at least %d", passStrength.Score, minScore),
			errors.CodeWeakPassword, nil)
	}
	return nil
}
