package service

import (
	"unicode"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
)

// validateCredentials returns the normalized handle.
func validateCredentials(rawHandle, password string) (string, error) {
	handle, err := identitydomain.NormalizeHandle(rawHandle)
	if err != nil {
		return "", err
	}
	if !isValidPassword(password) {
		return "", commonerrors.ErrInvalidPassword
	}
	return handle, nil
}

func isValidPassword(value string) bool {
	if len(value) < constants.PasswordMinLength || len(value) > constants.PasswordMaxLength {
		return false
	}

	hasLetter := false
	hasDigit := false
	for _, r := range value {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if hasLetter && hasDigit {
			return true
		}
	}
	return false
}
