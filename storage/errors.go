package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// Bootstrap error taxonomy. Administrative calls wrap one of these together
// with the driver error, so both errors.Is and errors.As work on the result.
var (
	// ErrDuplicateUser is returned when the credential already exists
	ErrDuplicateUser = errors.New("user already exists")

	// ErrCollectionExists is returned when the collection already exists
	ErrCollectionExists = errors.New("collection already exists")

	// ErrIndexConflict is returned when an index with a conflicting definition already exists
	ErrIndexConflict = errors.New("conflicting index definition")

	// ErrDuplicateKey is returned when a unique index rejects a document
	ErrDuplicateKey = errors.New("duplicate key violates unique index")

	// ErrConnectivity is returned when the database cannot be reached
	ErrConnectivity = errors.New("database unreachable")

	// ErrAuthentication is returned when the server rejects the administrative credentials
	ErrAuthentication = errors.New("authentication failed")
)

// MongoDB server error codes used for classification.
const (
	codeNamespaceExists       = 48
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
	codeDuplicateKey          = 11000
	codeDuplicateKeyLegacy    = 11001
	codeDuplicateKeyUpdate    = 12582
	codeUserAlreadyExists     = 51003
	codeAuthenticationFailed  = 18
)

// classifyError maps a driver error onto the bootstrap taxonomy. Errors that
// match no category are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case hasCode(err, codeUserAlreadyExists):
		return fmt.Errorf("%w: %w", ErrDuplicateUser, err)
	case hasCode(err, codeNamespaceExists):
		return fmt.Errorf("%w: %w", ErrCollectionExists, err)
	case hasCode(err, codeIndexOptionsConflict, codeIndexKeySpecsConflict):
		return fmt.Errorf("%w: %w", ErrIndexConflict, err)
	case mongo.IsDuplicateKeyError(err) || hasCode(err, codeDuplicateKey, codeDuplicateKeyLegacy, codeDuplicateKeyUpdate):
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	case isConnectivityErr(err):
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	return err
}

// classifyConnectError maps a connect or ping failure onto ErrAuthentication
// when the credentials were rejected and ErrConnectivity otherwise.
func classifyConnectError(err error) error {
	if isAuthErr(err) {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectivity, err)
}

func isAuthErr(err error) bool {
	if hasCode(err, codeAuthenticationFailed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "auth error") || strings.Contains(msg, "authenticationfailed")
}

func hasCode(err error, codes ...int) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.HasErrorCode(c) {
			return true
		}
	}
	return false
}

func isConnectivityErr(err error) bool {
	if errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}
