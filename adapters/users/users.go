// Package users holds user directory implementations. The directory is an
// external collaborator of authentication: it learns about every
// successful login but never decides one.
package users

import (
	"strings"

	"github.com/google/uuid"
)

// defaultName is given to users created on their first login
func defaultName() string {
	return "User_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
