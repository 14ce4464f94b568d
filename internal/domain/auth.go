package domain

import (
	"fmt"
	"strings"
)

const (
	PermReadSchedule  = "read:schedule"
	PermWriteSchedule = "write:schedule"
	PermAdmin         = "admin"
)

// AuthContext is the caller identity handed to every service call.
// A zero value is an unauthenticated caller.
type AuthContext struct {
	Subject       string
	Authenticated bool
	Permissions   []string
}

// Admin returns an authenticated context with every permission.
func Admin(subject string) AuthContext {
	return AuthContext{Subject: subject, Authenticated: true}
}

// Has reports whether the caller holds perm. An empty permission list grants everything.
func (a AuthContext) Has(perm string) bool {
	if !a.Authenticated {
		return false
	}
	if len(a.Permissions) == 0 {
		return true
	}
	for _, p := range a.Permissions {
		p = strings.TrimSpace(p)
		if p == perm || p == PermAdmin {
			return true
		}
	}
	return false
}

func (a AuthContext) CanWrite() bool {
	return a.Has(PermWriteSchedule)
}

// RequireWrite returns ErrUnauthorized unless the caller may mutate the schedule.
func (a AuthContext) RequireWrite() error {
	if a.CanWrite() {
		return nil
	}
	if !a.Authenticated {
		return fmt.Errorf("%w: authentication required", ErrUnauthorized)
	}
	return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, a.Subject, PermWriteSchedule)
}
