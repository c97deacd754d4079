package repository

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by a backend that is not connected or has lost
// its connection. NewDegradingStore turns it into degraded-mode results.
var ErrUnavailable = errors.New("local store unavailable")

// ErrNotFound represents a resource not found error in the repository layer.
type ErrNotFound struct {
	Resource string // The type of resource (e.g., "page")
	Key      string // The id or handle that was not found
	Tenant   string // The shop the lookup was scoped to
}

func (e ErrNotFound) Error() string {
	if e.Tenant != "" {
		return fmt.Sprintf("%s '%s' not found for shop '%s'", e.Resource, e.Key, e.Tenant)
	}
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.Key)
}

// IsNotFound checks if an error is a repository not found error.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// ErrConflict represents a conflict error in the repository layer.
type ErrConflict struct {
	Resource string
	Field    string // "id" or "handle" when the clashing attribute is known
	Key      string
	Reason   string
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("conflict with %s '%s': %s", e.Resource, e.Key, e.Reason)
}

// IsConflict checks if an error is a repository conflict error.
func IsConflict(err error) bool {
	var c ErrConflict
	return errors.As(err, &c)
}

// IsHandleConflict reports whether err is a conflict on the (tenant, handle) pair.
func IsHandleConflict(err error) bool {
	var c ErrConflict
	return errors.As(err, &c) && c.Field == "handle"
}

// IsUnavailable reports whether err signals a lost or missing connection.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// NewPageNotFound creates a new ErrNotFound for a page.
func NewPageNotFound(tenant, key string) ErrNotFound {
	return ErrNotFound{Resource: "page", Key: key, Tenant: tenant}
}

// NewHandleConflict reports a duplicate (tenant, handle) pair.
func NewHandleConflict(handle string) ErrConflict {
	return ErrConflict{Resource: "page", Field: "handle", Key: handle, Reason: "handle already exists for this shop"}
}

// NewIDConflict reports a duplicate (tenant, id) pair.
func NewIDConflict(id string) ErrConflict {
	return ErrConflict{Resource: "page", Field: "id", Key: id, Reason: "id already exists for this shop"}
}
