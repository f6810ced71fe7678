package access

import "errors"

var (
	ErrAccessDenied     = errors.New("access: denied")
	ErrInvalidRole      = errors.New("access: invalid role")
	ErrProfileNotFound  = errors.New("access: employee profile not found")
	ErrHierarchyCycle   = errors.New("access: reporting hierarchy contains a cycle")
	ErrHierarchyTooDeep = errors.New("access: reporting hierarchy exceeds maximum depth")
)
