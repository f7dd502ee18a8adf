package queue

import "errors"

// ErrDuplicateTask indicates an active task already exists for the
// generation; duplicate concurrent runs are rejected, not merged.
var ErrDuplicateTask = errors.New("active task already exists for generation")

// ErrNoTask indicates no claimable task is currently available.
var ErrNoTask = errors.New("no task available")
