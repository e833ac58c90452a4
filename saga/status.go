package saga

import "github.com/pkg/errors"

type Status string

const (
	StatusPending     Status = "pending"
	StatusCompleted   Status = "completed"
	StatusCompensated Status = "compensated"
)

func (s Status) String() string {
	return string(s)
}

// Terminal is true for completed and compensated sagas. Nothing leaves a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompensated
}

func StatusFromStr(str string) (Status, error) {
	switch Status(str) {
	case StatusPending, StatusCompleted, StatusCompensated:
		return Status(str), nil
	default:
		return "", errors.Errorf("unknown saga status %s", str)
	}
}
