package alerting

import (
	"fmt"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// NotFoundError indicates the referenced alert does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alert %s not found", e.ID)
}

// InvalidStateError indicates a lifecycle transition was rejected because
// the alert is not in a status the operation accepts.
type InvalidStateError struct {
	ID     string
	Status models.AlertStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s alert %s in status %s", e.Op, e.ID, e.Status)
}
