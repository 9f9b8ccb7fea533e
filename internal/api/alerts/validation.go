package alerts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

const maxBulkIDs = 100

func ValidateType(t string) (models.AlertType, error) {
	alertType, ok := models.ParseAlertType(t)
	if !ok {
		return "", fmt.Errorf("unknown alert type %q", t)
	}
	return alertType, nil
}

func ValidateSeverity(s string) (models.Severity, error) {
	switch s {
	case "low", "medium", "high", "critical":
		return models.Severity(s), nil
	default:
		return "", errors.New("severity must be 'low', 'medium', 'high', or 'critical'")
	}
}

func ValidateStatus(s string) (models.AlertStatus, error) {
	switch s {
	case "created", "acknowledged", "resolved":
		return models.AlertStatus(s), nil
	default:
		return "", errors.New("status must be 'created', 'acknowledged', or 'resolved'")
	}
}

func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user_id is required")
	}
	return nil
}

func ValidateIDs(ids []string) error {
	if len(ids) == 0 {
		return errors.New("ids is required")
	}
	if len(ids) > maxBulkIDs {
		return fmt.Errorf("ids must contain %d entries or fewer", maxBulkIDs)
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return errors.New("ids must not contain empty entries")
		}
	}
	return nil
}
