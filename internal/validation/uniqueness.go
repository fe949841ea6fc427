package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/observability/metrics"
)

// RecordSource loads every record of a collection from the active backend
type RecordSource interface {
	ListCollection(ctx context.Context, collection string) ([]domain.Record, error)
}

// Policy decides what a uniqueness check reports when the backend cannot be read
type Policy int

const (
	// FailOpen treats "cannot verify" as "unique" so an outage never blocks writes
	FailOpen Policy = iota
	// FailClosed rejects the value when uniqueness cannot be verified
	FailClosed
)

func (p Policy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

var fieldLabels = map[string]string{
	"email":       "כתובת האימייל",
	"national_id": "מספר תעודת הזהות",
	"student_id":  "מספר הסטודנט",
	"employee_id": "מספר העובד",
	"code":        "קוד הקורס",
}

var entityLabels = map[string]string{
	domain.CollectionStudents:  "סטודנט",
	domain.CollectionLecturers: "מרצה",
	domain.CollectionCourses:   "קורס",
	domain.CollectionUsers:     "משתמש",
}

// UniquenessChecker scans a collection for records that already use a value
type UniquenessChecker struct {
	source RecordSource
	policy Policy
	logger *slog.Logger
}

// NewUniquenessChecker creates a checker reading through source
func NewUniquenessChecker(source RecordSource, policy Policy, logger *slog.Logger) *UniquenessChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &UniquenessChecker{source: source, policy: policy, logger: logger}
}

// Policy returns the configured outage policy
func (c *UniquenessChecker) Policy() Policy {
	return c.policy
}

// CheckUnique fails when another record of collection (other than excludeID) has field == value.
// Emails compare case-insensitively.
func (c *UniquenessChecker) CheckUnique(ctx context.Context, value, field, collection, excludeID string) FieldResult {
	value = strings.TrimSpace(value)
	if value == "" {
		return valid()
	}

	records, err := c.source.ListCollection(ctx, collection)
	if err != nil {
		metrics.ObserveUniquenessCheck(collection, c.policy.String())
		c.logger.Warn("uniqueness check could not read backend",
			slog.String("collection", collection),
			slog.String("field", field),
			slog.String("policy", c.policy.String()),
			slog.String("error", err.Error()),
		)
		if c.policy == FailClosed {
			return invalid("לא ניתן לאמת כרגע את ייחודיות הערך, נסו שוב מאוחר יותר")
		}
		return valid()
	}

	for _, rec := range records {
		if excludeID != "" && rec.ID() == excludeID {
			continue
		}
		existing := strings.TrimSpace(rec.String(field))
		if existing == "" {
			continue
		}
		same := existing == value
		if field == "email" {
			same = strings.EqualFold(existing, value)
		}
		if same {
			metrics.ObserveUniquenessCheck(collection, "conflict")
			return conflict(conflictMessage(field, collection))
		}
	}

	metrics.ObserveUniquenessCheck(collection, "unique")
	return valid()
}

func conflictMessage(field, collection string) string {
	label, ok := fieldLabels[field]
	if !ok {
		label = field
	}
	entity, ok := entityLabels[collection]
	if !ok {
		entity = "רשומה"
	}
	return fmt.Sprintf("%s כבר רשום במערכת עבור %s אחר", label, entity)
}
