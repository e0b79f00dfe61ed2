package storage

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/shopspring/decimal"
)

// TIME columns are read as whole seconds and written as text.
const secondsExpr = "EXTRACT(EPOCH FROM %s)::int"

func seconds(col string) string {
	return fmt.Sprintf(secondsExpr, col)
}

func dateArg(d model.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func optionalDateArg(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func optionalTimeArg(t *model.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return t.String()
}

func optionalTimeOfDay(secs *int) *model.TimeOfDay {
	if secs == nil {
		return nil
	}
	v := model.TimeOfDay(*secs)
	return &v
}

func optionalDate(t *time.Time) *model.Date {
	if t == nil {
		return nil
	}
	d := model.DateOf(*t)
	return &d
}

func parseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// translate maps driver errors onto the error taxonomy.
func translate(err error, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return apperr.NotFound(notFound)
	case db.IsExclusionViolation(err), db.IsUniqueViolation(err):
		return apperr.Conflict(conflict)
	default:
		return err
	}
}
