package hsp

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lox/railscore/internal/models"
	"github.com/lox/railscore/internal/timeutil"
)

// Skip reasons for feed records that cannot be normalized. These are counted,
// not errored: a malformed provider record must not abort the run.
const (
	SkipMissingDate      = "missing_date"
	SkipMissingCorridor  = "missing_corridor"
	SkipMissingDeparture = "missing_departure"
)

// ServiceKey derives the stable deduplication key: a deterministic hash of
// the fields that identify one scheduled service. Must be reproducible
// byte-for-byte across runs given identical inputs.
func ServiceKey(origin, destination, operator, serviceDate, schedDepISO string) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s", origin, destination, operator, serviceDate, schedDepISO)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// EventFromDetails maps one /serviceDetails record into a canonical event.
// The template fills schedule fields the detail record omits. Returns a
// non-empty skip reason (and no error) for incomplete records; an error only
// for malformed time values.
func EventFromDetails(rid string, details *ServiceDetails, fromLoc, toLoc string, tmpl Template, loc *time.Location) (*models.CanonicalServiceEvent, string, error) {
	data := details.Attributes

	dos := strings.TrimSpace(data.DateOfService)
	if dos == "" {
		return nil, SkipMissingDate, nil
	}
	serviceDate, err := timeutil.ParseServiceDate(dos)
	if err != nil {
		return nil, "", fmt.Errorf("rid %s: bad date_of_service %q: %w", rid, dos, err)
	}

	toc := strings.TrimSpace(data.TocCode)
	if toc == "" {
		toc = tmpl.Toc
	}

	var originRow, destRow *DetailLocation
	for i := range data.Locations {
		switch data.Locations[i].Location {
		case fromLoc:
			if originRow == nil {
				originRow = &data.Locations[i]
			}
		case toLoc:
			if destRow == nil {
				destRow = &data.Locations[i]
			}
		}
	}
	if originRow == nil || destRow == nil {
		return nil, SkipMissingCorridor, nil
	}

	gbttPtd := strings.TrimSpace(originRow.GbttPtd)
	if gbttPtd == "" {
		gbttPtd = tmpl.GbttPtd
	}
	gbttPta := strings.TrimSpace(destRow.GbttPta)
	if gbttPta == "" {
		gbttPta = tmpl.GbttPta
	}

	schedDep, err := timeutil.HHMMToTime(serviceDate, gbttPtd, loc)
	if err != nil {
		return nil, "", fmt.Errorf("rid %s: %w", rid, err)
	}
	if schedDep.IsZero() {
		return nil, SkipMissingDeparture, nil
	}

	schedArrRaw, err := timeutil.HHMMToTime(serviceDate, gbttPta, loc)
	if err != nil {
		return nil, "", fmt.Errorf("rid %s: %w", rid, err)
	}
	schedArr := timeutil.RollIfNextDay(schedDep, schedArrRaw)

	actArrRaw, err := timeutil.HHMMToTime(serviceDate, strings.TrimSpace(destRow.ActualTa), loc)
	if err != nil {
		return nil, "", fmt.Errorf("rid %s: %w", rid, err)
	}
	actArr := timeutil.RollIfNextDay(schedDep, actArrRaw)

	// A service is cancelled exactly when no actual arrival resolved.
	cancelled := actArr.IsZero()

	var delayMin sql.NullInt64
	if !cancelled && !schedArr.IsZero() {
		mins := int64(math.Round(actArr.Sub(schedArr).Seconds() / 60.0))
		delayMin = sql.NullInt64{Int64: mins, Valid: true}
	}

	ev := &models.CanonicalServiceEvent{
		Source:             "hsp",
		SourceEventID:      sql.NullString{String: rid, Valid: rid != ""},
		ServiceDate:        dos,
		Operator:           toc,
		Origin:             fromLoc,
		Destination:        toLoc,
		ScheduledDeparture: schedDep,
		Cancelled:          cancelled,
		ArrivalDelayMin:    delayMin,
		DepHHMM:            timeutil.FormatHHMM(schedDep),
		ServiceKey:         ServiceKey(fromLoc, toLoc, toc, dos, schedDep.Format(time.RFC3339)),
	}
	if !schedArr.IsZero() {
		ev.ScheduledArrival = sql.NullTime{Time: schedArr, Valid: true}
	}
	if !actArr.IsZero() {
		ev.ActualArrival = sql.NullTime{Time: actArr, Valid: true}
	}
	return ev, "", nil
}
