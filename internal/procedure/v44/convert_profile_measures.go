// Package v44 holds the bulk data procedures introduced with schema 4.4.
package v44

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/loykin/stepmigrate/internal/catalog"
	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/constants"
	"github.com/loykin/stepmigrate/internal/dbx"
	"github.com/loykin/stepmigrate/internal/procedure"
	"github.com/loykin/stepmigrate/internal/store/connector"
)

// ConvertProfileMeasuresID is the id the procedure is registered under.
const ConvertProfileMeasuresID = "org.sonar.server.db.migrations.v44.ConvertProfileMeasuresMigration"

// ProfileMetricName is the metric whose measures hold a bare profile id.
const ProfileMetricName = "profile"

// ConvertProfileMeasures rewrites measures of the "profile" metric from a
// numeric profile id into a JSON description of the profile.
type ConvertProfileMeasures struct {
	MetricsTable  string
	MeasuresTable string
	ProfilesTable string
}

// Result summarizes one conversion pass.
type Result struct {
	Converted int
	Skipped   int
}

type profileRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

type measure struct {
	id        int64
	profileID int64
}

// NewConvertProfileMeasures returns the procedure bound to the default table names.
func NewConvertProfileMeasures() *ConvertProfileMeasures {
	return &ConvertProfileMeasures{
		MetricsTable:  constants.DefaultMetricsTable,
		MeasuresTable: constants.DefaultProjectMeasuresTable,
		ProfilesTable: constants.DefaultRulesProfilesTable,
	}
}

// Register installs the procedure in reg under ConvertProfileMeasuresID.
func Register(reg *procedure.Registry, p *ConvertProfileMeasures) error {
	if p == nil {
		p = NewConvertProfileMeasures()
	}
	return reg.Register(ConvertProfileMeasuresID, p)
}

// Execute implements procedure.Procedure.
func (c *ConvertProfileMeasures) Execute(ctx context.Context, h dbx.Handle) error {
	_, err := c.Convert(ctx, h)
	return err
}

// Convert runs the conversion in a single transaction and reports what it did.
func (c *ConvertProfileMeasures) Convert(ctx context.Context, h dbx.Handle) (Result, error) {
	var res Result
	for _, t := range []string{c.MeasuresTable, c.ProfilesTable} {
		if err := connector.ValidateTableName(t); err != nil {
			return res, err
		}
	}
	metrics, err := catalog.New(c.MetricsTable)
	if err != nil {
		return res, err
	}
	logger := common.GetLogger().WithComponent("v44").WithProcedure(ConvertProfileMeasuresID)

	err = dbx.InTx(ctx, h, func(tx dbx.Handle) error {
		res = Result{}
		metric, ok, err := metrics.FindByName(ctx, tx, ProfileMetricName)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("no profile metric, nothing to convert")
			return nil
		}

		measures, err := c.profileMeasures(ctx, tx, metric.ID)
		if err != nil {
			return err
		}

		progress := procedure.ProgressFrom(ctx)
		progress.Start(len(measures))
		defer progress.Finish()

		for _, m := range measures {
			if err := ctx.Err(); err != nil {
				return err
			}
			ref, found, err := c.findProfile(ctx, tx, m.profileID)
			if err != nil {
				return err
			}
			if !found {
				logger.Debug("profile not found, measure left unchanged", "measure_id", m.id, "profile_id", m.profileID)
				res.Skipped++
				progress.Add(1)
				continue
			}
			if err := c.rewrite(ctx, tx, m.id, ref); err != nil {
				return err
			}
			res.Converted++
			progress.Add(1)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	logger.Info("profile measures converted", "converted", res.Converted, "skipped", res.Skipped)
	return res, nil
}

// profileMeasures loads every candidate up front; the connection is reused
// for the lookups and updates that follow.
func (c *ConvertProfileMeasures) profileMeasures(ctx context.Context, h dbx.Handle, metricID int64) ([]measure, error) {
	q, args, err := h.Builder().
		Select("id", "value").
		From(c.MeasuresTable).
		Where(sq.And{sq.Eq{"metric_id": metricID}, sq.NotEq{"value": nil}}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := h.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select profile measures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []measure
	for rows.Next() {
		var id int64
		var value sql.NullFloat64
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("scan profile measure: %w", err)
		}
		if !value.Valid {
			continue
		}
		out = append(out, measure{id: id, profileID: int64(math.Round(value.Float64))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile measures: %w", err)
	}
	return out, nil
}

func (c *ConvertProfileMeasures) findProfile(ctx context.Context, h dbx.Handle, id int64) (profileRef, bool, error) {
	q, args, err := h.Builder().
		Select("id", "name", "language").
		From(c.ProfilesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return profileRef{}, false, err
	}
	var ref profileRef
	var language sql.NullString
	err = h.DB.QueryRowContext(ctx, q, args...).Scan(&ref.ID, &ref.Name, &language)
	if errors.Is(err, sql.ErrNoRows) {
		return profileRef{}, false, nil
	}
	if err != nil {
		return profileRef{}, false, fmt.Errorf("select profile %d: %w", id, err)
	}
	ref.Language = language.String
	return ref, true, nil
}

func (c *ConvertProfileMeasures) rewrite(ctx context.Context, h dbx.Handle, measureID int64, ref profileRef) error {
	text, err := json.Marshal([]profileRef{ref})
	if err != nil {
		return err
	}
	q, args, err := h.Builder().
		Update(c.MeasuresTable).
		Set("value", nil).
		Set("text_value", string(text)).
		Where(sq.Eq{"id": measureID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := h.DB.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("update measure %d: %w", measureID, err)
	}
	return nil
}
