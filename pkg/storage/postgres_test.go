package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/timeseries"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStoreAppendPoint(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO series_points")).
		WithArgs("battery", "1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key := timeseries.Key{Kind: timeseries.KindBattery, Sub: "1"}
	if err := store.AppendPoint(context.Background(), key, batteryPoint(0, 94.208)); err != nil {
		t.Fatalf("AppendPoint returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreAppendPointError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO series_points")).
		WillReturnError(errors.New("connection refused"))

	key := timeseries.Key{Kind: timeseries.KindBattery, Sub: "1"}
	err := store.AppendPoint(context.Background(), key, batteryPoint(0, 94.208))
	if err == nil {
		t.Fatal("AppendPoint returned nil, want wrapped database error")
	}

	if err := store.AppendPoint(context.Background(), timeseries.Key{}, batteryPoint(0, 94.208)); err == nil {
		t.Fatal("AppendPoint with empty kind returned nil, want validation error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStorePutCamera(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cameras")).
		WithArgs("ATLAS_CAM2", "terminus", int64(5400)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cam := archive.Camera{Name: "ATLAS_CAM2", Description: "terminus", Interval: 90 * time.Minute}
	if err := store.PutCamera(context.Background(), cam); err != nil {
		t.Fatalf("PutCamera returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStorePutImage(t *testing.T) {
	store, mock := newMockStore(t)

	captured := time.Date(2017, 8, 1, 0, 11, 55, 0, time.UTC)
	locator := "https://img.example.com/ATLAS_CAM2/ATLAS_CAM2_20170801_001155.jpg"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO images")).
		WithArgs("ATLAS_CAM2", captured, locator).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := archive.ImageRecord{Camera: "ATLAS_CAM2", CapturedAt: captured, Locator: locator}
	if err := store.PutImage(context.Background(), rec); err != nil {
		t.Fatalf("PutImage returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreLoadSeries(t *testing.T) {
	store, mock := newMockStore(t)

	ts := time.Date(2017, 8, 1, 0, 0, 55, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"kind", "sub", "ts", "value"}).
		AddRow("battery", "1", ts, []byte(`{"battery":{"id":1,"state_of_charge":94.208}}`)).
		AddRow("battery", "1", ts.Add(time.Minute), []byte(`{"battery":{"id":1,"state_of_charge":94.1}}`)).
		AddRow("efoy", "1", ts, []byte(`{"efoy":{"id":1,"state":"auto off","cartridge":"1.1","consumed":3.741,"voltage":26.63,"current":-0.03}}`))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT kind, sub, ts, value FROM series_points")).
		WillReturnRows(rows)

	series, err := store.LoadSeries(context.Background())
	if err != nil {
		t.Fatalf("LoadSeries returned error: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("LoadSeries returned %d series, want 2", len(series))
	}

	battery := series[timeseries.Key{Kind: timeseries.KindBattery, Sub: "1"}]
	if len(battery) != 2 {
		t.Fatalf("battery series has %d points, want 2", len(battery))
	}
	if battery[0].Value.Battery == nil || battery[0].Value.Battery.StateOfCharge != 94.208 {
		t.Errorf("battery point value = %+v, want soc 94.208", battery[0].Value)
	}
	if !battery[0].Time.Equal(ts) {
		t.Errorf("battery point time = %v, want %v", battery[0].Time, ts)
	}

	efoy := series[timeseries.Key{Kind: timeseries.KindFuelCell, Sub: "1"}]
	if len(efoy) != 1 || efoy[0].Value.FuelCell == nil {
		t.Fatalf("efoy series = %+v, want 1 fuel cell point", efoy)
	}
	if efoy[0].Value.FuelCell.Voltage != 26.63 {
		t.Errorf("efoy voltage = %v, want 26.63", efoy[0].Value.FuelCell.Voltage)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreLoadCamerasAndImages(t *testing.T) {
	store, mock := newMockStore(t)

	camRows := sqlmock.NewRows([]string{"name", "description", "interval_seconds"}).
		AddRow("ATLAS_CAM1", "moulin", int64(3600)).
		AddRow("ATLAS_CAM2", "terminus", int64(5400))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, description, interval_seconds FROM cameras")).
		WillReturnRows(camRows)

	cams, err := store.LoadCameras(context.Background())
	if err != nil {
		t.Fatalf("LoadCameras returned error: %v", err)
	}
	if len(cams) != 2 || cams[1].Interval != 90*time.Minute {
		t.Fatalf("unexpected cameras: %+v", cams)
	}

	captured := time.Date(2017, 8, 1, 0, 11, 55, 0, time.UTC)
	imgRows := sqlmock.NewRows([]string{"camera", "captured_at", "locator"}).
		AddRow("ATLAS_CAM2", captured, "https://img.example.com/ATLAS_CAM2/a.jpg")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT camera, captured_at, locator FROM images")).
		WillReturnRows(imgRows)

	recs, err := store.LoadImages(context.Background())
	if err != nil {
		t.Fatalf("LoadImages returned error: %v", err)
	}
	if len(recs) != 1 || !recs[0].CapturedAt.Equal(captured) {
		t.Fatalf("unexpected image records: %+v", recs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
