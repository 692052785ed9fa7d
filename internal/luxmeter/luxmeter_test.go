package luxmeter

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurtjd/luxmeter/internal/tools"
	"github.com/kurtjd/luxmeter/tsl2591"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, tools.RunMigrations(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func insertReading(t *testing.T, db *sql.DB, jobID string, lux float64, createdAt string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO readings (job_id, lux, full_spectrum, visible, infrared, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		jobID, lux, lux/65535, lux/65535, lux/131070, createdAt)
	require.NoError(t, err)
}

func TestNormalizedOutputs(t *testing.T) {
	visible, infrared, full := NormalizedOutputs(tsl2591.AlsData{Visible: 0xFFFF, Infrared: 0})
	assert.InDelta(t, 1.0, visible, 1e-9)
	assert.InDelta(t, 0.0, infrared, 1e-9)
	assert.InDelta(t, 1.0, full, 1e-9)

	// infrared above visible clamps the visible fraction at zero
	visible, infrared, full = NormalizedOutputs(tsl2591.AlsData{Visible: 100, Infrared: 300})
	assert.InDelta(t, 0.0, visible, 1e-9)
	assert.InDelta(t, 300.0/65535, infrared, 1e-9)
	assert.InDelta(t, 100.0/65535, full, 1e-9)
}

func TestGetCurrentConditionsReturnsLatestRow(t *testing.T) {
	m := &Meter{ResultsDB: newTestDB(t)}
	insertReading(t, m.ResultsDB, "job-old", 120.5, "2026-08-29 10:00:00")
	insertReading(t, m.ResultsDB, "job-new", 980.25, "2026-08-29 11:00:00")

	conditions, err := m.getCurrentConditions()
	require.NoError(t, err)
	assert.Equal(t, "job-new", conditions.JobID)
	assert.InDelta(t, 980.25, conditions.Lux, 1e-9)
}

func TestGetHistoricalConditionsEmptyRange(t *testing.T) {
	m := &Meter{ResultsDB: newTestDB(t)}

	conditions, err := m.getHistoricalConditions(Conditions{}, "2026-08-29 00:00:00", "2026-08-29 23:59:59")
	require.NoError(t, err)
	assert.Equal(t, "No Data in Range", conditions.LightConditionInRange)
}

func TestGetHistoricalConditionsFullSun(t *testing.T) {
	m := &Meter{ResultsDB: newTestDB(t)}

	// two hours of minute-by-minute full-sun readings
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		insertReading(t, m.ResultsDB, "job-sun", 30000,
			base.Add(time.Duration(i)*time.Minute).Format("2006-01-02 15:04:05"))
	}

	conditions, err := m.getHistoricalConditions(Conditions{}, "2026-08-29 00:00:00", "2026-08-29 23:59:59")
	require.NoError(t, err)
	assert.Equal(t, "Full Sun", conditions.LightConditionInRange)
	assert.InDelta(t, 30000, conditions.AverageLuxInRange, 1e-9)
	assert.InDelta(t, 2.0, conditions.FullSunlightInRange, 0.05)
}

func TestMonitorAndRecordResults(t *testing.T) {
	m := &Meter{
		ResultsDB:      newTestDB(t),
		LuxResultsChan: make(chan LuxResult),
	}
	done := make(chan struct{})
	go func() {
		m.MonitorAndRecordResults()
		close(done)
	}()

	m.LuxResultsChan <- LuxResult{
		Lux:          22.032,
		Visible:      0.013,
		Infrared:     0.002,
		FullSpectrum: 0.015,
		JobID:        "job-record",
	}
	close(m.LuxResultsChan)
	<-done

	var count int
	require.NoError(t, m.ResultsDB.QueryRow(
		"SELECT COUNT(*) FROM readings WHERE job_id = ?", "job-record").Scan(&count))
	assert.Equal(t, 1, count)
}
