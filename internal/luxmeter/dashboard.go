package luxmeter

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/kurtjd/luxmeter/internal/tools"
)

// ServeResultsDB serves the sqlite db for download.
func (m *Meter) ServeResultsDB() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", DBPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, DBPath)
	}
}

// ServeDashboard serves the homepage.
func (m *Meter) ServeDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := templateFiles.ReadFile("html/dashboard.html")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}
}

// ServeLuxControls serves the start/stop/export/conditions control panel.
func (m *Meter) ServeLuxControls() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := parseTemplateFile("html/controls.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := tmpl.Execute(w, nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// ServeSensorStatus reports whether the sensor is connected and measuring.
func (m *Meter) ServeSensorStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := parseTemplateFile("html/status.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		type Status struct {
			Connected bool
			Running   bool
		}
		status := Status{}
		if m.Sensor != nil {
			status.Connected = true
			status.Running = m.Running()
		}

		if err := tmpl.Execute(w, status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// ServeResultsGraph renders the lux-over-time chart for the requested date
// range.
func (m *Meter) ServeResultsGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startDate, endDate := tools.ParseStartAndEndDate(r)

		rows, err := m.ResultsDB.Query(
			"SELECT lux, created_at FROM readings WHERE created_at BETWEEN ? AND ? ORDER BY created_at",
			startDate, endDate)
		if err != nil {
			log.Println(err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		var luxValues []opts.LineData
		var timeValues []string
		var maxLux int
		for rows.Next() {
			var lux float64
			var createdAt time.Time
			if err := rows.Scan(&lux, &createdAt); err != nil {
				log.Println(err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if lux > float64(maxLux) {
				// Round up to the nearest 5000
				maxLux = int(math.Ceil(lux/5000) * 5000)
			}
			luxValues = append(luxValues, opts.LineData{Value: lux})
			timeValues = append(timeValues, createdAt.Format("2006-01-02 15:04:05"))
		}
		if err := rows.Err(); err != nil {
			log.Println(err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		line := charts.NewLine()

		// Reference bands for common daylight levels
		levels := map[int]string{
			500:   "DarkGrey",
			1000:  "WhiteSmoke",
			10000: "SkyBlue",
			25000: "Yellow",
		}
		titles := map[int]string{
			500:   "Shade",
			1000:  "Partial Shade",
			10000: "Partial Sun",
			25000: "Full Sun",
		}
		for level, color := range levels {
			line.AddSeries(
				titles[level],
				func(level int, length int) []opts.LineData {
					data := make([]opts.LineData, length)
					for i := range data {
						data[i] = opts.LineData{Value: level}
					}
					return data
				}(level, len(timeValues)),
				charts.WithLineChartOpts(opts.LineChart{
					Color: color,
				}),
			)
		}

		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				Theme: types.ThemeChalk,
			}),
			charts.WithXAxisOpts(opts.XAxis{
				Name: "Time",
			}),
			charts.WithYAxisOpts(opts.YAxis{
				Name: "Lux",
				Min:  "0",
				Max:  fmt.Sprintf("%d", maxLux),
			}),
			charts.WithTooltipOpts(opts.Tooltip{
				Show:      true,
				Trigger:   "axis",
				TriggerOn: "mousemove",
				Formatter: "{a4}: {c4}<br> Time: {b0}",
			}),
			charts.WithToolboxOpts(opts.Toolbox{
				Show: true,
				Feature: &opts.ToolBoxFeature{
					SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
						Show:  true,
						Title: "Save as Image",
						Name:  "luxmeter",
					},
				},
			}),
		)
		line.SetXAxis(timeValues).AddSeries("Lux", luxValues)

		page := components.NewPage()
		page.AddCharts(line)

		w.Header().Set("Content-Type", "text/html")
		page.Render(w)
		// Trigger an update for the results tab
		w.Write([]byte(`<div id='resultUpdateTrigger' hx-post='/luxmeter/results' hx-target='#resultsContent' hx-trigger='load'></div>`))
		w.Write([]byte(`<script>document.title = "Lux Meter";</script>`))
	}
}

// ServeResultsTab updates the info in the results tab.
func (m *Meter) ServeResultsTab() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := m.getCurrentConditions()
		if err != nil && err != sql.ErrNoRows {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		startDate, endDate := tools.ParseStartAndEndDate(r)
		conditions, err = m.getHistoricalConditions(conditions, startDate, endDate)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		tmpl, err := parseTemplateFile("html/results.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		type ConditionsForDisplay struct {
			JobID                 string `json:"jobID"`
			Lux                   string `json:"lux"`
			FullSpectrum          string `json:"fullSpectrum"`
			Visible               string `json:"visible"`
			Infrared              string `json:"infrared"`
			DateRange             string `json:"dateRange"`
			RecordedHoursInRange  string `json:"recordedHoursInRange"`
			FullSunlightInRange   string `json:"fullSunlightInRange"`
			LightConditionInRange string `json:"lightConditionInRange"`
			AverageLuxInRange     string `json:"averageLuxInRange"`
			StartDate             string `json:"startDate"`
			EndDate               string `json:"endDate"`
		}
		err = tmpl.Execute(w, ConditionsForDisplay{
			JobID:                 conditions.JobID,
			Lux:                   fmt.Sprintf("%.4f", conditions.Lux),
			FullSpectrum:          fmt.Sprintf("%.4f", conditions.FullSpectrum),
			Visible:               fmt.Sprintf("%.4f", conditions.Visible),
			Infrared:              fmt.Sprintf("%.4f", conditions.Infrared),
			DateRange:             conditions.DateRange,
			RecordedHoursInRange:  fmt.Sprintf("%.4f", conditions.RecordedHoursInRange),
			FullSunlightInRange:   fmt.Sprintf("%.4f", conditions.FullSunlightInRange),
			LightConditionInRange: conditions.LightConditionInRange,
			AverageLuxInRange:     fmt.Sprintf("%.4f", conditions.AverageLuxInRange),
			StartDate:             startDate,
			EndDate:               endDate,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// getHistoricalConditions fills the date-range aggregates: average lux,
// recorded hours, and the share of time in full sunlight.
func (m *Meter) getHistoricalConditions(conditions Conditions, startDate string, endDate string) (Conditions, error) {
	if m.ResultsDB == nil {
		return conditions, nil
	}
	conditions.DateRange = fmt.Sprintf("%s - %s UTC", startDate, endDate)

	row := m.ResultsDB.QueryRow(`
    SELECT
        COALESCE(AVG(lux), 0),
        COALESCE(MIN(created_at), '0001-01-01 00:00:00'),
        COALESCE(MAX(created_at), '0001-01-01 00:00:00')
    FROM readings
    WHERE created_at BETWEEN ? AND ?`, startDate, endDate)
	var oldest, mostRecent sql.NullString
	if err := row.Scan(&conditions.AverageLuxInRange, &oldest, &mostRecent); err != nil {
		return conditions, err
	}
	if conditions.AverageLuxInRange == 0 {
		conditions.LightConditionInRange = "No Data in Range"
		return conditions, nil
	}

	// Minutes where the per-minute average was above full-sun strength
	rows, err := m.ResultsDB.Query(`
    SELECT COUNT(*)
    FROM (
        SELECT AVG(lux) as avg_lux
        FROM readings
        WHERE created_at BETWEEN ? AND ?
        GROUP BY strftime('%H:%M', created_at)
    )
    WHERE avg_lux > 10000`, startDate, endDate)
	if err != nil {
		return conditions, err
	}
	defer rows.Close()

	var fullSunMinutes sql.NullFloat64
	if rows.Next() {
		if err := rows.Scan(&fullSunMinutes); err != nil {
			return conditions, err
		}
	}
	if fullSunMinutes.Valid {
		conditions.FullSunlightInRange = fullSunMinutes.Float64 / 60
	}

	if oldest.Valid && mostRecent.Valid {
		first, last, err := tools.StartAndEndDateToTime(oldest.String, mostRecent.String)
		if err != nil {
			return conditions, err
		}
		conditions.RecordedHoursInRange = last.Sub(first).Hours()
		switch ratio := conditions.FullSunlightInRange / conditions.RecordedHoursInRange; {
		case ratio > 0.5:
			conditions.LightConditionInRange = "Full Sun"
		case ratio > 0.25:
			conditions.LightConditionInRange = "Partial Sun"
		case ratio > 0.1:
			conditions.LightConditionInRange = "Partial Shade"
		default:
			conditions.LightConditionInRange = "Shade"
		}
	}

	return conditions, nil
}

// Clear empties a div, htmx-style.
func (m *Meter) Clear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
	}
}
