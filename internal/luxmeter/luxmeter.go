package luxmeter

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kurtjd/luxmeter/tsl2591"
)

//go:embed html/*
var templateFiles embed.FS

// Meter owns the sensor and the results database. The driver itself holds no
// locks, so every multi-transaction sensor operation goes through mu.
type Meter struct {
	Sensor         *tsl2591.Device
	ResultsDB      *sql.DB
	LuxResultsChan chan LuxResult
	Pid            int

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// LuxResult is one recorded reading. The channel outputs are normalized to
// the 16-bit range; Lux is the converted illuminance.
type LuxResult struct {
	Lux          float64
	Infrared     float64
	Visible      float64
	FullSpectrum float64
	Saturated    bool
	JobID        string
}

type Conditions struct {
	JobID                 string  `json:"jobID"`
	Lux                   float64 `json:"lux"`
	FullSpectrum          float64 `json:"fullSpectrum"`
	Visible               float64 `json:"visible"`
	Infrared              float64 `json:"infrared"`
	DateRange             string  `json:"dateRange"`
	RecordedHoursInRange  float64 `json:"recordedHoursInRange"`
	FullSunlightInRange   float64 `json:"fullSunlightInRange"`
	LightConditionInRange string  `json:"lightConditionInRange"`
	AverageLuxInRange     float64 `json:"averageLuxInRange"`
}

const (
	MaxJobDuration = 8 * time.Hour
	RecordInterval = 30 * time.Second
	DBPath         = "luxmeter.db"
)

// Start begins a measurement job: a loop that polls the sensor on every
// record interval and sends the readings off to be recorded.
func (m *Meter) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Println("It's going to be a bright day!")
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		} else if m.Running() {
			ServeResponse(w, r, "A measurement job is already running", http.StatusBadRequest)
			return
		}

		go m.run()
		ServeResponse(w, r, "Lux Reading Started", http.StatusOK)
	}
}

func (m *Meter) run() {
	// Bound the job lifecycle with a cancellable context
	ctx, cancel := context.WithTimeout(context.Background(), MaxJobDuration)
	m.mu.Lock()
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	jobID := uuid.New().String()
	ticker := time.NewTicker(RecordInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Job Cancelled, stopping sensor")
			return
		default:
		}

		result, err := m.takeReading(jobID)
		var satErr *tsl2591.SaturationError
		switch {
		case errors.Is(err, tsl2591.ErrCycleIncomplete):
			// nothing fresh yet, catch it next tick
		case errors.As(err, &satErr):
			// The reading is still usable, record it flagged and back the
			// gain off for the next cycle.
			log.Println(fmt.Sprintf("The sensor is saturated: %s", err.Error()))
			m.LuxResultsChan <- result
			if err := m.SetOptimalGain(); err != nil {
				log.Println(fmt.Sprintf("The sensor failed to find a workable gain: %s", err.Error()))
			} else {
				log.Println("The sensor has been reconfigured with a new optimal gain")
			}
		case err != nil:
			log.Println(fmt.Sprintf("The sensor failed to read: %s", err.Error()))
			m.LuxResultsChan <- LuxResult{JobID: jobID}
		default:
			m.LuxResultsChan <- result
		}
		<-ticker.C
	}
}

// takeReading performs one gated readout under the meter lock.
func (m *Meter) takeReading(jobID string) (LuxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.Sensor.RawAlsData(true)
	var satErr *tsl2591.SaturationError
	saturated := errors.As(err, &satErr)
	if err != nil && !saturated {
		return LuxResult{JobID: jobID}, err
	}

	lux := tsl2591.ComputeLux(data, m.Sensor.GainMultiplier(), m.Sensor.IntegrationMS())
	visible, infrared, full := NormalizedOutputs(data)
	return LuxResult{
		Lux:          lux.Float64(),
		Visible:      visible,
		Infrared:     infrared,
		FullSpectrum: full,
		Saturated:    saturated,
		JobID:        jobID,
	}, err
}

// NormalizedOutputs scales a raw readout into per-channel fractions of the
// 16-bit range.
func NormalizedOutputs(data tsl2591.AlsData) (visible, infrared, fullSpectrum float64) {
	vis := float64(data.Visible) - float64(data.Infrared)
	if vis < 0 {
		vis = 0
	}
	return vis / 0xFFFF, float64(data.Infrared) / 0xFFFF, float64(data.Visible) / 0xFFFF
}

// SetOptimalGain walks the gain and integration settings from least to most
// sensitive and keeps the first combination that produces a clean reading.
func (m *Meter) SetOptimalGain() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	gainOptions := []tsl2591.Gain{
		tsl2591.GainLow, tsl2591.GainMed, tsl2591.GainHigh, tsl2591.GainMax,
	}
	integrationOptions := []tsl2591.Integration{
		tsl2591.IntegrationTime600ms, tsl2591.IntegrationTime500ms,
		tsl2591.IntegrationTime400ms, tsl2591.IntegrationTime300ms,
		tsl2591.IntegrationTime200ms, tsl2591.IntegrationTime100ms,
	}
	for _, gain := range gainOptions {
		if err := m.Sensor.SetGain(gain); err != nil {
			return err
		}
		for _, integration := range integrationOptions {
			if err := m.Sensor.SetIntegration(integration); err != nil {
				return err
			}

			// let one full cycle finish before judging the setting
			time.Sleep(time.Duration(integration.Milliseconds())*time.Millisecond + 20*time.Millisecond)
			data, err := m.Sensor.RawAlsData(false)
			if err != nil || data.Visible == 0 {
				continue
			}
			log.Println(fmt.Sprintf("Set - Gain: %v, Integration Time: %v", gain, integration))
			return nil
		}
	}

	// Fall back to the least sensitive configuration
	if err := m.Sensor.SetGain(tsl2591.GainLow); err != nil {
		return err
	}
	if err := m.Sensor.SetIntegration(tsl2591.IntegrationTime100ms); err != nil {
		return err
	}
	return errors.New("all gain options are saturated")
}

// Running reports whether a measurement job is active.
func (m *Meter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stop cancels the active measurement job.
func (m *Meter) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		} else if !m.Running() {
			ServeResponse(w, r, "No measurement job is running", http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		m.cancel()
		m.mu.Unlock()
		ServeResponse(w, r, "Lux Reading Stopped", http.StatusOK)
	}
}

// CurrentConditions serves the most recent entry saved to the db.
func (m *Meter) CurrentConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		} else if !m.Running() {
			ServeResponse(w, r, "No measurement job is running", http.StatusBadRequest)
			return
		}
		conditions, err := m.getCurrentConditions()
		if err != nil {
			log.Println(err)
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}

		conditionsData, err := json.Marshal(conditions)
		if err != nil {
			log.Println(err)
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}

		ServeResponse(w, r, string(conditionsData), http.StatusOK)
	}
}

func (m *Meter) getCurrentConditions() (Conditions, error) {
	conditions := Conditions{}
	row := m.ResultsDB.QueryRow(
		"SELECT job_id, lux, full_spectrum, visible, infrared FROM readings ORDER BY id DESC LIMIT 1")
	err := row.Scan(&conditions.JobID, &conditions.Lux, &conditions.FullSpectrum,
		&conditions.Visible, &conditions.Infrared)
	if err != nil {
		return Conditions{}, err
	}
	return conditions, nil
}

// SignalStrength reports the wifi link quality of the device the meter runs
// on.
func (m *Meter) SignalStrength() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd := exec.Command("sh", "-c", "iw dev wlan0 link | grep 'signal:' | awk '{print $2}'")
		output, err := cmd.Output()
		if err != nil {
			log.Println(err)
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		signalInt, err := strconv.Atoi(strings.TrimSpace(string(output)))
		if err != nil {
			ServeResponse(w, r, "Device is not connected to a network", http.StatusBadRequest)
			return
		}

		// Scale dBm to a percentage the way iwinfo does
		if signalInt < -110 {
			signalInt = -110
		} else if signalInt > -40 {
			signalInt = -40
		}
		strength := (signalInt + 110) * 100 / 70

		log.Println("Signal: ", fmt.Sprintf("%d", signalInt), " dBm")
		log.Println("Strength: ", strength, "%")

		ServeResponse(w, r,
			"Signal Strength: "+fmt.Sprintf("%d", signalInt)+" dBm\nQuality: "+fmt.Sprintf("%d", strength)+"%",
			http.StatusOK)
	}
}

// ServeResponse populates the response div with a message, or replies with a
// JSON message on the API routes.
func ServeResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	if strings.Contains(r.URL.Path, "/api/v1/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"message": message})
		return
	}

	tmpl, err := parseTemplateFile("html/response.gohtml")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, message); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseTemplateFile(path string) (*template.Template, error) {
	content, err := templateFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template: %w", err)
	}
	return template.New("results").Parse(string(content))
}

// MonitorAndRecordResults reads from LuxResultsChan and writes the readings
// to sqlite.
func (m *Meter) MonitorAndRecordResults() {
	log.Println("Monitoring for new lux readings...")
	for result := range m.LuxResultsChan {
		log.Println(fmt.Sprintf("- JobID: %s, Lux: %.5f, Saturated: %t",
			result.JobID, result.Lux, result.Saturated))
		_, err := m.ResultsDB.Exec(
			"INSERT INTO readings (job_id, lux, full_spectrum, visible, infrared) VALUES (?, ?, ?, ?, ?)",
			result.JobID,
			result.Lux,
			result.FullSpectrum,
			result.Visible,
			result.Infrared,
		)
		if err != nil {
			log.Println(err)
		}
	}
}
