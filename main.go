package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kurtjd/luxmeter/internal/luxmeter"
	"github.com/kurtjd/luxmeter/internal/tools"
	"github.com/kurtjd/luxmeter/tsl2591"
)

/*
	Entry point for the Lux Meter application. Meant to run at startup on a
	Raspberry Pi with a TSL2591 light sensor on the default I2C bus.
*/

func main() {
	pid := os.Getpid()
	log.Println("LuxMeter [" + fmt.Sprintf("%d", pid) + "]")

	// connect to the lux sensor
	device, err := tsl2591.Open("/dev/i2c-1")
	if err != nil {
		log.Fatalf("Failed to connect to the TSL2591 sensor: %v", err)
	}
	if err := device.SetIntegration(tsl2591.IntegrationTime300ms); err != nil {
		log.Fatalf("Failed to configure the TSL2591 sensor: %v", err)
	}

	// connect to the sqlite database
	db, err := tools.ConnectSqlite(luxmeter.DBPath)
	if err != nil {
		// Unlike connecting to the sensor, this should always work.
		log.Fatalf("Failed to connect to the sqlite database: %v", err)
	}

	// Initialize router
	r := chi.NewRouter()
	// Log requests and recover from panics
	r.Use(middleware.Logger)
	r.Use(handleServerPanic)

	// Define routes
	defineRoutes(r, &luxmeter.Meter{
		Sensor:         device,
		ResultsDB:      db,
		LuxResultsChan: make(chan luxmeter.LuxResult),
		Pid:            pid,
	})

	if os.Getenv("SSL") == "true" {
		// Generate a self-signed certificate if one doesn't exist
		tools.EnsureCertificate("cert.pem", "key.pem")

		log.Printf("Starting HTTPS server on port 443")
		err = http.ListenAndServeTLS(":443", "cert.pem", "key.pem", r)
		if err != nil {
			log.Fatalf("Failed to start HTTPS server: %v", err)
		}
	} else {
		log.Printf("Starting HTTP server on port 80")
		err = http.ListenAndServe(":80", r)
		if err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}
}

func defineRoutes(r *chi.Mux, meter *luxmeter.Meter) {
	// Listen for any readings from running jobs, record them in sqlite
	go meter.MonitorAndRecordResults()

	// Lux Meter Dashboard Controls
	r.Get("/", meter.ServeDashboard())
	r.Route("/luxmeter", func(r chi.Router) {
		r.Use(tools.CheckInNetwork)
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Get("/signal-strength", meter.SignalStrength())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/export", meter.ServeResultsDB())
		r.Post("/graph", meter.ServeResultsGraph())
		r.Get("/controls", meter.ServeLuxControls())
		r.Get("/status", meter.ServeSensorStatus())
		r.Post("/results", meter.ServeResultsTab())
		r.Get("/clear", meter.Clear())
	})

	// Lux Meter API, these serve a JSON response
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Get("/signal-strength", meter.SignalStrength())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/export", meter.ServeResultsDB())
	})

	// Route for service identification
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			ServiceName string `json:"service_name"`
		}{
			ServiceName: "Lux Meter",
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	})
}

func handleServerPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				luxmeter.ServeResponse(w, r, fmt.Sprintf("%v", err), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
