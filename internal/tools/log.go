package tools

import (
	"io"
	"log"
	"os"
)

// Mirror everything we log into luxmeter.log
func init() {
	logFile, err := os.OpenFile("luxmeter.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	log.SetOutput(io.MultiWriter(logFile, os.Stdout))
}
