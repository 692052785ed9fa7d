package tools

import (
	"log"
	"net"
	"net/http"
	"time"
)

const (
	layoutInput = "2006-01-02T15:04"
	layoutDB    = "2006-01-02 15:04:05"
)

// CheckInNetwork rejects dashboard requests that don't come from the local
// network.
func CheckInNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		parsedIP := net.ParseIP(ip)
		if parsedIP == nil {
			http.Error(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		if !isLocalAddress(parsedIP) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLocalAddress(ip net.IP) bool {
	privateBlocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
	}
	for _, block := range privateBlocks {
		_, cidr, _ := net.ParseCIDR(block)
		if cidr.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback()
}

// ParseStartAndEndDate reads the requested date range and formats it for
// comparison against the DB's UTC timestamps. An empty range defaults to the
// last eight hours.
func ParseStartAndEndDate(r *http.Request) (string, string) {
	r.ParseForm()
	startDate := r.FormValue("start")
	endDate := r.FormValue("end")
	if startDate == "" || endDate == "" {
		now := time.Now().UTC()
		return now.Add(-8 * time.Hour).Format(layoutDB), now.Format(layoutDB)
	}

	// Form inputs carry no zone, treat them as server-local time.
	if t, err := time.ParseInLocation(layoutInput, startDate, time.Local); err != nil {
		log.Println("Error parsing start date:", err)
	} else {
		startDate = t.UTC().Format(layoutDB)
	}
	if t, err := time.ParseInLocation(layoutInput, endDate, time.Local); err != nil {
		log.Println("Error parsing end date:", err)
	} else {
		endDate = t.UTC().Format(layoutDB)
	}
	return startDate, endDate
}

// StartAndEndDateToTime parses DB-formatted timestamps back into time values.
func StartAndEndDateToTime(startDate string, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(layoutDB, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(layoutDB, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
