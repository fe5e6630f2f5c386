package api

import (
	"net/http"

	"github.com/fuomag9/onlinetracker/internal/store"
	"github.com/fuomag9/onlinetracker/internal/uptime"
)

// HandleGetMonitorUptime returns uptime statistics for a monitor
func HandleGetMonitorUptime(st store.Store) http.HandlerFunc {
	calculator := uptime.NewCalculator(st)
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := monitorFromURL(w, r, st)
		if !ok {
			return
		}

		var (
			stats *uptime.UptimeStats
			err   error
		)

		// Get period from query param (default to 24h)
		switch r.URL.Query().Get("period") {
		case "7d":
			stats, err = calculator.Calculate7DayUptime(r.Context(), m.ID)
		case "30d":
			stats, err = calculator.Calculate30DayUptime(r.Context(), m.ID)
		case "", "24h":
			stats, err = calculator.Calculate24HourUptime(r.Context(), m.ID)
		default:
			http.Error(w, "Invalid period", http.StatusBadRequest)
			return
		}

		if err != nil {
			http.Error(w, "Failed to calculate uptime", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}
