package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fuomag9/onlinetracker/internal/notification"
	"github.com/fuomag9/onlinetracker/internal/store"
)

// HandleGetAvailableProviders returns the registered notification provider names
func HandleGetAvailableProviders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := []string{}
		for name := range notification.GetAllProviders() {
			names = append(names, name)
		}
		sort.Strings(names)
		writeJSON(w, http.StatusOK, names)
	}
}

// HandleTestNotification sends a test message through a configured channel
func HandleTestNotification(st store.Notifications, dispatcher *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Invalid notification ID", http.StatusBadRequest)
			return
		}

		notif, err := st.GetNotification(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "Failed to fetch notification", http.StatusInternalServerError)
			return
		}

		if err := dispatcher.TestNotification(r.Context(), notif); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "Test notification sent"})
	}
}
