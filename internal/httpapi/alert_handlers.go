package httpapi

import (
	"net/http"

	"spendtrack.org/internal/alert"
)

// handleAlerts serves budget alerts. Any authenticated caller may ask;
// scoping is per record, so the answer only covers what they can read.
func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	alerts, err := a.alerts.Evaluate(r.Context(), user)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
