package scheduler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health of one source.
type HealthStatus struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check,omitzero"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastError           error     `json:"-"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Message             string    `json:"message"`
}

// Health tracks the outcome of the latest cycle per source.
type Health struct {
	mu         sync.RWMutex
	components map[string]*HealthStatus
}

// NewHealth creates a new health tracker.
func NewHealth() *Health {
	return &Health{
		components: make(map[string]*HealthStatus),
	}
}

func (h *Health) entry(component string) *HealthStatus {
	if _, exists := h.components[component]; !exists {
		h.components[component] = &HealthStatus{}
	}
	return h.components[component]
}

// SetHealthy marks a component as healthy.
func (h *Health) SetHealthy(component, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	st := h.entry(component)
	st.Healthy = true
	st.LastCheck = now
	st.LastSuccess = now
	st.LastError = nil
	st.ConsecutiveFailures = 0
	st.Message = message
}

// SetUnhealthy marks a component as unhealthy.
func (h *Health) SetUnhealthy(component string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.entry(component)
	st.Healthy = false
	st.LastCheck = time.Now()
	st.LastError = err
	st.ConsecutiveFailures++
	st.Message = err.Error()
}

// GetStatus returns a copy of the status of a component, or nil.
func (h *Health) GetStatus(component string) *HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if status, exists := h.components[component]; exists {
		cp := *status
		return &cp
	}
	return nil
}

// GetAllStatuses returns copies of all component statuses.
func (h *Health) GetAllStatuses() map[string]*HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*HealthStatus, len(h.components))
	for name, status := range h.components {
		cp := *status
		result[name] = &cp
	}
	return result
}

// IsOverallHealthy returns true if all components are healthy.
func (h *Health) IsOverallHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, status := range h.components {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// ServeHTTP reports all statuses as JSON, with 503 if any source is unhealthy.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := http.StatusOK
	if !h.IsOverallHealthy() {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(h.GetAllStatuses())
}
