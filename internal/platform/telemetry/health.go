package telemetry

import (
	"context"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

// Probe reports on one component. detail is rendered into the health JSON.
type Probe func(ctx context.Context) (detail any, err error)

// FileProbe reports the size and modification time of a record file.
func FileProbe(path string) Probe {
	return func(context.Context) (any, error) {
		fi, err := os.Stat(path)
		if err != nil {
			return map[string]any{"path": path}, err
		}
		return map[string]any{
			"path":     path,
			"size":     fi.Size(),
			"modified": fi.ModTime().UTC(),
		}, nil
	}
}

// ComponentStatus is one probe's entry in the health response.
type ComponentStatus struct {
	Healthy bool   `json:"healthy"`
	Detail  any    `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthHandler runs every probe and answers 200 when all pass, 503 otherwise.
func HealthHandler(probes map[string]Probe) echo.HandlerFunc {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		healthy := true
		components := make(map[string]ComponentStatus, len(names))
		for _, name := range names {
			detail, err := probes[name](ctx)
			st := ComponentStatus{Healthy: err == nil, Detail: detail}
			if err != nil {
				healthy = false
				st.Error = err.Error()
			}
			components[name] = st
		}

		if !healthy {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":     "unhealthy",
				"components": components,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":     "healthy",
			"components": components,
		})
	}
}
