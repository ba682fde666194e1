// Package router configures HTTP routes for the station's HTTP API.
//
// The station exposes an HTTP server on port 8080 (configurable) that
// provides the camera archive, the current instrument status, uplink
// webhooks, health checks, and Prometheus metrics. This package sets up the
// routes for that HTTP server.
//
// Routes configured:
//   - GET  /cameras - camera summaries with archive links
//   - GET  /cameras/{name} - one camera summary with its latest image
//   - GET  /cameras/{name}/images?per_page=&page= - image records, newest first
//   - GET  /cameras/{name}/images/latest/redirect - 302 to the newest image
//   - GET  /atlas/status - current instrument status with aligned series
//   - POST /uplink/heartbeat - ingest one raw heartbeat payload
//   - POST /uplink/images - record one archived image
//   - GET  /healthz - health check endpoint
//   - GET  /metrics - Prometheus metrics endpoint
//
// All timestamps in responses are RFC 3339. Error responses carry a JSON
// body of the form {"error": "<msg>"}: unknown cameras map to 404, malformed
// payloads to 400, and storage failures to 500.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nunatak-io/icewatch/cmd/icewatch/metrics"
	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/heartbeat"
	"github.com/nunatak-io/icewatch/pkg/httpx"
	"github.com/nunatak-io/icewatch/pkg/station"
)

// SetupRoutes configures HTTP endpoints for the station.
// The metrics handle may be nil; instrument updates are skipped then.
// The health check may be nil; /healthz answers 200 unconditionally then.
func SetupRoutes(st *station.Station, m *metrics.Metrics, check func() error, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	if check != nil {
		mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(check))
	} else {
		mux.Handle("GET /healthz", httpx.HealthHandler())
	}

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /cameras", handleListCameras(st, logger))
	mux.HandleFunc("GET /cameras/{name}", handleGetCamera(st, logger))
	mux.HandleFunc("GET /cameras/{name}/images", handleListImages(st, logger))
	mux.HandleFunc("GET /cameras/{name}/images/latest/redirect", handleLatestRedirect(st, logger))
	mux.HandleFunc("GET /atlas/status", handleStatus(st, logger))

	mux.HandleFunc("POST /uplink/heartbeat", handleUplinkHeartbeat(st, m, logger))
	mux.HandleFunc("POST /uplink/images", handleUplinkImage(st, m, logger))

	return mux
}

// cameraView is the wire form of a camera summary. The archive links are
// built from the request host so clients behind different ingress names get
// working URLs.
type cameraView struct {
	Name                   string     `json:"name"`
	Description            string     `json:"description"`
	IntervalSeconds        int64      `json:"interval_seconds"`
	ImageCount             int        `json:"image_count"`
	URL                    string     `json:"url"`
	ImagesURL              string     `json:"images_url"`
	LatestImageRedirectURL string     `json:"latest_image_redirect_url"`
	LatestImage            *imageView `json:"latest_image"`
}

// imageView is the wire form of one archived image record.
type imageView struct {
	Datetime time.Time `json:"datetime"`
	URL      string    `json:"url"`
}

func newCameraView(base string, s station.CameraSummary) cameraView {
	self := base + "/cameras/" + s.Camera.Name
	v := cameraView{
		Name:                   s.Camera.Name,
		Description:            s.Camera.Description,
		IntervalSeconds:        int64(s.Camera.Interval / time.Second),
		ImageCount:             s.ImageCount,
		URL:                    self,
		ImagesURL:              self + "/images",
		LatestImageRedirectURL: self + "/images/latest/redirect",
	}
	if s.LatestImage != nil {
		v.LatestImage = &imageView{Datetime: s.LatestImage.CapturedAt, URL: s.LatestImage.Locator}
	}
	return v
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// handleListCameras returns a handler for GET /cameras.
func handleListCameras(st *station.Station, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries := st.Summaries()
		base := baseURL(r)

		views := make([]cameraView, 0, len(summaries))
		for _, s := range summaries {
			views = append(views, newCameraView(base, s))
		}

		if err := httpx.WriteJSON(w, http.StatusOK, views); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleGetCamera returns a handler for GET /cameras/{name}.
func handleGetCamera(st *station.Station, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		summary, err := st.Summary(name)
		if err != nil {
			if errors.Is(err, archive.ErrUnknownCamera) {
				httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("unknown camera %q", name))
				return
			}
			logger.Error("failed to build camera summary", "camera", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, newCameraView(baseURL(r), summary)); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleListImages returns a handler for GET /cameras/{name}/images.
// Pages are 1-indexed and ordered newest first; page and per_page are
// normalized by the archive (defaults 30 per page, capped at 100).
func handleListImages(st *station.Station, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		page, err := queryInt(r, "page")
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
		perPage, err := queryInt(r, "per_page")
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		records, err := st.CameraImages(name, page, perPage)
		if err != nil {
			if errors.Is(err, archive.ErrUnknownCamera) {
				httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("unknown camera %q", name))
				return
			}
			logger.Error("failed to list images", "camera", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		views := make([]imageView, 0, len(records))
		for _, rec := range records {
			views = append(views, imageView{Datetime: rec.CapturedAt, URL: rec.Locator})
		}

		if err := httpx.WriteJSON(w, http.StatusOK, views); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleLatestRedirect returns a handler for GET /cameras/{name}/images/latest/redirect.
func handleLatestRedirect(st *station.Station, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		rec, err := st.LatestImage(name)
		if err != nil {
			switch {
			case errors.Is(err, archive.ErrUnknownCamera):
				httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("unknown camera %q", name))
			case errors.Is(err, archive.ErrNoImages):
				httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no images recorded for camera %q", name))
			default:
				logger.Error("failed to resolve latest image", "camera", name, "error", err)
				httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}

		http.Redirect(w, r, rec.Locator, http.StatusFound)
	}
}

// handleStatus returns a handler for GET /atlas/status.
func handleStatus(st *station.Station, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, st.Status()); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleUplinkHeartbeat returns a handler for POST /uplink/heartbeat.
// The body is one raw heartbeat payload as transmitted by the station.
func handleUplinkHeartbeat(st *station.Station, m *metrics.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		start := time.Now()
		res, err := st.IngestHeartbeat(r.Context(), payload)
		if err != nil {
			if errors.Is(err, heartbeat.ErrMalformedRecord) {
				if m != nil {
					m.RecordMalformed()
				}
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "malformed heartbeat payload")
				return
			}
			if m != nil {
				m.RecordError("storage", "append_failed")
			}
			logger.Error("heartbeat ingestion failed", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if m != nil {
			m.RecordIngest(time.Since(start).Seconds())
			m.RecordHeartbeat(len(res.Accepted))
			for _, k := range res.Dropped {
				m.RecordDropped(string(k.Kind))
			}
			if len(res.Accepted) > 0 {
				m.SetLastHeartbeat(res.Timestamp)
			}
		}

		resp := map[string]int{
			"accepted": len(res.Accepted),
			"dropped":  len(res.Dropped),
		}
		if err := httpx.WriteJSON(w, http.StatusAccepted, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// imageNotice is the body of POST /uplink/images.
type imageNotice struct {
	Camera     string    `json:"camera"`
	CapturedAt time.Time `json:"captured_at"`
	URL        string    `json:"url"`
}

// handleUplinkImage returns a handler for POST /uplink/images.
func handleUplinkImage(st *station.Station, m *metrics.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var notice imageNotice
		if err := json.NewDecoder(r.Body).Decode(&notice); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if notice.Camera == "" || notice.CapturedAt.IsZero() || notice.URL == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "camera, captured_at, and url are required")
			return
		}

		if err := st.RecordImage(r.Context(), notice.Camera, notice.CapturedAt, notice.URL); err != nil {
			if errors.Is(err, archive.ErrUnknownCamera) {
				httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("unknown camera %q", notice.Camera))
				return
			}
			if m != nil {
				m.RecordError("storage", "put_image_failed")
			}
			logger.Error("image record failed", "camera", notice.Camera, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if m != nil {
			m.RecordImage()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// queryInt parses an optional non-negative integer query parameter.
// A missing parameter is 0, which downstream normalization treats as
// "use the default".
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return n, nil
}
