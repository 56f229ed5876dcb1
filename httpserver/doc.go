/*
Package httpserver runs the onboarding HTTP API.

The server mounts the record endpoints of api/recordhandler behind the
readiness gate, together with the operational endpoints:

  - POST /api/v1/records/events - S3 event notification
  - POST /api/v1/records/onboard - onboard a single record
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Mark server as not ready; record requests get 503
  - GET /undrain - Mark server as ready
  - /debug/pprof - when EnablePprof is set

Prometheus metrics are served on a separate listener when MetricsAddr is
configured.

# Example Usage

	cfg := &api.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":8090",
		Log:                      logger,
		DrainDuration:            45 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             120 * time.Second,
	}

	m := metrics.NewMetrics(common.PackageName)
	handler := recordhandler.NewHandler(processor, m, logger)
	srv, err := httpserver.New(cfg, handler, m)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
