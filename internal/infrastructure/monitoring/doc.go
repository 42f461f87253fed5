/*
Package monitoring provides Prometheus metrics for the engine.

# Metrics

  - engine_http_requests_total / engine_http_request_duration_seconds
  - engine_script_executions_total{outcome}
  - engine_script_duration_seconds{kind}
  - engine_cache_lookups_total{tier,result}
  - engine_extensions_loaded_total{result}
  - engine_bridge_calls_total{method,status}

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	timer := monitoring.NewTimer(metrics, "service")
	// ... evaluate the script ...
	timer.Stop("completed")
*/
package monitoring
