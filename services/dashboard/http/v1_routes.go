package http

// registerV1Routes sets up the JSON API.
// Groups: /api/v1/actuators, /api/v1/automation, /api/v1/crops, /api/v1/readings
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware(), s.authorize())

	v1.GET("/state", s.handleV1State)
	v1.GET("/insights", s.handleV1Insights)

	// Manual control from the device cards
	actuators := v1.Group("/actuators")
	{
		actuators.POST("/:actuator", s.handleV1Toggle)
		actuators.PUT("/:actuator/mode", s.handleV1SetMode)
	}

	// One-shot AI flows
	auto := v1.Group("/automation")
	{
		auto.POST("/irrigation", s.handleV1RunIrrigation)
		auto.POST("/climate", s.handleV1RunClimate)
	}

	crops := v1.Group("/crops")
	{
		crops.GET("", s.handleV1ListCrops)
		crops.POST("/advice", s.handleV1CropAdvice)
	}

	// History, only with a database
	readings := v1.Group("/readings")
	{
		readings.GET("", s.handleV1Readings)
		readings.GET("/averages", s.handleV1ReadingAverages)
	}
}
