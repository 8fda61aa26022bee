package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/metrics"
)

type RouterDeps struct {
	Patients       *PatientHandler
	Metrics        *metrics.Collector
	MetricsHandler http.Handler
	CORS           config.CORSConfig
	Version        string
	Log            *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		RequestID(),
		AccessLog(d.Log),
		Metrics(d.Metrics),
		CORS(d.CORS),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": d.Version})
	})
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	r.POST("/add", d.Patients.Add)
	r.GET("/predict/:patient_id", d.Patients.Predict)

	r.GET("/cohort", d.Patients.Cohort)
	r.GET("/patient/:id/timeline", d.Patients.Timeline)
	r.GET("/explain/:id", d.Patients.Explain)
	r.POST("/predict-csv", d.Patients.PredictCSV)
	r.GET("/dataset/export", d.Patients.Export)
	r.POST("/debug-data", d.Patients.DebugData)

	return r
}
