package middleware

import (
	"time"

	"github.com/rs/cors"
)

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORS answers preflight requests and decorates responses with the
// Access-Control-* headers allowed by config.
func CORS(config CORSConfig) Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		ExposedHeaders:   append([]string{TraceHeader}, config.ExposedHeaders...),
		AllowCredentials: config.AllowCredentials,
		MaxAge:           int(config.MaxAge.Seconds()),
	})
	return c.Handler
}
