// Command routerd is a demo host process: it wires up one in-memory
// router.Router per registered (tenant, table) pair and exposes a debug
// HTTP surface over it. It is scaffolding to exercise the library from a
// real process, not part of the router's core contract.
package main

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/electric-sql/shaperouter/router"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// registry holds one Router per table name, created lazily on first use.
type registry struct {
	mu      sync.RWMutex
	routers map[string]*router.Router
	log     *zap.Logger
}

func newRegistry(log *zap.Logger) *registry {
	return &registry{routers: make(map[string]*router.Router), log: log}
}

func (reg *registry) get(table string) *router.Router {
	reg.mu.RLock()
	r, ok := reg.routers[table]
	reg.mu.RUnlock()
	if ok {
		return r
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.routers[table]; ok {
		return r
	}
	r = router.New(reg.log.Named(table))
	reg.routers[table] = r
	reg.log.Info("router created", zap.String("table", table), zap.String("router_id", r.ID.String()))
	return r
}

func (reg *registry) list() []*router.Router {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*router.Router, 0, len(reg.routers))
	for _, r := range reg.routers {
		out = append(out, r)
	}
	return out
}

// zapLogger mirrors the structured access-log middleware pattern used
// across this codebase's other HTTP entry points.
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("routerd")

	reg := newRegistry(log)

	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	_ = g.SetTrustedProxies([]string{"127.0.0.1"})
	g.Use(gin.Recovery())
	g.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	g.Use(zapLogger(log))

	g.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	g.GET("/debug/routers", func(c *gin.Context) {
		routers := reg.list()
		out := make([]gin.H, 0, len(routers))
		for _, r := range routers {
			out = append(out, gin.H{
				"router_id": r.ID.String(),
				"metrics":   r.Metrics(),
			})
		}
		c.JSON(http.StatusOK, out)
	})

	g.GET("/tables/:table/metrics", func(c *gin.Context) {
		table := c.Param("table")
		r := reg.get(table)
		c.JSON(http.StatusOK, r.Metrics())
	})

	g.POST("/tables/:table/rebuild", func(c *gin.Context) {
		table := c.Param("table")
		r := reg.get(table)
		if err := r.Rebuild(); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"router_id": r.ID.String()})
	})

	g.POST("/tables/:table/shapes/:id", func(c *gin.Context) {
		table := c.Param("table")
		idStr := c.Param("id")
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid shape id"})
			return
		}

		var req struct {
			PredicateHex string   `json:"predicate_hex"`
			PKHashes     []uint64 `json:"pk_hashes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		predicateBytes, err := hex.DecodeString(req.PredicateHex)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid predicate_hex"})
			return
		}

		r := reg.get(table)
		if err := r.AddShape(uint32(id), predicateBytes, req.PKHashes); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"router_id": r.ID.String()})
	})

	log.Info("routerd listening", zap.String("addr", ":8088"), zap.String("instance", uuid.New().String()))
	if err := g.Run(":8088"); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
