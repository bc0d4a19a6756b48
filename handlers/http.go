package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SetupStaticRoutes serves the web client from dir. Unknown GET routes
// outside the API fall back to index.html so client-side routing works.
// It does nothing if dir does not exist.
func SetupStaticRoutes(router *gin.Engine, dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		slog.Info("static: directory not found, web client disabled", "dir", dir)
		return false
	}

	index := filepath.Join(dir, "index.html")
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if isAPIPath(c.Request.URL.Path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		if file, ok := staticFile(dir, c.Request.URL.Path); ok {
			c.File(file)
			return
		}
		c.File(index)
	})
	return true
}

func isAPIPath(p string) bool {
	for _, prefix := range []string{"/api/", "/ws", "/webhook"} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// staticFile resolves p inside dir, refusing anything that escapes it.
func staticFile(dir, p string) (string, bool) {
	clean := filepath.Clean("/" + p)
	if clean == "/" {
		return "", false
	}
	full := filepath.Join(dir, filepath.FromSlash(clean))
	rel, err := filepath.Rel(dir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", false
	}
	return full, true
}

// RequestLogger logs one line per request through slog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			slog.Error("http request", attrs...)
		case status >= http.StatusBadRequest:
			slog.Warn("http request", attrs...)
		default:
			slog.Debug("http request", attrs...)
		}
	}
}
