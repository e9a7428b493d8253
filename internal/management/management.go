/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package management exposes the gateway's HTTP control surface: live
// config inspection/patching, the connection roster, stats, user
// administration, and an explicit reload trigger.
package management

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nabbar/socks5-gateway/internal/auth"
	"github.com/nabbar/socks5-gateway/internal/config"
	"github.com/nabbar/socks5-gateway/internal/logger"
	"github.com/nabbar/socks5-gateway/internal/metrics"
	"github.com/nabbar/socks5-gateway/internal/resource"
)

// AuthMode selects how the management API authenticates its own callers.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthBasic  AuthMode = "basic"
	AuthAPIKey AuthMode = "apikey"
	AuthJWT    AuthMode = "jwt" // accepted in config, not wired: see API.warnIfUnsupportedAuth
)

// API is the management HTTP surface.
type API struct {
	snap    *config.Snapshot
	authMgr *auth.Manager
	reg     *metrics.Registry
	log     logger.Logger

	mode  AuthMode
	token string

	reloadFn func() error

	engine *gin.Engine
}

// New builds the management API's gin engine and routes.
func New(snap *config.Snapshot, authMgr *auth.Manager, reg *metrics.Registry, log logger.Logger, mode AuthMode, token string, reloadFn func() error) *API {
	gin.SetMode(gin.ReleaseMode)
	a := &API{snap: snap, authMgr: authMgr, reg: reg, log: log, mode: mode, token: token, reloadFn: reloadFn}
	a.warnIfUnsupportedAuth()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.authMiddleware())

	r.GET("/config", a.getConfig)
	r.PATCH("/config", a.patchConfig)
	r.GET("/connections", a.getConnections)
	r.GET("/stats", a.getStats)
	r.GET("/system", a.getSystemStats)
	r.POST("/users", a.postUser)
	r.DELETE("/users/:name", a.deleteUser)
	r.POST("/reload", a.postReload)

	a.engine = r
	return a
}

func (a *API) warnIfUnsupportedAuth() {
	if a.mode == AuthJWT {
		a.log.Warn("management API auth mode 'jwt' is accepted but not implemented; falling back to no authentication", nil, "configured_mode", a.mode)
		a.mode = AuthNone
	}
}

// Handler returns the http.Handler to mount (or serve directly).
func (a *API) Handler() http.Handler { return a.engine }

func (a *API) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch a.mode {
		case AuthBasic:
			user, pass, ok := c.Request.BasicAuth()
			if !ok || !a.authMgr.Store().Validate(user, pass) {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
		case AuthAPIKey:
			if c.GetHeader("X-API-Key") != a.token || a.token == "" {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
		case AuthNone:
			// no authentication required
		}
		c.Next()
	}
}

func (a *API) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, a.snap.Get())
}

// configPatch is the subset of Config the PATCH endpoint accepts; only
// non-zero fields are applied, avoiding the need for a separate partial
// representation per sub-struct.
type configPatch struct {
	Monitoring *struct {
		LogLevel string `json:"logLevel"`
	} `json:"monitoring"`
}

func (a *API) patchConfig(c *gin.Context) {
	var patch configPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := a.snap.Get()
	updated := *current
	if patch.Monitoring != nil && patch.Monitoring.LogLevel != "" {
		updated.Monitoring.LogLevel = patch.Monitoring.LogLevel
		a.log.SetLevel(patch.Monitoring.LogLevel)
	}
	a.snap.Swap(&updated)
	c.JSON(http.StatusOK, &updated)
}

func (a *API) getConnections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": a.reg.ActiveCount(), "history": a.reg.History()})
}

func (a *API) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.reg.Snapshot())
}

// getSystemStats reports host-level memory and CPU usage, distinct from
// getStats' gateway-domain counters.
func (a *API) getSystemStats(c *gin.Context) {
	c.JSON(http.StatusOK, resource.ReadSystemStats())
}

type userRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Enabled  bool   `json:"enabled"`
}

func (a *API) postUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.authMgr.Store().Put(auth.UserRecord{Username: req.Username, Password: req.Password, Enabled: req.Enabled})
	c.Status(http.StatusCreated)
}

func (a *API) deleteUser(c *gin.Context) {
	a.authMgr.Store().Delete(c.Param("name"))
	c.Status(http.StatusNoContent)
}

func (a *API) postReload(c *gin.Context) {
	if a.reloadFn == nil {
		c.Status(http.StatusNotImplemented)
		return
	}
	if err := a.reloadFn(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
