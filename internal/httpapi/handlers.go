// Package httpapi holds the Gin handlers for the REST surface.
// Handlers stay thin: parse and validate input, call internal
// services, translate sentinel errors to status codes.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/cdr"
	"callcenter-platform/internal/dialer"
	"callcenter-platform/internal/dispositions"
	"callcenter-platform/internal/dnc"
	"callcenter-platform/internal/pbx"
	"callcenter-platform/internal/rbac"
	"callcenter-platform/internal/telephony"
)

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Auth         *auth.Manager
	Agents       *agents.Service
	Campaigns    *campaigns.Service
	Stats        *campaigns.StatsService
	Records      *cdr.Service
	Dispositions *dispositions.Service
	Dnc          *dnc.Service
	Pbx          *pbx.Service
	Gateway      *telephony.Gateway
	Dialer       *dialer.Engine
}

// accountID pulls the tenant from the verified token context. The
// auth middleware guarantees it for protected routes.
func accountID(c *gin.Context) (string, bool) {
	aid, err := auth.AccountID(c.Request.Context())
	if err != nil || aid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return "", false
	}
	return aid, true
}

func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	return true
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// fail translates sentinel errors from the internal packages into
// HTTP status codes. Unknown errors become opaque 500s; the request
// logger already has the detail.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, agents.ErrNotFound),
		errors.Is(err, campaigns.ErrNotFound),
		errors.Is(err, cdr.ErrNotFound),
		errors.Is(err, dispositions.ErrNotFound),
		errors.Is(err, dnc.ErrNotFound),
		errors.Is(err, pbx.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, agents.ErrDuplicate),
		errors.Is(err, campaigns.ErrDuplicate),
		errors.Is(err, dispositions.ErrDuplicate),
		errors.Is(err, dnc.ErrDuplicate):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, campaigns.ErrInvalidState),
		errors.Is(err, campaigns.ErrRetryExhausted),
		errors.Is(err, campaigns.ErrLeadBusy),
		errors.Is(err, agents.ErrNotAvailable),
		errors.Is(err, agents.ErrInvalidStatus),
		errors.Is(err, cdr.ErrImmutable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, agents.ErrValidation),
		errors.Is(err, campaigns.ErrValidation),
		errors.Is(err, cdr.ErrValidation),
		errors.Is(err, dispositions.ErrValidation),
		errors.Is(err, dnc.ErrValidation),
		errors.Is(err, pbx.ErrValidation),
		errors.Is(err, telephony.ErrValidation),
		errors.Is(err, dialer.ErrValidation),
		errors.Is(err, dialer.ErrCallbackRequired):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// RequireAccountAndAnyRole bundles the tenant and role checks the way
// route groups consume them.
func RequireAccountAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireAccount(), rbac.RequireAnyRole(roles...)}
}
