package response

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/pkg/apperror"
)

// ParamUUID parses the path parameter name. On failure it writes a 400 and
// returns false.
func ParamUUID(c *gin.Context, name, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(400, Body{Error: "invalid " + entity + " id", Code: CodeValidation, Field: name})
		return uuid.Nil, false
	}
	return id, true
}

// QueryUUID parses an optional query parameter. A present but malformed
// value writes a 400 and returns ok false.
func QueryUUID(c *gin.Context, name string) (id *uuid.UUID, ok bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(400, Body{Error: "invalid " + name, Code: CodeValidation, Field: name})
		return nil, false
	}
	return &v, true
}

// Fail writes err like Error and logs it when it is not a domain error.
func Fail(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	if !apperror.IsDomain(err) && logger != nil {
		logger.Error(fallback, zap.Error(err), zap.String("path", c.Request.URL.Path))
	}
	Error(c, err, fallback)
}

// QueryUUIDs parses a comma separated list of ids.
func QueryUUIDs(c *gin.Context, name string) ([]uuid.UUID, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(strings.TrimSpace(p))
		if err != nil {
			c.JSON(400, Body{Error: "invalid " + name, Code: CodeValidation, Field: name})
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(400, Body{Error: "invalid " + name, Code: CodeValidation, Field: name})
		return nil, false
	}
	return &v, true
}

// QueryTime parses an optional RFC 3339 timestamp.
func QueryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(400, Body{Error: "invalid " + name + ": expected RFC 3339", Code: CodeValidation, Field: name})
		return nil, false
	}
	return &v, true
}

// Paging reads limit and offset. Bad values fall back to zero and are left
// to the service to default.
func Paging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
