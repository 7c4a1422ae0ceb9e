package response

import (
	"eventreg/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// FromError writes the envelope for err and attaches it to the gin context
// so ErrorLogger can record the internal cause.
func FromError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		_ = c.Error(err)
	}
	Error(c, status, apperr.Code(err), apperr.PublicMessage(err))
}
