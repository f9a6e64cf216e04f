package response

import "github.com/gin-gonic/gin"

// ErrorBody is the single error shape every endpoint returns.
type ErrorBody struct {
	Error string `json:"error"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, ErrorBody{Error: message})
}
