//go:build !swagger

package api

import "github.com/gin-gonic/gin"

// registerSwaggerRoutes 非 swagger 构建不注册 Swagger UI
func registerSwaggerRoutes(engine *gin.Engine) {}
