package api

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openAPISpec []byte

const redocPage = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Optical Switch API - Redoc</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
  </head>
  <body>
    <redoc spec-url="/openapi"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
  </body>
</html>`

// registerOpenAPIRoutes 提供 /openapi 与 /docs/redoc
func registerOpenAPIRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.yaml", serveOpenAPI)
	engine.GET("/docs/redoc", serveRedoc)
}

func serveOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml; charset=utf-8", openAPISpec)
}

func serveRedoc(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(redocPage))
}
