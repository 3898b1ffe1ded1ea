package controller

import (
	"net/http"

	"ojbox/internal/judge/sandbox"
	"ojbox/internal/judge/sandbox/compiler"
	"ojbox/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Banner is served on the index route.
const Banner = "ojbox: serverless online judge sandbox"

// SandboxController exposes the sandbox over HTTP.
type SandboxController struct {
	svc sandbox.Service
}

// NewSandboxController creates a new controller.
func NewSandboxController(svc sandbox.Service) *SandboxController {
	return &SandboxController{svc: svc}
}

// Register mounts the sandbox routes. Extra handlers run before the POST routes.
func (h *SandboxController) Register(r gin.IRouter, postMiddleware ...gin.HandlerFunc) {
	r.GET("/", h.Index)
	r.GET("/healthz", h.Health)

	post := r.Group("/", postMiddleware...)
	post.POST("/compile", h.Compile)
	post.POST("/execute", h.Execute)
	post.POST("/compile-and-execute", h.CompileAndExecute)
}

// Index returns the service banner.
func (h *SandboxController) Index(c *gin.Context) {
	c.String(http.StatusOK, Banner)
}

// Health reports liveness.
func (h *SandboxController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Compile builds source code into an executable bundle.
func (h *SandboxController) Compile(c *gin.Context) {
	var req compiler.BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Compile(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// Execute runs a previously built bundle.
func (h *SandboxController) Execute(c *gin.Context) {
	var req sandbox.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Execute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// CompileAndExecute builds and runs source code in one call.
func (h *SandboxController) CompileAndExecute(c *gin.Context) {
	var req sandbox.CompileAndExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.CompileAndExecute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}
