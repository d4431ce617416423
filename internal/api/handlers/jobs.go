package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printd/internal/core"
	"github.com/orrn/printd/internal/sandbox"
	"github.com/orrn/printd/internal/spooler"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type PaperBody struct {
	WidthMM  *int `json:"width_mm" binding:"omitempty,min=1"`
	HeightMM *int `json:"height_mm" binding:"omitempty,min=1"`
}

type LayoutBody struct {
	Rows *int `json:"rows" binding:"omitempty,min=1"`
	Cols *int `json:"cols" binding:"omitempty,min=1"`
}

// CreatePrintRequest is the POST /print body. Absent fields take the
// service defaults.
type CreatePrintRequest struct {
	Path      string      `json:"path" binding:"required"`
	Printer   *string     `json:"printer"`
	Copies    *int        `json:"copies" binding:"omitempty,min=1"`
	DPI       *int        `json:"dpi" binding:"omitempty,min=72"`
	Scale     *float64    `json:"scale" binding:"omitempty,min=0.1"`
	MarginsMM []int       `json:"margins_mm" binding:"omitempty,len=4,dive,min=0"`
	Layout    *LayoutBody `json:"layout"`
	Duplex    bool        `json:"duplex"`
	Paper     *PaperBody  `json:"paper"`
}

func (r *CreatePrintRequest) toCore() core.PrintRequest {
	req := core.PrintRequest{
		Path:      r.Path,
		Copies:    1,
		DPI:       300,
		Scale:     1.0,
		MarginsMM: []int{10, 10, 10, 10},
		Layout:    core.Layout{Rows: 1, Cols: 1},
		Duplex:    r.Duplex,
		Paper:     core.Paper{WidthMM: 210, HeightMM: 297},
	}
	if r.Printer != nil {
		req.Printer = *r.Printer
	}
	if r.Copies != nil {
		req.Copies = *r.Copies
	}
	if r.DPI != nil {
		req.DPI = *r.DPI
	}
	if r.Scale != nil {
		req.Scale = *r.Scale
	}
	if len(r.MarginsMM) > 0 {
		req.MarginsMM = append([]int(nil), r.MarginsMM...)
	}
	if r.Layout != nil {
		if r.Layout.Rows != nil {
			req.Layout.Rows = *r.Layout.Rows
		}
		if r.Layout.Cols != nil {
			req.Layout.Cols = *r.Layout.Cols
		}
	}
	if r.Paper != nil {
		if r.Paper.WidthMM != nil {
			req.Paper.WidthMM = *r.Paper.WidthMM
		}
		if r.Paper.HeightMM != nil {
			req.Paper.HeightMM = *r.Paper.HeightMM
		}
	}
	return req
}

type ListJobsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=queued running done failed"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

type ListJobsResponse struct {
	Jobs  []core.Job `json:"jobs"`
	Count int        `json:"count"`
}

type JobSubmitter interface {
	Submit(req core.PrintRequest) (core.Job, error)
}

type JobHandler struct {
	queue    JobSubmitter
	registry *core.Registry
	root     *sandbox.Root
	spooler  spooler.Spooler
}

func NewJobHandler(queue JobSubmitter, registry *core.Registry, root *sandbox.Root, sp spooler.Spooler) *JobHandler {
	return &JobHandler{
		queue:    queue,
		registry: registry,
		root:     root,
		spooler:  sp,
	}
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/print", h.CreateJob)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/stats", h.GetStats)
	r.GET("/jobs/:id", h.GetJob)
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var body CreatePrintRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filePath, err := h.root.ResolveFile(body.Path)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) || errors.Is(err, sandbox.ErrPathTraversal) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve file"})
		return
	}

	req := body.toCore()
	req.FilePath = filePath

	if req.Printer != "" {
		known, err := h.knownPrinter(c, req.Printer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown printer"})
			return
		}
	}

	job, err := h.queue.Submit(req)
	if err != nil {
		if errors.Is(err, core.ErrQueueFull) || errors.Is(err, core.ErrQueueStopped) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

func (h *JobHandler) knownPrinter(c *gin.Context, name string) (bool, error) {
	printers, err := h.spooler.Printers(c.Request.Context())
	if err != nil {
		return false, err
	}
	for _, p := range printers {
		if p == name {
			return true, nil
		}
	}
	return false, nil
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultListLimit
	}
	if query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}

	jobs := h.registry.List(core.JobStatus(query.Status), query.Limit)
	c.JSON(http.StatusOK, ListJobsResponse{Jobs: jobs, Count: len(jobs)})
}

func (h *JobHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats())
}
