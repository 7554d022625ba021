// Package handler exposes TNS retrieval and submission over HTTP. Retrievals
// and discovery reports run as detached tasks; spectrum classification runs
// synchronously because the caller needs the report ID.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transient-broker/backend/internal/server"
	"transient-broker/backend/internal/tasks"
	"transient-broker/backend/internal/tns/service"
)

// Runner is the task submission surface the handler needs.
type Runner interface {
	Submit(name string, fn func(context.Context) error) error
}

// Retriever pulls TNS data. Implemented by *service.RetrievalService.
type Retriever interface {
	RetrieveOne(ctx context.Context, userID, robotID int64, objID string, includePhotometry, includeSpectra bool, sess service.Session) (*service.RetrievalResult, error)
	BulkRetrieve(ctx context.Context, userID, robotID int64, groupIDs []int64, since time.Time, includePhotometry, includeSpectra bool) (*service.BulkResult, error)
}

// Submitter pushes broker data to TNS. Implemented by *service.SubmissionService.
type Submitter interface {
	SubmitObject(ctx context.Context, robotID int64, objID, reporters string, archival bool, archivalComment string) (int64, error)
	SubmitSpectrum(ctx context.Context, in service.SpectrumSubmission) (int64, error)
}

// TNSHandler handles the TNS operation routes.
type TNSHandler struct {
	retrieval  Retriever
	submission Submitter
	runner     Runner
	logger     *zap.Logger
}

// NewTNSHandler wires a TNS handler.
func NewTNSHandler(retrieval Retriever, submission Submitter, runner Runner, logger *zap.Logger) *TNSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TNSHandler{retrieval: retrieval, submission: submission, runner: runner, logger: logger}
}

// RegisterRoutes registers the TNS operation routes.
func (h *TNSHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/tns/bulk", h.BulkRetrieve)
	rg.GET("/sources/:obj_id/tns", h.Retrieve)
	rg.POST("/sources/:obj_id/tns", h.SubmitObject)
	rg.POST("/spectra/:id/tns", h.SubmitSpectrum)
}

// groupIDList accepts either a JSON array of IDs or a comma-separated string.
type groupIDList []int64

func (g *groupIDList) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err == nil {
		*g = ids
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("group IDs must be a list or a comma-separated string")
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return errors.New("group IDs must be integers")
		}
		ids = append(ids, id)
	}
	*g = ids
	return nil
}

type bulkRequest struct {
	RobotID           int64       `json:"tnsrobotID"`
	GroupIDs          groupIDList `json:"groupIds"`
	StartDate         string      `json:"startDate"`
	IncludePhotometry bool        `json:"includePhotometry"`
	IncludeSpectra    bool        `json:"includeSpectra"`
}

// BulkRetrieve queues a bulk retrieval run. startDate defaults to 24 hours
// ago; groupIds name the groups new sources are shared with.
func (h *TNSHandler) BulkRetrieve(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.RobotID <= 0 {
		server.Error(c, http.StatusBadRequest, "tnsrobotID is required")
		return
	}
	if len(req.GroupIDs) == 0 {
		server.Error(c, http.StatusBadRequest, "groupIds is required")
		return
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if req.StartDate != "" {
		parsed, err := parseDate(req.StartDate)
		if err != nil {
			server.Error(c, http.StatusBadRequest, "invalid startDate")
			return
		}
		since = parsed
	}

	userID := server.UserID(c)
	robotID, groupIDs := req.RobotID, []int64(req.GroupIDs)
	withPhot, withSpec := req.IncludePhotometry, req.IncludeSpectra
	err := h.runner.Submit("tns_bulk_retrieval", func(ctx context.Context) error {
		_, err := h.retrieval.BulkRetrieve(ctx, userID, robotID, groupIDs, since, withPhot, withSpec)
		return err
	})
	if err != nil {
		h.queueFail(c, err)
		return
	}
	server.Success(c, gin.H{"queued": true})
}

// Retrieve queues a single-object retrieval.
func (h *TNSHandler) Retrieve(c *gin.Context) {
	objID := c.Param("obj_id")
	robotID, err := strconv.ParseInt(c.Query("tnsrobotID"), 10, 64)
	if err != nil || robotID <= 0 {
		server.Error(c, http.StatusBadRequest, "tnsrobotID is required")
		return
	}
	userID := server.UserID(c)
	withPhot := boolQuery(c, "includePhotometry")
	withSpec := boolQuery(c, "includeSpectra")
	err = h.runner.Submit("tns_retrieval", func(ctx context.Context) error {
		res, err := h.retrieval.RetrieveOne(ctx, userID, robotID, objID, withPhot, withSpec, nil)
		if err != nil {
			h.logger.Warn("TNS retrieval failed",
				zap.String("obj_id", objID), zap.Error(err))
			return err
		}
		h.logger.Info("TNS retrieval finished",
			zap.String("obj_id", objID),
			zap.String("tns_name", res.TNSName),
			zap.Int("photometry_added", res.PhotometryAdded),
			zap.Int("spectra_added", res.SpectraAdded),
			zap.Int("skipped", len(res.Skipped)))
		return nil
	})
	if err != nil {
		h.queueFail(c, err)
		return
	}
	server.Success(c, gin.H{"queued": true})
}

type submitObjectRequest struct {
	RobotID         int64  `json:"tnsrobotID"`
	Reporters       string `json:"reporters"`
	Archival        bool   `json:"archival"`
	ArchivalComment string `json:"archivalComment"`
}

// SubmitObject queues a discovery report for the source.
func (h *TNSHandler) SubmitObject(c *gin.Context) {
	objID := c.Param("obj_id")
	var req submitObjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.RobotID <= 0 {
		server.Error(c, http.StatusBadRequest, "tnsrobotID is required")
		return
	}
	if strings.TrimSpace(req.Reporters) == "" {
		server.Error(c, http.StatusBadRequest, "reporters is required")
		return
	}
	if req.Archival && strings.TrimSpace(req.ArchivalComment) == "" {
		server.Error(c, http.StatusBadRequest, "archival submission requires archivalComment")
		return
	}

	err := h.runner.Submit("tns_submission", func(ctx context.Context) error {
		_, err := h.submission.SubmitObject(ctx, req.RobotID, objID, req.Reporters, req.Archival, req.ArchivalComment)
		if err != nil {
			h.logger.Warn("TNS discovery report failed",
				zap.String("obj_id", objID), zap.Error(err))
		}
		return err
	})
	if err != nil {
		h.queueFail(c, err)
		return
	}
	server.Success(c, gin.H{"queued": true})
}

type submitSpectrumRequest struct {
	RobotID               int64  `json:"tnsrobotID"`
	Classifier            string `json:"classifier"`
	ClassificationID      string `json:"classificationID"`
	SpectrumType          string `json:"spectrumType"`
	SpectrumComment       string `json:"spectrumComment"`
	ClassificationComment string `json:"classificationComment"`
}

// SubmitSpectrum uploads the spectrum and files a classification report,
// returning the TNS report ID.
func (h *TNSHandler) SubmitSpectrum(c *gin.Context) {
	specID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || specID <= 0 {
		server.Error(c, http.StatusBadRequest, "invalid spectrum ID")
		return
	}
	var req submitSpectrumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.RobotID <= 0 {
		server.Error(c, http.StatusBadRequest, "tnsrobotID is required")
		return
	}
	if strings.TrimSpace(req.Classifier) == "" {
		server.Error(c, http.StatusBadRequest, "classifier is required")
		return
	}

	reportID, err := h.submission.SubmitSpectrum(c.Request.Context(), service.SpectrumSubmission{
		RobotID:               req.RobotID,
		SpectrumID:            specID,
		Classifier:            req.Classifier,
		ClassificationID:      req.ClassificationID,
		SpectrumType:          req.SpectrumType,
		SpectrumComment:       req.SpectrumComment,
		ClassificationComment: req.ClassificationComment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	server.Success(c, gin.H{"tns_id": reportID})
}

func (h *TNSHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoRobot),
		errors.Is(err, service.ErrNoObject),
		errors.Is(err, service.ErrNoSpectrum):
		server.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrMissingAPIKey),
		errors.Is(err, service.ErrNotOnTNS),
		errors.Is(err, service.ErrArchivalComment),
		errors.Is(err, service.ErrNoNonDetection),
		errors.Is(err, service.ErrNoDetections):
		server.Error(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("TNS request failed", zap.Error(err))
		server.Error(c, http.StatusInternalServerError, "internal error")
	}
}

func (h *TNSHandler) queueFail(c *gin.Context, err error) {
	if errors.Is(err, tasks.ErrQueueFull) {
		server.Error(c, http.StatusServiceUnavailable, "too many pending TNS tasks, try again later")
		return
	}
	h.logger.Error("queue TNS task", zap.Error(err))
	server.Error(c, http.StatusInternalServerError, "internal error")
}

func boolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format")
}
