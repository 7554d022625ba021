// Package handler exposes TNS robot management over HTTP. Responses never
// include the credential envelope.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transient-broker/backend/internal/server"
	robotdomain "transient-broker/backend/internal/tnsrobot/domain"
	"transient-broker/backend/internal/tnsrobot/service"
)

// RobotManager is the service surface the handler needs. Implemented by
// *service.RobotService.
type RobotManager interface {
	List(ctx context.Context, userID int64) ([]*robotdomain.Robot, error)
	Get(ctx context.Context, userID, robotID int64) (*robotdomain.Robot, error)
	Create(ctx context.Context, userID int64, in service.CreateInput) (*robotdomain.Robot, error)
	Update(ctx context.Context, userID, robotID int64, in service.UpdateInput) (*robotdomain.Robot, error)
	Delete(ctx context.Context, userID, robotID int64) error
}

// RobotHandler handles /api/tns_robot requests.
type RobotHandler struct {
	svc    RobotManager
	logger *zap.Logger
}

// NewRobotHandler wires a robot handler.
func NewRobotHandler(svc RobotManager, logger *zap.Logger) *RobotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the robot routes. Mutations additionally pass
// through requireManage.
func (h *RobotHandler) RegisterRoutes(rg *gin.RouterGroup, requireManage gin.HandlerFunc) {
	rg.GET("/tns_robot", h.List)
	rg.GET("/tns_robot/:id", h.Get)
	manage := rg.Group("", requireManage)
	manage.POST("/tns_robot", h.Create)
	manage.PUT("/tns_robot/:id", h.Update)
	manage.DELETE("/tns_robot/:id", h.Delete)
}

// robotView is the wire shape of a robot. The credential envelope stays out.
type robotView struct {
	ID                 int64     `json:"id"`
	GroupID            int64     `json:"group_id"`
	BotName            string    `json:"bot_name"`
	BotID              int       `json:"bot_id"`
	SourceGroupID      int       `json:"source_group_id"`
	AutoReportGroupIDs []int64   `json:"auto_report_group_ids"`
	AutoReporters      string    `json:"auto_reporters"`
	HasCredentials     bool      `json:"has_credentials"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func viewOf(r *robotdomain.Robot) robotView {
	ids := r.AutoReportGroupIDs
	if ids == nil {
		ids = []int64{}
	}
	return robotView{
		ID:                 r.ID,
		GroupID:            r.GroupID,
		BotName:            r.BotName,
		BotID:              r.BotID,
		SourceGroupID:      r.SourceGroupID,
		AutoReportGroupIDs: ids,
		AutoReporters:      r.AutoReporters,
		HasCredentials:     r.Altdata != "",
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type createRequest struct {
	GroupID            int64             `json:"group_id"`
	BotName            string            `json:"bot_name"`
	BotID              int               `json:"bot_id"`
	SourceGroupID      int               `json:"source_group_id"`
	Altdata            map[string]string `json:"altdata"`
	AutoReportGroupIDs []int64           `json:"auto_report_group_ids"`
	AutoReporters      string            `json:"auto_reporters"`
}

type updateRequest struct {
	BotName            *string           `json:"bot_name"`
	BotID              *int              `json:"bot_id"`
	SourceGroupID      *int              `json:"source_group_id"`
	Altdata            map[string]string `json:"altdata"`
	AutoReportGroupIDs *[]int64          `json:"auto_report_group_ids"`
	AutoReporters      *string           `json:"auto_reporters"`
}

func (h *RobotHandler) List(c *gin.Context) {
	robots, err := h.svc.List(c.Request.Context(), server.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]robotView, 0, len(robots))
	for _, r := range robots {
		views = append(views, viewOf(r))
	}
	server.Success(c, views)
}

func (h *RobotHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	robot, err := h.svc.Get(c.Request.Context(), server.UserID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	server.Success(c, viewOf(robot))
}

func (h *RobotHandler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	robot, err := h.svc.Create(c.Request.Context(), server.UserID(c), service.CreateInput{
		GroupID:            req.GroupID,
		BotName:            req.BotName,
		BotID:              req.BotID,
		SourceGroupID:      req.SourceGroupID,
		Credentials:        req.Altdata,
		AutoReportGroupIDs: req.AutoReportGroupIDs,
		AutoReporters:      req.AutoReporters,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	server.Success(c, viewOf(robot))
}

func (h *RobotHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	robot, err := h.svc.Update(c.Request.Context(), server.UserID(c), id, service.UpdateInput{
		BotName:            req.BotName,
		BotID:              req.BotID,
		SourceGroupID:      req.SourceGroupID,
		Credentials:        req.Altdata,
		AutoReportGroupIDs: req.AutoReportGroupIDs,
		AutoReporters:      req.AutoReporters,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	server.Success(c, viewOf(robot))
}

func (h *RobotHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), server.UserID(c), id); err != nil {
		h.fail(c, err)
		return
	}
	server.Success(c, gin.H{"id": id})
}

func (h *RobotHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRobotNotFound), errors.Is(err, service.ErrNoUser):
		server.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		server.Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		server.Error(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("tns robot request failed", zap.Error(err))
		server.Error(c, http.StatusInternalServerError, "internal error")
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		server.Error(c, http.StatusBadRequest, "invalid robot ID")
		return 0, false
	}
	return id, true
}
