package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moguard/panel/internal/domain/service"
	apperrors "github.com/moguard/panel/internal/shared/errors"
)

type serviceRequest struct {
	Remark  string  `json:"remark" binding:"required"`
	NodeIDs []int64 `json:"node_ids"`
}

func (s *Server) handleListServices(c *gin.Context) {
	services, err := s.services.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, serviceResponses(services))
}

func (s *Server) handleCreateService(c *gin.Context) {
	var req serviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	svc, err := service.New(req.Remark, req.NodeIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	created, err := s.services.Create(c.Request.Context(), svc)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, serviceResponse(created))
}

func (s *Server) handleGetService(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid service id"))
		return
	}
	svc, err := s.services.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("service not found"))
		return
	}
	respondJSON(c, 200, serviceResponse(svc))
}

func (s *Server) handleUpdateService(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid service id"))
		return
	}
	var req serviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	svc, err := s.services.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("service not found"))
		return
	}
	svc.Update(req.Remark, req.NodeIDs)
	if err := s.services.Update(c.Request.Context(), svc); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, serviceResponse(svc))
}

func (s *Server) handleDeleteService(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid service id"))
		return
	}
	if err := s.services.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, gin.H{"detail": "removed"})
}

type serviceResponseBody struct {
	ID      int64   `json:"id"`
	Remark  string  `json:"remark"`
	NodeIDs []int64 `json:"node_ids"`
}

func serviceResponse(svc *service.Service) serviceResponseBody {
	return serviceResponseBody{ID: svc.ID(), Remark: svc.Remark(), NodeIDs: svc.NodeIDs()}
}

func serviceResponses(services []*service.Service) []serviceResponseBody {
	out := make([]serviceResponseBody, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceResponse(svc))
	}
	return out
}
