package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moguard/panel/internal/domain/node"
	apperrors "github.com/moguard/panel/internal/shared/errors"
)

type nodeRequest struct {
	Remark       string    `json:"remark" binding:"required"`
	Kind         node.Kind `json:"kind" binding:"required"`
	Host         string    `json:"host" binding:"required"`
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	OffsetLink   int       `json:"offset_link"`
	BatchSize    int       `json:"batch_size"`
	Priority     int       `json:"priority"`
	UsageRate    float64   `json:"usage_rate"`
	RateDisplay  string    `json:"rate_display"`
	ScriptURL    string    `json:"script_url"`
	ScriptSecret string    `json:"script_secret"`
	ShowConfigs  bool      `json:"show_configs"`
	Enabled      bool      `json:"enabled"`
}

func (s *Server) handleListNodes(c *gin.Context) {
	nodes, err := s.nodes.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, nodeResponses(nodes))
}

func (s *Server) handleCreateNode(c *gin.Context) {
	var req nodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	n, err := node.New(req.Remark, req.Kind, req.Host, req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	n.Update(req.Remark, req.Host, req.Username, req.Password, req.OffsetLink, req.BatchSize, req.Priority,
		req.UsageRate, req.RateDisplay, req.ScriptURL, req.ScriptSecret, req.ShowConfigs, req.Enabled)
	created, err := s.nodes.Create(c.Request.Context(), n)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, nodeResponse(created))
}

func (s *Server) handleGetNode(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid node id"))
		return
	}
	n, err := s.nodes.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("node not found"))
		return
	}
	respondJSON(c, 200, nodeResponse(n))
}

func (s *Server) handleUpdateNode(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid node id"))
		return
	}
	var req nodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	n, err := s.nodes.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("node not found"))
		return
	}
	n.Update(req.Remark, req.Host, req.Username, req.Password, req.OffsetLink, req.BatchSize, req.Priority,
		req.UsageRate, req.RateDisplay, req.ScriptURL, req.ScriptSecret, req.ShowConfigs, req.Enabled)
	if err := s.nodes.Update(c.Request.Context(), n); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, nodeResponse(n))
}

func (s *Server) handleDeleteNode(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid node id"))
		return
	}
	if err := s.nodes.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, gin.H{"detail": "removed"})
}

type nodeResponseBody struct {
	ID          int64     `json:"id"`
	Remark      string    `json:"remark"`
	Kind        node.Kind `json:"kind"`
	Host        string    `json:"host"`
	OffsetLink  int       `json:"offset_link"`
	BatchSize   int       `json:"batch_size"`
	Priority    int       `json:"priority"`
	UsageRate   float64   `json:"usage_rate"`
	RateDisplay string    `json:"rate_display"`
	ShowConfigs bool      `json:"show_configs"`
	Available   bool      `json:"available"`
}

func nodeResponse(n *node.Node) nodeResponseBody {
	return nodeResponseBody{
		ID: n.ID(), Remark: n.Remark(), Kind: n.Kind(), Host: n.Host(),
		OffsetLink: n.OffsetLink(), BatchSize: n.BatchSize(), Priority: n.Priority(),
		UsageRate: n.UsageRate(), RateDisplay: n.RateDisplay(),
		ShowConfigs: n.ShowConfigs(), Available: n.Availabled(),
	}
}

func nodeResponses(nodes []*node.Node) []nodeResponseBody {
	out := make([]nodeResponseBody, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeResponse(n))
	}
	return out
}
