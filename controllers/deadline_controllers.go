package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dataponto/dataponto-backend/middlewares"
	"github.com/dataponto/dataponto-backend/services"
	"github.com/dataponto/dataponto-backend/utils"
)

type DeadlineController struct {
	Aggregator *services.DeadlineAggregator
}

func NewDeadlineController(aggregator *services.DeadlineAggregator) *DeadlineController {
	return &DeadlineController{Aggregator: aggregator}
}

type deadlineResponse struct {
	Items   []services.DeadlineItem  `json:"items"`
	Summary services.DeadlineSummary `json:"summary"`
	Errors  []services.SourceError   `json:"errors"`
}

// GetDeadlines -> merged deadlines of the viewer, optionally filtered
func (dc *DeadlineController) GetDeadlines(c *gin.Context) {
	filter, err := services.ParseDeadlineFilter(c.Query("filter"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	list, err := dc.Aggregator.Aggregate(c.Request.Context(), c.GetString(middlewares.ContextUserID))
	if errors.Is(err, services.ErrNoViewer) {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	failures := list.Failures
	if failures == nil {
		failures = []services.SourceError{}
	}
	utils.RespondJSON(c, http.StatusOK, "Deadlines", deadlineResponse{
		Items:   list.Filter(filter),
		Summary: list.Summary(),
		Errors:  failures,
	})
}
