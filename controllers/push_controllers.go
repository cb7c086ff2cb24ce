package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dataponto/dataponto-backend/middlewares"
	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/services"
	"github.com/dataponto/dataponto-backend/utils"
)

// SubscriptionRegistry stores the browser registrations of signed-in users.
type SubscriptionRegistry interface {
	UpsertSubscription(ctx context.Context, sub *models.PushSubscription) error
	DeleteUserSubscription(ctx context.Context, userID, endpoint string) (bool, error)
}

type PushController struct {
	Dispatcher *services.PushDispatcher
	Registry   SubscriptionRegistry
	PublicKey  string
}

func NewPushController(dispatcher *services.PushDispatcher, registry SubscriptionRegistry, publicKey string) *PushController {
	return &PushController{Dispatcher: dispatcher, Registry: registry, PublicKey: publicKey}
}

// SendPushNotification -> fan a notification out to every subscription but
// the sender's. The response shape is shared with existing clients.
func (pc *PushController) SendPushNotification(c *gin.Context) {
	var req services.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := pc.Dispatcher.Dispatch(c.Request.Context(), req)
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrStoreUnavailable):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subscriptions"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if len(result.Deliveries) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No subscriptions found", "results": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": result.Summaries()})
}

// GenerateVAPIDKeys -> fresh key pair for VAPID_PUBLIC_KEY / VAPID_PRIVATE_KEY
func (pc *PushController) GenerateVAPIDKeys(c *gin.Context) {
	keys, err := services.GenerateVAPIDKeys()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, keys)
}

// GetVAPIDPublicKey -> applicationServerKey for pushManager.subscribe
func (pc *PushController) GetVAPIDPublicKey(c *gin.Context) {
	if pc.PublicKey == "" {
		utils.RespondError(c, http.StatusNotFound, errors.New("web push is not configured"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "VAPID public key", gin.H{"public_key": pc.PublicKey})
}

type subscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

// Subscribe -> register (or refresh) this browser for the viewer
func (pc *PushController) Subscribe(c *gin.Context) {
	var body subscriptionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	sub := models.PushSubscription{
		UserID:   c.GetString(middlewares.ContextUserID),
		Endpoint: body.Endpoint,
		P256dh:   body.Keys.P256dh,
		Auth:     body.Keys.Auth,
	}
	if err := pc.Registry.UpsertSubscription(c.Request.Context(), &sub); err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"user_id": sub.UserID}).Errorf("Failed to save push subscription: %v", err)
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Push subscription registered", sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// Unsubscribe -> forget one of the viewer's browsers
func (pc *PushController) Unsubscribe(c *gin.Context) {
	var body unsubscribeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	removed, err := pc.Registry.DeleteUserSubscription(c.Request.Context(), c.GetString(middlewares.ContextUserID), body.Endpoint)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		utils.RespondError(c, http.StatusNotFound, errors.New("subscription not found"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Push subscription removed", nil)
}
