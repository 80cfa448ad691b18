package routes

import (
	"net/http"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/internal/logger"
	"therapy-room-backend/models"
	"therapy-room-backend/services"
	"therapy-room-backend/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// historyWindow is how many recent exchanges feed the image summary.
const historyWindow = 20

func SetupImageGenRoutes(router *gin.Engine, cfg *config.Config, mongoClient *mongo.Client,
	imageGen *services.ImageGenService) {

	messagesCollection := mongoClient.Database(cfg.DBName).Collection("messages")

	router.POST("/api/imagegen", func(c *gin.Context) {
		ctx := c.Request.Context()

		cursor, err := messagesCollection.Find(ctx, bson.M{},
			options.Find().SetSort(bson.M{"timestamp": -1}).SetLimit(historyWindow))
		if err != nil {
			logger.Error("Failed to read chat history", "error", err)
			utils.RespondWithInternalError(c, "Failed to read chat history", nil)
			return
		}

		var history []models.Message
		if err := cursor.All(ctx, &history); err != nil {
			logger.Error("Failed to decode chat history", "error", err)
			utils.RespondWithInternalError(c, "Failed to read chat history", nil)
			return
		}

		if len(history) == 0 {
			utils.RespondWithBadRequest(c, "No chat history found", nil)
			return
		}

		// Restore chronological order for the summary.
		for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
			history[i], history[j] = history[j], history[i]
		}

		result, err := imageGen.GenerateFromHistory(ctx, history)
		if err != nil {
			logger.Error("Image generation failed", "error", err)
			utils.RespondWithUpstreamError(c, "Image generation failed")
			return
		}

		c.JSON(http.StatusOK, result)
	})
}
