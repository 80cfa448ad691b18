package routes

import (
	"net/http"
	"time"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/internal/logger"
	"therapy-room-backend/models"
	"therapy-room-backend/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func SetupMoodRoutes(router *gin.Engine, cfg *config.Config, mongoClient *mongo.Client) {
	moodsCollection := mongoClient.Database(cfg.DBName).Collection("moods")

	// Save (or overwrite) the mood for a calendar day.
	router.POST("/api/mood", func(c *gin.Context) {
		var req models.SaveMoodRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Missing required fields: mood and date", nil)
			return
		}

		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			utils.RespondWithBadRequest(c, "Date must be YYYY-MM-DD", nil)
			return
		}

		_, err := moodsCollection.UpdateOne(c.Request.Context(),
			bson.M{"date": req.Date},
			bson.M{"$set": bson.M{
				"mood":      req.Mood,
				"timestamp": time.Now().UTC(),
			}},
			options.Update().SetUpsert(true))
		if err != nil {
			logger.Error("Failed to save mood", "error", err)
			utils.RespondWithInternalError(c, "Failed to save mood data", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Mood saved successfully"})
	})

	// Whether a mood was already picked today.
	router.GET("/api/mood/today", func(c *gin.Context) {
		today := time.Now().UTC().Format("2006-01-02")

		count, err := moodsCollection.CountDocuments(c.Request.Context(), bson.M{"date": today})
		if err != nil {
			logger.Error("Failed to check mood", "error", err)
			utils.RespondWithInternalError(c, "Failed to check mood data", nil)
			return
		}

		c.JSON(http.StatusOK, models.MoodTodayResponse{
			HasSelectedToday: count > 0,
			Today:            today,
		})
	})
}
