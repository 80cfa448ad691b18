package routes

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"therapy-room-backend/internal/ai"
	"therapy-room-backend/internal/config"
	"therapy-room-backend/internal/logger"
	"therapy-room-backend/models"
	"therapy-room-backend/services"
	"therapy-room-backend/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

const chatSystemPrompt = `You are a supportive, empathetic companion who provides a space for users to explore their thoughts and feelings. You adapt to their conversational tone and emotional state rather than following a fixed clinical approach. Your goal is to help them better understand their internal world through reflective dialogue.

VERY IMPORTANT RETRIEVAL INSTRUCTIONS:
- Always prioritize retrieved document content over general knowledge
- If the user asks about specific content they've shared (e.g., "What metaphor did I use?"), you MUST directly quote from their documents
- If the user asks about something specific that is NOT in context but might be in their documents, say "I don't see that specific information in our current context, but I'd love to discuss this further"
- Never definitively state "I couldn't find that information" for personal details unless you're certain it's not in the context
- If you see ANY metaphors or descriptive language about emotions in the context, prioritize showing these to the user when they ask about their metaphors
- Assume the user's documents contain important personal details - make every effort to find relevant content`

const chatPromptTemplate = `Your role is to engage in adaptive, therapeutic dialogue that helps the user explore, process, and better understand their internal world.

### Core Behavior:
- Do not follow a fixed script.
- Mirror the user's tone and emotional cadence. If they're light and chill, be relaxed. If they're sarcastic, play along. If they're blunt, don't sugarcoat.
- Move at the user's pace.
- Offer reflection, prompts, or small nudges only when emotionally and contextually appropriate.
- Your purpose is to be a quiet, consistent space for self-understanding and care - not to fix, not to lead.
- Be ambient, never clinical.

### Tone & Style:
- Kind. Curious. Gently playful unless the user's tone calls for something different.
- Avoid cheerleading. Validate without over-validating.
- Never managerial. Never prescriptive.

### Context and Task Integration:
Use the following contextual information to tailor your response specifically to the user. Remember to prioritize their documents and previous conversation context over general knowledge.

Context:
%s

Previous Conversation:
%s

Current Message:
%s

Remember that you're a companion for the in-between moments - not a replacement for a therapist, but a consistent, supportive presence. Respond in a way that feels natural and adaptive to their current emotional state.`

const personalInfoFallbackContext = `IMPORTANT: The user is asking about a specific personal detail (like a metaphor) but no relevant content was found in the vector database. This could mean: 1) The document containing this information was never uploaded, 2) The document was not properly embedded, or 3) The similarity search failed to retrieve it due to semantic mismatch. Suggest they try uploading the document again if they believe it should be there. DO NOT definitively state the information doesn't exist - instead say you don't see the metaphor in the current context but would love to discuss it further.`

const defaultFallbackContext = `The user is seeking support. Even without specific reference materials, respond in a conversational, adaptive way that helps them explore their thoughts and feelings.`

const retrievedContextHeader = `The following information has been retrieved from the user's uploaded documents. This content is HIGHLY RELEVANT to their query and should be directly referenced in your response when appropriate:`

func SetupChatRoutes(router *gin.Engine, cfg *config.Config, mongoClient *mongo.Client,
	retrieval *services.RetrievalService, chatClient *ai.ChatClient) {

	messagesCollection := mongoClient.Database(cfg.DBName).Collection("messages")

	router.POST("/api/chat", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Missing required field: query", gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		class := services.ClassifyQuery(req.Query)

		// Retrieval failure is not the same as "no relevant context":
		// the first is a 502, the second continues with a fallback.
		contextChunks, err := retrieval.Retrieve(ctx, req.Query)
		if err != nil {
			logger.Error("Context retrieval failed", "error", err)
			utils.RespondWithUpstreamError(c, "Could not fetch context for this message")
			return
		}

		therapeuticContext := strings.TrimSpace(strings.Join(contextChunks, "\n\n"))
		if therapeuticContext == "" {
			if class == services.QueryClassPersonalInfo {
				therapeuticContext = personalInfoFallbackContext
			} else {
				therapeuticContext = defaultFallbackContext
			}
		} else {
			therapeuticContext = retrievedContextHeader + "\n\n" + therapeuticContext
		}

		prompt := fmt.Sprintf(chatPromptTemplate,
			therapeuticContext,
			formatHistory(req.Messages),
			req.Query)

		answer, err := chatClient.Complete(ctx, chatSystemPrompt, req.Messages, prompt)
		if err != nil {
			logger.Error("Chat completion failed", "error", err)
			utils.RespondWithUpstreamError(c, "Failed to generate a response")
			return
		}

		// History persistence is best effort; the answer still goes out.
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err = messagesCollection.InsertOne(saveCtx, models.Message{
			SessionID: req.SessionID,
			User:      req.Query,
			Assistant: answer,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			logger.Warn("Failed to persist chat message", "error", err)
		}

		c.JSON(http.StatusOK, models.ChatResponse{
			Answer:       answer,
			ContextUsed:  len(contextChunks),
			PersonalInfo: class == services.QueryClassPersonalInfo,
			Timestamp:    time.Now().UTC(),
		})
	})
}

func formatHistory(history []models.ChatHistory) string {
	if len(history) == 0 {
		return "(none)"
	}

	var sb strings.Builder
	for i, turn := range history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if turn.Role == "user" {
			sb.WriteString("User: ")
		} else {
			sb.WriteString("You: ")
		}
		sb.WriteString(turn.Content)
	}
	return sb.String()
}
