package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/utils"
	"github.com/threadit/threadit-server/service/auth"
	"github.com/threadit/threadit-server/service/comment"
	"github.com/threadit/threadit-server/service/community"
	"github.com/threadit/threadit-server/service/message"
	"github.com/threadit/threadit-server/service/notification"
	"github.com/threadit/threadit-server/service/post"
	"github.com/threadit/threadit-server/service/realtime"
	"github.com/threadit/threadit-server/service/search"
	"github.com/threadit/threadit-server/service/user"
	"github.com/threadit/threadit-server/service/voting"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api").Subrouter()

	// Auth endpoints get a tight limiter to slow down credential
	// guessing; other writes share a looser one.
	authLimiter := utils.NewRateLimiter(rate.Every(45*time.Second), 20)
	writeLimiter := utils.NewRateLimiter(rate.Every(2*time.Second), 30)

	hub := realtime.NewHub()
	hub.RegisterRoutes(subrouter)

	notifier := notification.NewNotifier(s.db, hub)

	authHandler := auth.NewHandler(s.db)
	authHandler.RegisterRoutes(subrouter, authLimiter)

	userHandler := user.NewHandler(s.db, notifier)
	userHandler.RegisterRoutes(subrouter, writeLimiter)

	communityHandler := community.NewCommunityHandler(s.db)
	communityHandler.RegisterRoutes(subrouter, writeLimiter)

	postHandler := post.NewPostHandler(s.db)
	postHandler.RegisterRoutes(subrouter, writeLimiter)

	voteHandler := voting.NewVoteHandler(s.db, notifier)
	voteHandler.RegisterRoutes(subrouter, writeLimiter)

	commentHandler := comment.NewCommentHandler(s.db, notifier)
	commentHandler.RegisterRoutes(subrouter, writeLimiter)

	messageHandler := message.NewHandler(s.db, hub, notifier)
	messageHandler.RegisterRoutes(subrouter, writeLimiter)

	notificationHandler := notification.NewNotificationHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	searchHandler := search.NewHandler(s.db)
	searchHandler.RegisterRoutes(subrouter)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusNotFound, "Not found")
	})

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", utils.AuthHeader}),
	)(router)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, corsHandler)
}
