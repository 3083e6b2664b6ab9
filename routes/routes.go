package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rallyrank/rallyrank-api/handlers"
	"github.com/rallyrank/rallyrank-api/middleware"
)

// SetupRoutes mounts the full API surface on the router. Reads on courts,
// tournaments and the leaderboards are public; everything that acts on
// behalf of a player requires a Bearer token.
func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	courtHandler *handlers.CourtHandler,
	presenceHandler *handlers.PresenceHandler,
	queueHandler *handlers.QueueHandler,
	lobbyHandler *handlers.LobbyHandler,
	matchHandler *handlers.MatchHandler,
	tournamentHandler *handlers.TournamentHandler,
	notificationHandler *handlers.NotificationHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Post("/auth/register", authHandler.RegisterHandler)
	router.Post("/auth/login", authHandler.LoginHandler)

	router.Route("/courts", func(r chi.Router) {
		r.Get("/", courtHandler.ListCourtsHandler)
		r.Get("/{courtID}", courtHandler.GetCourtHandler)
		r.Get("/{courtID}/players", presenceHandler.ListCourtPlayersHandler)
		r.Get("/{courtID}/queue", queueHandler.ListQueueHandler)
		r.Get("/{courtID}/lobbies", lobbyHandler.ListCourtLobbiesHandler)
		r.Get("/{courtID}/matches", matchHandler.ListCourtMatchesHandler)
		r.Get("/{courtID}/ws", webSocketHandler.CourtStreamHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/{courtID}/queue", queueHandler.JoinQueueHandler)
			r.Delete("/{courtID}/queue", queueHandler.LeaveQueueHandler)
		})
	})

	router.Route("/users", func(r chi.Router) {
		r.Get("/{userID}", userHandler.GetUserHandler)
		r.Get("/{userID}/tournaments", userHandler.TournamentHistoryHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Get("/me", userHandler.GetMeHandler)
			r.Put("/me", userHandler.UpdateProfileHandler)
			r.Post("/me/photo", userHandler.UploadPhotoHandler)
		})
	})

	router.Get("/leaderboard/elo", userHandler.EloLeaderboardHandler)
	router.Get("/leaderboard/tournaments", tournamentHandler.LeaderboardHandler)

	router.Route("/presence", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Post("/check-in", presenceHandler.CheckInHandler)
		r.Post("/check-out", presenceHandler.CheckOutHandler)
		r.Get("/current", presenceHandler.CurrentCheckInHandler)
	})

	router.Route("/lobbies", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Post("/from-queue", lobbyHandler.CreateFromQueueHandler)
		r.Post("/challenge", lobbyHandler.CreateChallengeHandler)
		r.Get("/mine", lobbyHandler.ListMyLobbiesHandler)
		r.Get("/{lobbyID}", lobbyHandler.GetLobbyHandler)
		r.Post("/{lobbyID}/respond", lobbyHandler.RespondHandler)
		r.Post("/{lobbyID}/start", lobbyHandler.StartLobbyHandler)
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", matchHandler.GetMatchHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Get("/pending", matchHandler.ListPendingMatchesHandler)
			r.Get("/history", matchHandler.ListMatchHistoryHandler)
			r.Post("/{matchID}/score", matchHandler.SubmitScoreHandler)
			r.Post("/{matchID}/confirm", matchHandler.ConfirmScoreHandler)
			r.Post("/{matchID}/reject", matchHandler.RejectScoreHandler)
			r.Post("/{matchID}/cancel", matchHandler.CancelMatchHandler)
		})
	})

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.ListTournamentsHandler)
		r.Get("/{tournamentID}", tournamentHandler.GetTournamentHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/", tournamentHandler.CreateTournamentHandler)
			r.Post("/{tournamentID}/join", tournamentHandler.JoinTournamentHandler)
			r.Post("/{tournamentID}/leave", tournamentHandler.LeaveTournamentHandler)
			r.Post("/{tournamentID}/invite", tournamentHandler.InviteHandler)
			r.Post("/{tournamentID}/invite/respond", tournamentHandler.RespondInviteHandler)
			r.Post("/{tournamentID}/check-in", tournamentHandler.CheckInHandler)
			r.Post("/{tournamentID}/no-show/{userID}", tournamentHandler.MarkNoShowHandler)
			r.Post("/{tournamentID}/start", tournamentHandler.StartTournamentHandler)
			r.Post("/{tournamentID}/cancel", tournamentHandler.CancelTournamentHandler)
		})
	})

	router.Route("/notifications", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Get("/", notificationHandler.ListNotificationsHandler)
		r.Get("/unread-count", notificationHandler.UnreadCountHandler)
		r.Post("/{notificationID}/read", notificationHandler.MarkReadHandler)
		r.Post("/read-all", notificationHandler.MarkAllReadHandler)
	})
}
