package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool/internal/apperr"
	"github.com/example/carpool/internal/booking"
	"github.com/example/carpool/internal/demand"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/scoring"
)

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/requests", s.handleRequestSeats).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/requests/{request_id}/decision", s.handleDecideRequest).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/requests/{request_id}/cancel", s.handleCancelRequest).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/cancel", s.handleCancelRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/complete", s.handleCompleteRide).Methods("POST")

	api.HandleFunc("/demands", s.handleCreateDemand).Methods("POST")
	api.HandleFunc("/demands/{demand_id}/offers", s.handleMakeOffer).Methods("POST")
	api.HandleFunc("/demands/{demand_id}/offers/{offer_id}/decision", s.handleDecideOffer).Methods("POST")
	api.HandleFunc("/demands/{demand_id}/cancel", s.handleCancelDemand).Methods("POST")
	api.HandleFunc("/demands/{demand_id}/matches", s.handleRankMatches).Methods("POST")

	api.HandleFunc("/users/{user_id}/trust", s.handleTrustScore).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	}
	body := map[string]any{"kind": kind, "error": err.Error()}
	// the request id lets a caller quote the exact failing request when
	// reporting a 5xx, without us leaking the internal error text
	if rid := requestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", requestIDFromContext(r.Context()), "error", err)
		body["kind"] = apperr.KindInternal
		body["error"] = "internal error"
	}
	s.writeJSON(w, status, body)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	return nil
}

type createRideRequest struct {
	DriverID      string          `json:"driver_id"`
	Origin        models.Location `json:"origin"`
	Destination   models.Location `json:"destination"`
	Route         []models.Coord  `json:"route,omitempty"`
	DepartureTime time.Time       `json:"departure_time"`
	SeatsTotal    int             `json:"seats_total"`
	Price         float64         `json:"price"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var in createRideRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.booking.CreateRide(r.Context(), booking.CreateRideInput{
		DriverID:      in.DriverID,
		Origin:        in.Origin,
		Destination:   in.Destination,
		Route:         in.Route,
		DepartureTime: in.DepartureTime,
		SeatsTotal:    in.SeatsTotal,
		Price:         in.Price,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ride)
}

type requestSeatsRequest struct {
	PassengerID string `json:"passenger_id"`
	Seats       int    `json:"seats"`
	Message     string `json:"message,omitempty"`
}

func (s *Server) handleRequestSeats(w http.ResponseWriter, r *http.Request) {
	var in requestSeatsRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	br, err := s.booking.RequestSeats(r.Context(), mux.Vars(r)["ride_id"], in.PassengerID, in.Seats, in.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, br)
}

type decisionRequest struct {
	CallerID string `json:"caller_id"`
	Decision string `json:"decision"`
}

func (s *Server) handleDecideRequest(w http.ResponseWriter, r *http.Request) {
	var in decisionRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	ride, br, err := s.booking.DecideRequest(r.Context(), vars["ride_id"], vars["request_id"], in.CallerID, booking.Decision(in.Decision))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ride": ride, "request": br})
}

type callerRequest struct {
	CallerID string `json:"caller_id"`
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	var in callerRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	br, err := s.booking.CancelRequest(r.Context(), vars["ride_id"], vars["request_id"], in.CallerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, br)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	var in callerRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.booking.CancelRide(r.Context(), mux.Vars(r)["ride_id"], in.CallerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	var in callerRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.booking.CompleteRide(r.Context(), mux.Vars(r)["ride_id"], in.CallerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

type createDemandRequest struct {
	PassengerID string          `json:"passenger_id"`
	Origin      models.Location `json:"origin"`
	Destination models.Location `json:"destination"`
	DesiredTime time.Time       `json:"desired_time"`
	SeatsNeeded int             `json:"seats_needed"`
	MaxPrice    *float64        `json:"max_price,omitempty"`
}

func (s *Server) handleCreateDemand(w http.ResponseWriter, r *http.Request) {
	var in createDemandRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.demand.CreateDemand(r.Context(), demand.CreateDemandInput{
		PassengerID: in.PassengerID,
		Origin:      in.Origin,
		Destination: in.Destination,
		DesiredTime: in.DesiredTime,
		SeatsNeeded: in.SeatsNeeded,
		MaxPrice:    in.MaxPrice,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

type makeOfferRequest struct {
	DriverID string `json:"driver_id"`
	RideID   string `json:"ride_id"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) handleMakeOffer(w http.ResponseWriter, r *http.Request) {
	var in makeOfferRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	offer, err := s.demand.MakeOffer(r.Context(), mux.Vars(r)["demand_id"], in.DriverID, in.RideID, in.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, offer)
}

func (s *Server) handleDecideOffer(w http.ResponseWriter, r *http.Request) {
	var in decisionRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	d, err := s.demand.DecideOffer(r.Context(), vars["demand_id"], vars["offer_id"], in.CallerID, demand.Decision(in.Decision))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCancelDemand(w http.ResponseWriter, r *http.Request) {
	var in callerRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.demand.CancelDemand(r.Context(), mux.Vars(r)["demand_id"], in.CallerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRankMatches(w http.ResponseWriter, r *http.Request) {
	d, err := s.repo.GetDemand(r.Context(), mux.Vars(r)["demand_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ranked, err := s.matcher.RankForDemand(r.Context(), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"demand_id": d.ID, "matches": ranked})
}

func (s *Server) handleTrustScore(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	stats, err := s.repo.RatingStats(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	act, err := s.repo.UserActivity(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in := scoring.TrustInputFromActivity(stats, act, time.Now())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"trust":   scoring.TrustScore(in),
		"risk":    scoring.RiskScore(in),
	})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		s.logger.Warn("ws upgrade failed", "user_id", id, "error", err)
		return
	}
	s.wsreg.Add(id, conn)
	go func() {
		defer func() {
			s.wsreg.Remove(id)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
