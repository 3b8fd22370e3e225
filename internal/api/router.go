package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendance.service/internal/api/handler"
)

func NewRouter(h *handler.AttendanceHandler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/attendance/punch", h.Punch).Methods(http.MethodPost)
	router.HandleFunc("/attendance/history", h.GetHistory).Methods(http.MethodGet)
	router.HandleFunc("/attendance", h.GetAttendance).Methods(http.MethodGet)

	router.HandleFunc("/face/isAvailable/{userId}", h.FaceAvailable).Methods(http.MethodGet)
	router.HandleFunc("/face/register/{userId}", h.FaceRegister).Methods(http.MethodPost)
	router.HandleFunc("/face/match/{userId}", h.FaceMatch).Methods(http.MethodPost)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return router
}
