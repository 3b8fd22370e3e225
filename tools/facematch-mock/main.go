package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
)

// In-memory stand-in for the face recognition process. Any uploaded image
// counts as the employee's face, so registered employees always match.
type faceStore struct {
	mu       sync.Mutex
	enrolled map[string]bool
}

func (s *faceStore) register(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrolled[id] = true
}

func (s *faceStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrolled[id]
}

func main() {
	store := &faceStore{enrolled: map[string]bool{}}

	http.HandleFunc("/isAvailable/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/isAvailable/")
		writeJSON(w, map[string]bool{"exists": store.has(id)})
	})

	http.HandleFunc("/register/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/register/")
		if _, _, err := r.FormFile("image"); err != nil {
			http.Error(w, "image is required", http.StatusBadRequest)
			return
		}
		store.register(id)
		log.Printf("Registered face template for %s", id)
		writeJSON(w, map[string]any{"success": true, "message": "face registered"})
	})

	http.HandleFunc("/match/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/match/")
		if _, _, err := r.FormFile("image"); err != nil {
			http.Error(w, "image is required", http.StatusBadRequest)
			return
		}
		if !store.has(id) {
			writeJSON(w, map[string]any{"matched": false, "message": "no face template registered"})
			return
		}
		log.Printf("Matched face for %s (direction=%s)", id, r.URL.Query().Get("direction"))
		writeJSON(w, map[string]any{"matched": true, "message": "match", "user_id": id})
	})

	log.Println("Face service mock starting on port 8082...")
	log.Fatal(http.ListenAndServe(":8082", nil))
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
