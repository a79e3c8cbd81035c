package httpapi

import "net/http"

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.List(r.Context())
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	out := make([]apiKeyResponse, len(keys))
	for i, k := range keys {
		// Key material is shown once, at creation.
		out[i] = toAPIKeyResponse(k, false)
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	k, err := s.keys.Create(r.Context(), req.Name, req.Admin)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toAPIKeyResponse(k, true))
}

func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	if err := s.keys.Delete(r.Context(), id); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
