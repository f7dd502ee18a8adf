package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"lookbook/internal/api"
	"lookbook/internal/archive"
	"lookbook/internal/catalog"
	"lookbook/internal/generation"
	"lookbook/internal/logging"
	"lookbook/internal/prompt"
	"lookbook/internal/services"
	"lookbook/internal/vision"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= 500 {
		s.logger.Error("request failed", logging.Error(err))
	}
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

// userID extracts the calling user. Every data route requires it.
func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		return "", services.Wrap(services.ErrValidation, "server", "authenticate", "X-User-ID header is required", nil)
	}
	return id, nil
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return services.Wrap(services.ErrValidation, "server", "decode", "invalid request body", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "healthy", Version: s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.tasks.CountByStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := api.StatusResponse{Status: "healthy", Version: s.version, QueueCounts: make(map[string]int, len(counts))}
	for status, count := range counts {
		out.QueueCounts[string(status)] = count
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGeneration(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req api.CreateGenerationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.lifecycle.Create(r.Context(), user, req.GarmentID, req.PresetID, req.CollectionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.NewGenerationView(record))
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	records, err := s.lifecycle.List(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]*api.GenerationView, 0, len(records))
	for _, record := range records {
		views = append(views, api.NewGenerationView(record))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.lifecycle.Get(r.Context(), user, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewGenerationView(record))
}

func (s *Server) handleBuildPrompts(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := s.lifecycle.BuildPrompts(r.Context(), user, id); err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.lifecycle.Get(r.Context(), user, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewGenerationView(record))
}

func (s *Server) handleSavePrompts(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req api.SavePromptsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	edits := make(map[prompt.ShotType]generation.PromptEdit, len(req.Edits))
	for key, payload := range req.Edits {
		shot, err := prompt.Parse(key)
		if err != nil {
			s.writeError(w, services.Wrap(services.ErrValidation, "server", "save prompts", "parse shot type", err))
			return
		}
		edits[shot] = generation.PromptEdit{
			Prompt:         payload.Prompt,
			NegativePrompt: payload.NegativePrompt,
			DisplayName:    payload.DisplayName,
		}
	}
	id := mux.Vars(r)["id"]
	if _, err := s.lifecycle.SavePrompts(r.Context(), user, id, edits); err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.lifecycle.Get(r.Context(), user, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewGenerationView(record))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req api.ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.lifecycle.Execute(r.Context(), user, mux.Vars(r)["id"], req.Shots, req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.NewGenerationView(record))
}

func (s *Server) handleRetryVisual(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		s.writeError(w, services.Wrap(services.ErrValidation, "server", "retry visual", "visual index must be an integer", err))
		return
	}
	var req api.RetryVisualRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.lifecycle.RetryVisual(r.Context(), user, vars["id"], index, req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewGenerationView(record))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.lifecycle.Reset(r.Context(), user, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.bundles != nil {
		s.bundles.Invalidate(record.ID)
	}
	writeJSON(w, http.StatusOK, api.NewGenerationView(record))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	report, err := s.lifecycle.Progress(r.Context(), user, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewProgressView(report))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.lifecycle.Get(r.Context(), user, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	bundle, err := s.bundles.Open(r.Context(), record)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer bundle.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+archive.Filename(record)+`"`)
	if _, err := io.Copy(w, bundle); err != nil {
		s.logger.Warn("bundle stream interrupted",
			logging.String(logging.FieldGenerationID, record.ID),
			logging.Error(err))
	}
}

func (s *Server) handleCreateGarment(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req api.CreateGarmentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	record := &catalog.GarmentRecord{
		UserID:             user,
		Name:               req.Name,
		Category:           req.Category,
		Color:              req.Color,
		ClosureDescription: req.ClosureDescription,
		FabricTexture:      req.FabricTexture,
		HasLogo:            req.HasLogo,
		Analyzed:           req.Analyzed,
	}
	if err := s.catalog.CreateGarment(r.Context(), record); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, garmentView(record))
}

func (s *Server) handleListGarments(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	records, err := s.catalog.ListGarments(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]*api.GarmentView, 0, len(records))
	for _, record := range records {
		views = append(views, garmentView(record))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAnalyzeGarment(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.analyzer == nil {
		s.writeError(w, services.Wrap(services.ErrValidation, "server", "analyze", "vision analysis is disabled", nil))
		return
	}
	id := mux.Vars(r)["id"]
	record, err := s.catalog.GetGarment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if record.UserID != user {
		s.writeError(w, services.Wrap(services.ErrPermission, "server", "analyze", "garment belongs to another user", nil))
		return
	}

	var req api.AnalyzeGarmentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	imageData, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		s.writeError(w, services.Wrap(services.ErrValidation, "server", "analyze", "decode image", err))
		return
	}
	analysis, err := s.analyzer.Analyze(r.Context(), imageData, req.MimeType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	vision.ApplyToGarment(analysis, record)
	if err := s.catalog.SetGarmentAnalysis(r.Context(), id, record); err != nil {
		s.writeError(w, err)
		return
	}
	record.Analyzed = true
	writeJSON(w, http.StatusOK, garmentView(record))
}

func (s *Server) handleCreateStyle(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req api.CreateStyleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	source := &catalog.StyleSource{
		UserID:      user,
		Kind:        catalog.StyleKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Name:        req.Name,
		Background:  req.Background,
		Lighting:    req.Lighting,
		Props:       req.Props,
		Footwear:    req.Footwear,
		PantsPhrase: req.PantsPhrase,
		Subject:     req.Subject,
	}
	if len(req.ShotOptions) > 0 {
		source.ShotOptions = make(map[string]catalog.ShotOption, len(req.ShotOptions))
		for key, opt := range req.ShotOptions {
			source.ShotOptions[key] = catalog.ShotOption{Subject: opt.Subject, Size: opt.Size}
		}
	}
	if err := s.catalog.CreateStyleSource(r.Context(), source); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, styleView(source))
}

func (s *Server) handleListStyles(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sources, err := s.catalog.ListStyleSources(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]*api.StyleView, 0, len(sources))
	for _, source := range sources {
		views = append(views, styleView(source))
	}
	writeJSON(w, http.StatusOK, views)
}

func garmentView(record *catalog.GarmentRecord) *api.GarmentView {
	return &api.GarmentView{
		ID:                 record.ID,
		Name:               record.Name,
		Category:           record.Category,
		Color:              record.Color,
		ClosureDescription: record.ClosureDescription,
		FabricTexture:      record.FabricTexture,
		HasLogo:            record.HasLogo,
		Analyzed:           record.Analyzed,
		CreatedAt:          record.CreatedAt,
	}
}

func styleView(source *catalog.StyleSource) *api.StyleView {
	return &api.StyleView{
		ID:        source.ID,
		Kind:      string(source.Kind),
		Name:      source.Name,
		Subject:   source.Subject,
		CreatedAt: source.CreatedAt,
	}
}
