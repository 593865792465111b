package server

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"limoni/internal/archive"
	"limoni/internal/domain"
	"limoni/internal/export"
	"limoni/internal/parser"
	"limoni/internal/storage"
)

type createCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateCollectionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type addEntryRequest struct {
	// Entry, when present, is stored as given. Otherwise EntryID is fetched
	// from PageURL, or from its permalink when PageURL is empty.
	Entry        *domain.Entry `json:"entry"`
	EntryID      string        `json:"entryId"`
	PageURL      string        `json:"pageUrl"`
	CollectionID string        `json:"collectionId"`
}

type importFavoritesRequest struct {
	Nick         string `json:"nick"`
	Pages        int    `json:"pages"`
	CollectionID string `json:"collectionId"`
}

var errBadRequest = errors.New("malformed request body")

// --- Response helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	body["success"] = status < 400
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Error("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.WithError(err).Error("Request failed")
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrCollectionNotFound),
		errors.Is(err, parser.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, archive.ErrInvalidEntry),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, parser.ErrMissingEntryData),
		errors.Is(err, parser.ErrContentNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// --- Collections ---

func (s *Server) handleGetCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.repo.GetCollections(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.SetCollections(len(cols))
	s.writeJSON(w, http.StatusOK, map[string]any{"collections": cols})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	c, err := s.repo.CreateCollection(r.Context(), req.Name, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"collection": c})
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := s.repo.GetCollection(r.Context(), chi.URLParam(r, "collectionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"collection": c})
}

func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	var req updateCollectionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	c, err := s.repo.UpdateCollection(r.Context(), chi.URLParam(r, "collectionID"), req.Name, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"collection": c})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteCollection(r.Context(), chi.URLParam(r, "collectionID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.svc.Export(r.Context(), chi.URLParam(r, "collectionID"), format)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// --- Entries ---

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var req addEntryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	var (
		target *domain.Collection
		err    error
	)
	switch {
	case req.Entry != nil:
		target, err = s.svc.SaveEntry(r.Context(), *req.Entry, req.CollectionID)
	case req.EntryID != "" && req.PageURL != "":
		if !s.allowedPage(req.PageURL) {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "page is not on the configured site"})
			return
		}
		_, target, err = s.svc.ArchiveFromPage(r.Context(), req.PageURL, req.EntryID, req.CollectionID)
	case req.EntryID != "":
		_, target, err = s.svc.ArchiveEntry(r.Context(), req.EntryID, req.CollectionID)
	default:
		err = errors.Join(errBadRequest, errors.New("no entry data provided"))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"collection": target})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	err := s.repo.DeleteEntry(r.Context(), chi.URLParam(r, "collectionID"), chi.URLParam(r, "entryID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleImportFavorites(w http.ResponseWriter, r *http.Request) {
	var req importFavoritesRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Nick == "" {
		s.writeError(w, errors.Join(errBadRequest, errors.New("nick is required")))
		return
	}
	n, err := s.svc.ImportFavorites(r.Context(), req.Nick, req.Pages, req.CollectionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"imported": n})
}

// --- Settings ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.repo.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch domain.SettingsPatch
	if err := decode(r, &patch); err != nil {
		s.writeError(w, err)
		return
	}
	settings, err := s.repo.UpdateSettings(r.Context(), patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

// --- Reader view ---

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if !s.allowedPage(pageURL) {
		http.Error(w, "page is not on the configured site", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	action := scheme + "://" + r.Host + "/view/add"

	page, err := s.svc.ReaderView(r.Context(), pageURL, action)
	if err != nil {
		s.log.WithError(err).WithField("url", pageURL).Error("Reader view failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (s *Server) handleViewAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entryID := r.PostForm.Get("entryId")
	pageURL := r.PostForm.Get("pageUrl")
	if entryID == "" || !s.allowedPage(pageURL) {
		http.Error(w, "entryId and a page on the configured site are required", http.StatusBadRequest)
		return
	}

	if _, _, err := s.svc.ArchiveFromPage(r.Context(), pageURL, entryID, r.PostForm.Get("collectionId")); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	http.Redirect(w, r, "/view?url="+url.QueryEscape(pageURL)+"#"+url.QueryEscape(entryID), http.StatusSeeOther)
}
