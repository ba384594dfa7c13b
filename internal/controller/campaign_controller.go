// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/remote"
	"github.com/unclebandit/campaign-engine/internal/service"
)

// maxListUpload bounds the multipart number-list upload (32 MB).
const maxListUpload = 32 << 20

type CampaignController struct {
	CampaignService *service.CampaignService
	Sites           *remote.SitesCatalog
}

func (c *CampaignController) Routes(r chi.Router) {
	r.Get("/sites", c.ListSites)
	r.Get("/campaigns", c.ListCampaigns)
	r.Get("/campaigns/archived", c.ListArchived)
	r.Post("/campaigns", c.CreateCampaign)
	r.Get("/campaigns/{id}", c.GetCampaign)
	r.Patch("/campaigns/{id}", c.UpdateCampaign)
	r.Delete("/campaigns/{id}", c.DeleteCampaign)
	r.Post("/campaigns/{id}/list", c.AttachList)
	r.Delete("/campaigns/{id}/list", c.RemoveList)
	r.Post("/campaigns/{id}/start", c.StartCampaign)
	r.Post("/campaigns/{id}/pause", c.PauseCampaign)
	r.Post("/campaigns/{id}/resume", c.ResumeCampaign)
	r.Post("/campaigns/{id}/archive", c.ArchiveCampaign)
	r.Post("/campaigns/{id}/pause-and-archive", c.PauseAndArchive)
	r.Post("/campaigns/{id}/replace-list", c.ReplaceList)
	r.Post("/campaigns/{id}/pause-and-replace-list", c.PauseAndReplaceList)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsValidation(err):
		status = http.StatusBadRequest
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	case appErrors.IsTransport(err):
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.CampaignService.AddCampaign()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	campaign, ok := c.CampaignService.GetCampaign(id)
	if !ok {
		http.Error(w, "campaign not found", http.StatusNotFound)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body service.UpdateParams
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.UpdateCampaign(id, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"data": c.CampaignService.ListCampaigns()})
}

func (c *CampaignController) ListArchived(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"data": c.CampaignService.ListArchived()})
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachList accepts the number list as multipart form data under the
// "list" field.
func (c *CampaignController) AttachList(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := r.ParseMultipartForm(maxListUpload); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("list")
	if err != nil {
		http.Error(w, "missing list file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read list file", http.StatusBadRequest)
		return
	}

	if err := c.CampaignService.AttachList(id, header.Filename, payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) RemoveList(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.RemoveList(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.Start(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	campaign, _ := c.CampaignService.GetCampaign(id)
	writeJSON(w, campaign)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.Pause(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	campaign, _ := c.CampaignService.GetCampaign(id)
	writeJSON(w, campaign)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.Resume(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	campaign, _ := c.CampaignService.GetCampaign(id)
	writeJSON(w, campaign)
}

func (c *CampaignController) ArchiveCampaign(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.Archive(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) PauseAndArchive(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.PauseAndArchive(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) ReplaceList(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.ReplaceList(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) PauseAndReplaceList(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.PauseAndReplaceList(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := c.Sites.Sites(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"sites": sites, "count": len(sites)})
}
