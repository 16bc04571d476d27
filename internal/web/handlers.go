package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/go-chi/chi/v5"
)

// kindResponse describes one importable kind for API clients.
type kindResponse struct {
	Kind       core.EntityKind `json:"kind"`
	Label      string          `json:"label"`
	Plural     string          `json:"plural"`
	CodeColumn string          `json:"codeColumn"`
	Columns    []string        `json:"columns"`
	Template   string          `json:"template"`
}

// handleListKinds returns every importable kind with its template columns.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	defs := s.service.Kinds()
	kinds := make([]kindResponse, 0, len(defs))
	for _, def := range defs {
		kinds = append(kinds, kindResponse{
			Kind:       def.Kind,
			Label:      def.Label,
			Plural:     def.Plural,
			CodeColumn: def.CodeColumn,
			Columns:    def.Headers(),
			Template:   fmt.Sprintf("/api/template/%s", def.Plural),
		})
	}
	writeJSON(w, http.StatusOK, kinds)
}

// handleDownloadTemplate serves the kind's header row plus one sample row.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	data, err := s.service.Template(kind)
	if err != nil {
		respondError(w, r, err)
		return
	}

	def, _ := core.Definition(kind)
	filename := fmt.Sprintf("%s_template.csv", def.Plural)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(data)
}
