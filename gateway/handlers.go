package gateway

import (
	"net/http"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/optree"
	"github.com/youwol/ywdash/projection"
	"github.com/youwol/ywdash/queue"
	"github.com/youwol/ywdash/state/cdn"
	"github.com/youwol/ywdash/state/projects"
)

// ProjectSession is the view of an opened project.
type ProjectSession struct {
	Project      message.Project `json:"project"`
	SelectedFlow string          `json:"selectedFlow"`
	SelectedStep string          `json:"selectedStep"`
	Nodes        int             `json:"nodes"`
}

// PackageSession is the view of an opened package.
type PackageSession struct {
	Name            string              `json:"name"`
	ID              string              `json:"id"`
	Details         *message.CdnPackage `json:"details,omitempty"`
	SelectedVersion string              `json:"selectedVersion"`
}

// VersionStatus is the download status of one package version.
type VersionStatus struct {
	Version string                                           `json:"version"`
	Status  projection.Projection[message.DownloadEventType] `json:"status"`
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) environmentRoutes() {
	env := s.deps.Environment

	s.mux.HandleFunc("GET /api/environment", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, env.Status.Get())
	})
	s.mux.HandleFunc("POST /api/environment/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := env.Reload(); err != nil {
			s.fail(w, r, err)
			return
		}
		accepted(w)
	})
	s.mux.HandleFunc("POST /api/environment/commands/{name}", func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := env.Execute(r.PathValue("name"), body); err != nil {
			s.fail(w, r, err)
			return
		}
		accepted(w)
	})
	s.mux.HandleFunc("GET /api/environment/commands/last", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, env.LastCommand.Get())
	})
	s.mux.HandleFunc("GET /api/environment/logs", func(w http.ResponseWriter, r *http.Request) {
		s.writeTree(w, r, env.Tree)
	})
	s.mux.HandleFunc("POST /api/environment/folder", func(w http.ResponseWriter, r *http.Request) {
		var req pathRequest
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		content, err := env.Folder(r.Context(), req.Path)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, content)
	})
	s.mux.HandleFunc("GET /api/environment/file", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			s.fail(w, r, errors.WrapInvalid(errors.ErrInvalidData, "gateway", "file", "path query parameter"))
			return
		}
		content, err := env.File(r.Context(), path)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(content)
	})
}

// writeTree answers with the subtree rooted at the "node" query parameter,
// the root by default.
func (s *Server) writeTree(w http.ResponseWriter, r *http.Request, tree *optree.Tree) {
	id := r.URL.Query().Get("node")
	if id == "" {
		id = message.RootID
	}
	view, ok := tree.Snapshot(id)
	if !ok {
		s.fail(w, r, errors.WrapInvalid(errors.ErrEntityNotFound, "gateway", "tree", "find node "+id))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) projectRoutes() {
	ps := s.deps.Projects

	s.mux.HandleFunc("GET /api/projects", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, ps.Projects.Get())
	})
	s.mux.HandleFunc("POST /api/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		ev, err := ps.Open(r.PathValue("id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, projectSession(ev))
	})
	s.mux.HandleFunc("GET /api/projects/{id}", s.withProject(func(w http.ResponseWriter, _ *http.Request, ev *projects.Events) {
		writeJSON(w, http.StatusOK, projectSession(ev))
	}))
	s.mux.HandleFunc("DELETE /api/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !ps.CloseSession(r.PathValue("id")) {
			s.fail(w, r, errors.WrapInvalid(errors.ErrSessionNotFound, "gateway", "closeProject", "close "+r.PathValue("id")))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	s.mux.HandleFunc("GET /api/projects/{id}/tree", s.withProject(func(w http.ResponseWriter, r *http.Request, ev *projects.Events) {
		s.writeTree(w, r, ev.Tree)
	}))
	s.mux.HandleFunc("GET /api/projects/{id}/steps", s.withProject(func(w http.ResponseWriter, r *http.Request, ev *projects.Events) {
		flow := r.URL.Query().Get("flow")
		if flow == "" {
			flow = ev.SelectedFlow.Get()
		}
		steps, err := ev.FlowSteps(flow)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, steps)
	}))
	s.mux.HandleFunc("GET /api/projects/{id}/flows/{flow}/dag", s.withProject(func(w http.ResponseWriter, r *http.Request, ev *projects.Events) {
		dag, err := ev.DAG(r.PathValue("flow"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dag)
	}))
	s.mux.HandleFunc("POST /api/projects/{id}/flows/{flow}/select", s.withProject(func(w http.ResponseWriter, r *http.Request, ev *projects.Events) {
		s.acceptOrFail(w, r, ev.SelectFlow(r.PathValue("flow")))
	}))
	s.mux.HandleFunc("POST /api/projects/{id}/flows/{flow}/steps/{step}/select", s.withProject(func(w http.ResponseWriter, r *http.Request, ev *projects.Events) {
		s.acceptOrFail(w, r, ev.SelectStep(r.PathValue("flow"), r.PathValue("step")))
	}))
	s.mux.HandleFunc("POST /api/projects/{id}/flows/{flow}/steps/{step}/run", s.withProject(func(w http.ResponseWriter, r *http.Request, ev *projects.Events) {
		s.acceptOrFail(w, r, ev.RunStep(r.PathValue("flow"), r.PathValue("step")))
	}))
}

func (s *Server) withProject(h func(http.ResponseWriter, *http.Request, *projects.Events)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := s.deps.Projects.Session(r.PathValue("id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		h(w, r, ev)
	}
}

func projectSession(ev *projects.Events) ProjectSession {
	return ProjectSession{
		Project:      ev.Project,
		SelectedFlow: ev.SelectedFlow.Get(),
		SelectedStep: ev.SelectedStep.Get(),
		Nodes:        ev.Tree.Size(),
	}
}

func (s *Server) acceptOrFail(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	accepted(w)
}

func (s *Server) cdnRoutes() {
	c := s.deps.Cdn

	s.mux.HandleFunc("GET /api/cdn/packages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Packages.Get())
	})
	s.mux.HandleFunc("GET /api/cdn/queue", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Queue.Entries())
	})
	for op, apply := range map[string]func(name, version string){
		"toggle": c.Queue.Toggle,
		"insert": c.Queue.Insert,
		"remove": c.Queue.Remove,
	} {
		s.mux.HandleFunc("POST /api/cdn/queue/"+op, func(w http.ResponseWriter, r *http.Request) {
			var e queue.Entry
			if err := decodeBody(r, &e); err != nil {
				s.fail(w, r, err)
				return
			}
			if e.Name == "" || e.Version == "" {
				s.fail(w, r, errors.WrapInvalid(errors.ErrInvalidData, "gateway", "queue", "name and version are required"))
				return
			}
			apply(e.Name, e.Version)
			writeJSON(w, http.StatusOK, c.Queue.Entries())
		})
	}
	s.mux.HandleFunc("POST /api/cdn/queue/submit", func(w http.ResponseWriter, r *http.Request) {
		s.acceptOrFail(w, r, c.SubmitQueue())
	})
	s.mux.HandleFunc("GET /api/cdn/pending", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Pending.Get())
	})
	s.mux.HandleFunc("GET /api/cdn/updates", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Updates.Get())
	})
	s.mux.HandleFunc("POST /api/cdn/updates/check", func(w http.ResponseWriter, r *http.Request) {
		s.acceptOrFail(w, r, c.CheckUpdates())
	})
	s.mux.HandleFunc("POST /api/cdn/packages/{name}", func(w http.ResponseWriter, r *http.Request) {
		ev, err := c.Open(r.PathValue("name"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, packageSession(ev))
	})
	s.mux.HandleFunc("GET /api/cdn/packages/{name}", s.withPackage(func(w http.ResponseWriter, _ *http.Request, ev *cdn.PackageEvents) {
		writeJSON(w, http.StatusOK, packageSession(ev))
	}))
	s.mux.HandleFunc("DELETE /api/cdn/packages/{name}", func(w http.ResponseWriter, r *http.Request) {
		if !c.CloseSession(r.PathValue("name")) {
			s.fail(w, r, errors.WrapInvalid(errors.ErrSessionNotFound, "gateway", "closePackage", "close "+r.PathValue("name")))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	s.mux.HandleFunc("GET /api/cdn/packages/{name}/tree", s.withPackage(func(w http.ResponseWriter, r *http.Request, ev *cdn.PackageEvents) {
		s.writeTree(w, r, ev.Tree)
	}))
	s.mux.HandleFunc("GET /api/cdn/packages/{name}/versions", s.withPackage(func(w http.ResponseWriter, _ *http.Request, ev *cdn.PackageEvents) {
		var out []VersionStatus
		if details := ev.Details.Get(); details != nil {
			out = make([]VersionStatus, 0, len(details.Versions))
			for _, v := range details.Versions {
				out = append(out, VersionStatus{Version: v.Version, Status: ev.VersionStatus(v.Version)})
			}
		}
		writeJSON(w, http.StatusOK, out)
	}))
	s.mux.HandleFunc("POST /api/cdn/packages/{name}/versions/{version}/select", s.withPackage(func(w http.ResponseWriter, r *http.Request, ev *cdn.PackageEvents) {
		if err := ev.SelectVersion(r.PathValue("version")); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, packageSession(ev))
	}))
}

func (s *Server) withPackage(h func(http.ResponseWriter, *http.Request, *cdn.PackageEvents)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := s.deps.Cdn.Session(r.PathValue("name"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		h(w, r, ev)
	}
}

func packageSession(ev *cdn.PackageEvents) PackageSession {
	return PackageSession{
		Name:            ev.Name,
		ID:              ev.ID,
		Details:         ev.Details.Get(),
		SelectedVersion: ev.SelectedVersion.Get(),
	}
}
