package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/gateway"
	"github.com/local/pdfsuite/internal/jobs"
	"github.com/local/pdfsuite/internal/metrics"
	"github.com/local/pdfsuite/internal/ops"
	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/preview"
	"github.com/local/pdfsuite/internal/store"
)

// multipart parts above this stay on disk while the form is parsed
const formMemory = 32 << 20

func userID(r *http.Request) string { return strings.TrimSpace(r.Header.Get(userHeader)) }

// owns reports whether the caller may see a job of owner. Requests without
// a user header are not filtered.
func owns(r *http.Request, owner string) bool {
	u := userID(r)
	return u == "" || u == owner
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return pdf.Validationf("invalid multipart form: %v", err)
	}
	return nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) readPDFs(fhs []*multipart.FileHeader) ([]string, [][]byte, error) {
	names := make([]string, 0, len(fhs))
	inputs := make([][]byte, 0, len(fhs))
	for _, fh := range fhs {
		data, err := readPart(fh)
		if err != nil {
			return nil, nil, err
		}
		if err := s.detect.RequirePDF(fh.Filename, data); err != nil {
			return nil, nil, err
		}
		names = append(names, fh.Filename)
		inputs = append(inputs, data)
	}
	return names, inputs, nil
}

// readSinglePDF accepts a multipart "file" part or a raw request body.
func (s *Server) readSinglePDF(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := s.parseForm(w, r); err != nil {
			return nil, "", err
		}
		fhs := r.MultipartForm.File["file"]
		if len(fhs) != 1 {
			return nil, "", pdf.Validationf("exactly one file is required, got %d", len(fhs))
		}
		_, inputs, err := s.readPDFs(fhs)
		_ = r.MultipartForm.RemoveAll()
		if err != nil {
			return nil, "", err
		}
		return inputs[0], r.FormValue("password"), nil
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err != nil {
		return nil, "", err
	}
	if err := s.detect.RequirePDF("body", data); err != nil {
		return nil, "", err
	}
	return data, r.URL.Query().Get("password"), nil
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	typ, err := jobs.ParseType(chi.URLParam(r, "op"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	user := userID(r)
	if user == "" {
		writeError(w, r, pdf.Validationf("missing %s header", userHeader))
		return
	}
	if err := s.parseForm(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	names, inputs, err := s.readPDFs(r.MultipartForm.File["files"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	var image []byte
	if fhs := r.MultipartForm.File["image"]; len(fhs) > 0 {
		if image, err = readPart(fhs[0]); err == nil {
			err = s.detect.RequireImage(fhs[0].Filename, image)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	params, err := parseParams(typ, r.MultipartForm.Value, image)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.deps.Jobs.Submit(r.Context(), jobs.Submission{
		UserID:     user,
		InputNames: names,
		Inputs:     inputs,
		Params:     params,
		Password:   r.FormValue("password"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": string(store.StatusPending)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := s.deps.Records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, pdf.WrapIO("job store", err))
		return
	}
	if !ok || !owns(r, rec.UserID) {
		writeError(w, r, jobs.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) userJobs(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if !owns(r, user) {
		writeError(w, r, jobs.ErrNotFound)
		return
	}
	recs, err := s.deps.Records.ListByUser(r.Context(), user)
	if err != nil {
		writeError(w, r, pdf.WrapIO("job store", err))
		return
	}
	if recs == nil {
		recs = []store.JobRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": user, "jobs": recs})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	art, err := s.deps.Jobs.Artifact(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !owns(r, art.UserID) {
		writeError(w, r, jobs.ErrNotFound)
		return
	}
	if art.Notice != "" {
		w.Header().Set("X-Notice", art.Notice)
	}
	if art.Data == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"job_id": id, "differences": art.Differences})
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.pdf", art.Type, id))
	w.Header().Set("Content-Length", strconv.Itoa(art.Size()))
	_, _ = w.Write(art.Data)
}

func (s *Server) releaseArtifact(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Jobs.Release(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Jobs.Cancel(r.Context(), id, userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "cancelling"})
}

func (s *Server) inspect(w http.ResponseWriter, r *http.Request) {
	data, password, err := s.readSinglePDF(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// results depend on the password, so only password-less lookups are cached
	digest := ""
	if s.deps.Cache != nil && password == "" {
		digest = store.Digest(data)
		var info ops.DocumentInfo
		if hit, err := s.deps.Cache.Get(r.Context(), digest, &info); err == nil && hit {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, info)
			return
		}
	}

	doc, err := pdf.LoadContext(r.Context(), data, pdf.LoadOptions{Password: password, TolerateEncryption: true})
	if err != nil {
		writeError(w, r, err)
		return
	}
	info := ops.Info(doc)
	if digest != "" {
		if err := s.deps.Cache.Put(r.Context(), digest, info); err != nil {
			metrics.IncStoreError("inspect_cache")
			log.Warn().Err(err).Msg("inspect cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	o := preview.Options{Page: 1, DPI: s.opts.PreviewDPI, MaxDPI: s.opts.MaxPreviewDPI}
	var err error
	if v := q.Get("page"); v != "" {
		if o.Page, err = strconv.Atoi(v); err != nil {
			writeError(w, r, pdf.Validationf("page must be an integer"))
			return
		}
	}
	if v := q.Get("dpi"); v != "" {
		if o.DPI, err = strconv.Atoi(v); err != nil {
			writeError(w, r, pdf.Validationf("dpi must be an integer"))
			return
		}
	}
	switch strings.ToLower(q.Get("format")) {
	case "", "png":
	case "jpeg", "jpg":
		o.Format = preview.JPEG
	default:
		writeError(w, r, pdf.Validationf("format must be png or jpeg"))
		return
	}
	o.Gray = q.Get("gray") == "true" || q.Get("gray") == "1"

	data, _, err := s.readSinglePDF(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	img, err := preview.Render(data, o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", o.Format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	_, _ = w.Write(img)
}

type aiRequest struct {
	Text   string         `json:"text"`
	Params map[string]any `json:"params"`
}

func (s *Server) aiTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gateway == nil {
		writeError(w, r, gateway.ErrNotConfigured)
		return
	}
	var body aiRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, pdf.Validationf("invalid json body: %v", err))
		return
	}
	resp, err := s.deps.Gateway.Do(r.Context(), gateway.Request{
		Task:   chi.URLParam(r, "task"),
		UserID: userID(r),
		Text:   body.Text,
		Params: body.Params,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(resp.Raw) > 0 && json.Valid(resp.Raw) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.Copy(w, bytes.NewReader(resp.Raw))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":  resp.Text,
		"usage": map[string]int{"input_tokens": resp.TokensIn, "output_tokens": resp.TokensOut},
	})
}
