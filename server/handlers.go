package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	raven "github.com/getsentry/raven-go"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/lfstore"
)

// the star parameter in httprouter returns the leading slash
func itemID(ps httprouter.Params) string {
	return strings.TrimPrefix(ps.ByName("id"), "/")
}

// NewBlobHandler handles POST /blob. The body becomes the blob content and
// the Content-Type header its type. Query parameters become attributes.
func (s *RESTServer) NewBlobHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	content, ok := s.readBody(w, r)
	if !ok {
		return
	}
	attrs := lfstore.Attrs{}
	for k, v := range r.URL.Query() {
		attrs[k] = v[0]
	}
	blob := lfstore.Blob{Content: content, Type: r.Header.Get("Content-Type")}
	id, err := s.Store.AddBlob(r.Context(), blob, attrs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/blob/"+id)
	w.WriteHeader(201)
	fmt.Fprintln(w, id)
}

// BlobHandler handles GET and HEAD /blob/:id.
func (s *RESTServer) BlobHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	blob, err := s.blobs.Get(r.Context(), itemID(ps))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if blob.Type != "" {
		w.Header().Set("Content-Type", blob.Type)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(blob.Content)))
	if r.Method == "HEAD" {
		return
	}
	w.Write(blob.Content)
}

// UpdateBlobHandler handles PUT /blob/:id, replacing the content and type.
func (s *RESTServer) UpdateBlobHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	content, ok := s.readBody(w, r)
	if !ok {
		return
	}
	id := itemID(ps)
	blob := lfstore.Blob{Content: content, Type: r.Header.Get("Content-Type")}
	err := s.Store.UpdateBlob(r.Context(), id, blob)
	s.blobs.Forget(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(204)
}

// InfoHandler handles GET /info/:id.
func (s *RESTServer) InfoHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	info, err := s.Store.GetInfo(r.Context(), itemID(ps))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", fmt.Sprintf("%d", info.Version))
	writeJSON(w, info)
}

// UpdateInfoHandler handles PATCH /info/:id. The body is a JSON object of
// attribute names to values. A null value removes the attribute.
func (s *RESTServer) UpdateInfoHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var changes lfstore.AttrChanges
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&changes); err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, err)
		return
	}
	if err := s.Store.UpdateInfo(r.Context(), itemID(ps), changes); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(204)
}

// DeleteHandler handles DELETE /item/:id. Deleting a missing item succeeds.
func (s *RESTServer) DeleteHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := itemID(ps)
	err := s.Store.Delete(r.Context(), id)
	s.blobs.Forget(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(204)
}

type folderEntry struct {
	Name     string `json:"name"`
	IsFile   bool   `json:"isFile,omitempty"`
	IsFolder bool   `json:"isFolder,omitempty"`
}

// FolderHandler handles GET /folder/:id, listing the top level of a folder
// item.
func (s *RESTServer) FolderHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := itemID(ps)
	root, err := s.Store.GetFolderRO(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := root.ListFolder("")
	if err != nil {
		writeError(w, r, err)
		return
	}
	result := make([]folderEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, folderEntry{Name: e.Name, IsFile: e.IsFile, IsFolder: e.IsFolder})
	}
	writeJSON(w, result)
}

func (s *RESTServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	content, err := io.ReadAll(io.LimitReader(r.Body, s.MaxBlobSize+1))
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, err)
		return nil, false
	}
	if int64(len(content)) > s.MaxBlobSize {
		w.WriteHeader(413)
		fmt.Fprintln(w, "Blob too large")
		return nil, false
	}
	return content, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.Encode(v)
}

// writeError maps a store error onto a status code. Unexpected errors are
// logged and sent to sentry.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := 500
	switch {
	case lfstore.IsNotFound(err):
		status = 404
	case lfstore.IsNotBlob(err), lfstore.IsNotFile(err), lfstore.IsNotDirectory(err):
		status = 409
	case lfstore.IsReservedAttr(err):
		status = 400
	case r.Context().Err() != nil:
		status = 503
	}
	if status == 500 {
		log.WithError(err).WithField("url", r.URL.String()).Errorln(r.Method)
		raven.CaptureError(err, map[string]string{"method": r.Method, "url": r.URL.Path})
	}
	w.WriteHeader(status)
	fmt.Fprintln(w, err)
}
