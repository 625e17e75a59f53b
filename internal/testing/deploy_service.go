package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
)

// Request is one call seen by FakeDeployService.
type Request struct {
	Method        string
	Path          string
	ContentType   string
	Authorization string
	Body          []byte
}

type fakeDeploy struct {
	siteID string
	draft  bool
	files  map[string]string
}

// FakeDeployService is an in-process Deploy Service. It remembers uploaded
// content across deploys, so a second deploy of the same tree requires
// nothing. Hooks let tests inject failures and protocol violations.
type FakeDeployService struct {
	server    *httptest.Server
	algorithm digest.Algorithm

	mu       sync.Mutex
	store    map[string][]byte
	deploys  map[string]*fakeDeploy
	requests []Request
	nextID   int

	// NegotiateStatus, when non-zero, is returned for every deploy creation.
	NegotiateStatus int
	// ExtraRequired is appended to every required list.
	ExtraRequired []string
	// DuplicateRequired lists every required digest twice.
	DuplicateRequired bool
	// UploadStatus forces a status for uploads of the given relative path.
	UploadStatus map[string]int
	// Token, when set, must be presented as a bearer credential.
	Token string
}

func NewFakeDeployService(t testing.TB) *FakeDeployService {
	f := &FakeDeployService{
		algorithm:    digest.SHA1,
		store:        make(map[string][]byte),
		deploys:      make(map[string]*fakeDeploy),
		UploadStatus: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sites/{site}/deploys", f.createDeploy)
	mux.HandleFunc("PUT /api/v1/deploys/{id}/files/{path...}", f.uploadFile)
	f.server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the API base to configure clients with.
func (f *FakeDeployService) URL() string { return f.server.URL + "/api/v1" }

// SetAlgorithm changes how uploaded bodies are verified.
func (f *FakeDeployService) SetAlgorithm(a digest.Algorithm) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.algorithm = a
}

// Seed marks content as already present remotely.
func (f *FakeDeployService) Seed(contents ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range contents {
		f.store[f.algorithm.Sum([]byte(c))] = []byte(c)
	}
}

// Stored reports whether content with digest d has been received or seeded.
func (f *FakeDeployService) Stored(d string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.store[d]
	return ok
}

func (f *FakeDeployService) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Uploads returns only the PUT requests, in arrival order.
func (f *FakeDeployService) Uploads() []Request {
	var out []Request
	for _, r := range f.Requests() {
		if r.Method == http.MethodPut {
			out = append(out, r)
		}
	}
	return out
}

// UploadedPaths returns the relative paths of Uploads.
func (f *FakeDeployService) UploadedPaths() []string {
	var out []string
	for _, r := range f.Uploads() {
		_, rel, _ := strings.Cut(r.Path, "/files/")
		out = append(out, rel)
	}
	return out
}

// Negotiations returns the POST requests.
func (f *FakeDeployService) Negotiations() []Request {
	var out []Request
	for _, r := range f.Requests() {
		if r.Method == http.MethodPost {
			out = append(out, r)
		}
	}
	return out
}

func (f *FakeDeployService) ResetRequests() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

func (f *FakeDeployService) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		f.mu.Lock()
		f.requests = append(f.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			ContentType:   r.Header.Get("Content-Type"),
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		token := f.Token
		f.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"code": 401, "message": "Access Denied"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeDeployService) createDeploy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files map[string]string `json:"files"`
		Draft bool              `json:"draft"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": 400, "message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NegotiateStatus != 0 {
		writeJSON(w, f.NegotiateStatus, map[string]interface{}{"code": f.NegotiateStatus, "message": "forced failure"})
		return
	}

	paths := make([]string, 0, len(req.Files))
	for p := range req.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	required := []string{}
	seen := map[string]bool{}
	for _, p := range paths {
		d := req.Files[p]
		if _, ok := f.store[d]; ok || seen[d] {
			continue
		}
		seen[d] = true
		required = append(required, d)
		if f.DuplicateRequired {
			required = append(required, d)
		}
	}
	required = append(required, f.ExtraRequired...)

	f.nextID++
	id := fmt.Sprintf("deploy-%d", f.nextID)
	f.deploys[id] = &fakeDeploy{siteID: r.PathValue("site"), draft: req.Draft, files: req.Files}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             id,
		"state":          "prepared",
		"required":       required,
		"deploy_ssl_url": "https://" + id + "--site.example.test",
	})
}

func (f *FakeDeployService) uploadFile(w http.ResponseWriter, r *http.Request) {
	id, rel := r.PathValue("id"), r.PathValue("path")
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if status, ok := f.UploadStatus[rel]; ok {
		writeJSON(w, status, map[string]interface{}{"code": status, "message": "forced upload failure"})
		return
	}
	d, ok := f.deploys[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 404, "message": "deploy not found"})
		return
	}
	want, ok := d.files[rel]
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"code": 422, "message": "file not in manifest"})
		return
	}
	if got := f.algorithm.Sum(body); got != want {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"code": 422, "message": "digest mismatch"})
		return
	}
	f.store[want] = body
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": want, "path": "/" + rel})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
