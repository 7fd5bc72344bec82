package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wiretap-proxy/wiretap/internal/module"
	"github.com/wiretap-proxy/wiretap/internal/proxy"
)

type fakeModuleRegistry struct {
	names     []string
	loadErr   error
	unloadErr error
	reloadErr error
	importErr error

	lastLoadName   string
	lastUnloadName string
	lastReloadName string
}

func (f *fakeModuleRegistry) Import(name, modulePath string, raw []byte) (*module.Handle, error) {
	if f.importErr != nil {
		return nil, f.importErr
	}
	f.names = append(f.names, name)
	return nil, nil
}

func (f *fakeModuleRegistry) Load(_ context.Context, name string) error {
	f.lastLoadName = name
	return f.loadErr
}

func (f *fakeModuleRegistry) Unload(_ context.Context, name string, _ bool) error {
	f.lastUnloadName = name
	return f.unloadErr
}

func (f *fakeModuleRegistry) Reload(_ context.Context, name string) error {
	f.lastReloadName = name
	return f.reloadErr
}

func (f *fakeModuleRegistry) Get(name string) (*module.Handle, error) { return nil, nil }
func (f *fakeModuleRegistry) Names() []string                        { return f.names }

type fakeConnection struct{ state proxy.State }

func (f fakeConnection) State() proxy.State { return f.state }

func TestServer_Healthz(t *testing.T) {
	s := New(Config{}, nil, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServer_StatusReportsStateAndModules(t *testing.T) {
	mods := &fakeModuleRegistry{names: []string{"core", "extra"}}
	conn := fakeConnection{state: proxy.StateProxying}
	s := New(Config{}, mods, conn, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "proxying" {
		t.Errorf("State = %q, want proxying", resp.State)
	}
	if len(resp.Modules) != 2 {
		t.Errorf("Modules = %v, want 2 entries", resp.Modules)
	}
}

func TestServer_ModuleLoadUnloadReload(t *testing.T) {
	mods := &fakeModuleRegistry{}
	s := New(Config{}, mods, nil, nil, nil, nil)

	for _, op := range []string{"load", "unload", "reload"} {
		req := httptest.NewRequest(http.MethodPost, "/api/modules/foo/"+op, nil)
		rec := httptest.NewRecorder()
		s.router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("op %s status = %d, want 200", op, rec.Code)
		}
	}
	if mods.lastLoadName != "foo" || mods.lastUnloadName != "foo" || mods.lastReloadName != "foo" {
		t.Errorf("module ops did not dispatch to %q: %+v", "foo", mods)
	}
}

func TestServer_ModuleOpFailurePropagatesAsBadRequest(t *testing.T) {
	mods := &fakeModuleRegistry{loadErr: errors.New("boom")}
	s := New(Config{}, mods, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/modules/foo/load", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp moduleOpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK || resp.Error == "" {
		t.Errorf("response = %+v, want OK=false with error", resp)
	}
}

func TestServer_AuthRequiredWhenConfigured(t *testing.T) {
	mods := &fakeModuleRegistry{}
	s := New(Config{BearerToken: "secret"}, mods, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without credentials", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/status", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	s.router().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with valid bearer token", rec2.Code)
	}
}
