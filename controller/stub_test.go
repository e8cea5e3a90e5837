package controller

import (
	"context"
	"net/url"
	"sync"
	"time"

	"sgb-web/api"
	"sgb-web/library"
)

type call struct {
	Method   string
	Endpoint string
	ID       string
	Query    url.Values
	Payload  any
}

// stubBackend records calls and answers from canned data.
type stubBackend struct {
	mu    sync.Mutex
	calls []call

	lists     map[string][]library.Record
	listFn    func(ctx context.Context, endpoint string, q url.Values) ([]library.Record, error)
	listErr   error
	login     api.LoginResponse
	loginErr  error
	created   library.Record
	createErr error
	updateFn  func(ctx context.Context) (library.Record, error)
	updateErr error
	deleteErr error
}

func (s *stubBackend) record(c call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *stubBackend) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func (s *stubBackend) count(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *stubBackend) Login(_ context.Context, email, _ string) (api.LoginResponse, error) {
	s.record(call{Method: "LOGIN", Payload: email})
	return s.login, s.loginErr
}

func (s *stubBackend) List(ctx context.Context, endpoint string, q url.Values) ([]library.Record, error) {
	s.record(call{Method: "GET", Endpoint: endpoint, Query: q})
	if s.listFn != nil {
		return s.listFn(ctx, endpoint, q)
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]library.Record, 0, len(s.lists[endpoint]))
	for _, r := range s.lists[endpoint] {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *stubBackend) Create(_ context.Context, endpoint string, payload any) (library.Record, error) {
	s.record(call{Method: "POST", Endpoint: endpoint, Payload: payload})
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created.Clone(), nil
}

func (s *stubBackend) CreatePublic(ctx context.Context, endpoint string, payload any) (library.Record, error) {
	return s.Create(ctx, endpoint, payload)
}

func (s *stubBackend) Update(ctx context.Context, endpoint, id string, payload any) (library.Record, error) {
	s.record(call{Method: "PUT", Endpoint: endpoint, ID: id, Payload: payload})
	if s.updateFn != nil {
		return s.updateFn(ctx)
	}
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return nil, nil
}

func (s *stubBackend) Delete(_ context.Context, endpoint, id string) error {
	s.record(call{Method: "DELETE", Endpoint: endpoint, ID: id})
	return s.deleteErr
}

type fixedSession library.Session

func (f fixedSession) Session() library.Session { return library.Session(f) }

func sessionFor(role library.Role) fixedSession {
	return fixedSession{Token: "tok", Role: role, DisplayName: "teste@sgb.br", UserID: "7"}
}

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local)

func newEnv(b *stubBackend, role library.Role) Env {
	return Env{
		Backend:    b,
		Session:    sessionFor(role),
		Now:        func() time.Time { return testNow },
		FlashTTL:   time.Hour,
		CloseDelay: 0,
	}
}
