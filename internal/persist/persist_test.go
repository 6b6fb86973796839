package persist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

type fakeReader struct {
	namespaces []string
	scenes     []string
	err        error
}

func (f *fakeReader) AllNamespaces(ctx context.Context) ([]string, error) {
	return f.namespaces, f.err
}

func (f *fakeReader) AllScenes(ctx context.Context) ([]string, error) {
	return f.scenes, f.err
}

func (f *fakeReader) ScenesUnderNamespaces(ctx context.Context, namespaces []string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, s := range f.scenes {
		for _, ns := range namespaces {
			if len(s) > len(ns) && s[:len(ns)+1] == ns+"/" {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (f *fakeReader) Ping(ctx context.Context) error { return f.err }

func TestService_Lookups(t *testing.T) {
	svc := NewService(&fakeReader{
		namespaces: []string{"alice", "bob"},
		scenes:     []string{"alice/gallery", "bob/stage"},
	}, time.Second)

	ctx := context.Background()
	if got := svc.AllNamespaces(ctx); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("AllNamespaces = %v", got)
	}
	if got := svc.ScenesUnderNamespaces(ctx, []string{"bob"}); !reflect.DeepEqual(got, []string{"bob/stage"}) {
		t.Errorf("ScenesUnderNamespaces = %v", got)
	}
	if got := svc.ScenesUnderNamespaces(ctx, nil); got != nil {
		t.Errorf("ScenesUnderNamespaces(nil) = %v, want nil", got)
	}
}

func TestService_DegradesToEmpty(t *testing.T) {
	svc := NewService(&fakeReader{err: errors.New("mongo down")}, time.Second)

	if got := svc.AllScenes(context.Background()); got != nil {
		t.Errorf("AllScenes on failure = %v, want nil", got)
	}
	if got := svc.AllNamespaces(context.Background()); got != nil {
		t.Errorf("AllNamespaces on failure = %v, want nil", got)
	}
}

func TestService_PingReportsError(t *testing.T) {
	svc := NewService(&fakeReader{err: errors.New("mongo down")}, time.Second)
	if err := svc.Ping(context.Background()); err == nil {
		t.Error("Ping should surface reader errors")
	}
}

func TestClient_DeleteSceneObjects(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if c, err := r.Cookie("mqtt_token"); err == nil {
			gotToken = c.Value
		}
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, func() (string, error) { return "svc-token", nil }, time.Second)
	if err := client.DeleteSceneObjects(context.Background(), "alice/gallery"); err != nil {
		t.Fatalf("DeleteSceneObjects: %v", err)
	}
	if gotPath != "/persist/alice%2Fgallery" && gotPath != "/persist/alice/gallery" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "svc-token" {
		t.Errorf("token cookie = %q", gotToken)
	}
}

func TestClient_DeleteSceneObjects_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, func() (string, error) { return "svc-token", nil }, time.Second)
	err := client.DeleteSceneObjects(context.Background(), "alice/gallery")
	if !errors.Is(err, ErrDeleteFailed) {
		t.Errorf("err = %v, want ErrDeleteFailed", err)
	}
}
